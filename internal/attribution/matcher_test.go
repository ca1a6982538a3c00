package attribution_test

import (
	"context"
	"testing"
	"time"

	"postback-relay/internal/attribution"
	"postback-relay/internal/models"
	"postback-relay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCandidateID(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
		want string
	}{
		{"none", map[string]interface{}{"revenue": "1"}, ""},
		{"click_id first", map[string]interface{}{"click_id": "A", "subid": "B"}, "A"},
		{"skips empty", map[string]interface{}{"click_id": "", "cid": "C"}, "C"},
		{"skips non-string", map[string]interface{}{"clickid": 42.0, "aff_sub": "D"}, "D"},
		{"redirect token", map[string]interface{}{"_ct": "tok"}, "tok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, attribution.CandidateID(tt.data))
		})
	}
}

func TestMatchRedirectClick(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	clicked := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := clicked.Add(90 * time.Second)

	require.NoError(t, store.SaveRedirectClick(ctx, &models.RedirectClick{
		ID:              "rc-1",
		RedirectID:      "r-1",
		ClickToken:      "tok-1",
		ExternalClickID: "ext-1",
		AdNetwork:       models.AdNetworkIDs{GCLID: "g-1"},
		UTM:             models.UTM{Source: "google", Campaign: "spring"},
		Geo:             models.Geo{Country: "US"},
		Redirect:        &models.ClickSource{ID: "r-1", Name: "Spring", Slug: "spring"},
		CreatedAt:       clicked,
	}))

	m := attribution.NewMatcher(store, func() time.Time { return now }, zap.NewNop())

	t.Run("by token", func(t *testing.T) {
		match, err := m.Match(ctx, map[string]interface{}{"_ct": "tok-1"})
		require.NoError(t, err)
		require.True(t, match.Matched())
		assert.Equal(t, attribution.KindRedirect, match.Kind)
		assert.Equal(t, "rc-1", match.RedirectClick.ID)
		assert.Equal(t, map[string]interface{}{
			"originalClickToken": "tok-1",
			"externalClickId":    "ext-1",
			"clickedAt":          clicked,
			"timeToConversion":   int64(90000),
			"gclid":              "g-1",
			"utmSource":          "google",
			"utmCampaign":        "spring",
			"country":            "US",
			"redirectId":         "r-1",
			"redirectName":       "Spring",
			"redirectSlug":       "spring",
		}, match.Attribution)
	})

	t.Run("by external id", func(t *testing.T) {
		match, err := m.Match(ctx, map[string]interface{}{"click_id": "ext-1"})
		require.NoError(t, err)
		assert.Equal(t, attribution.KindRedirect, match.Kind)
		assert.Equal(t, "ext-1", match.ClickID)
	})

	rc, err := store.FindRedirectClickByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, rc.ConvertedAt)
	assert.True(t, rc.ConvertedAt.Equal(now))
}

func TestMatchLinkClickIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	clicked := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveLinkClick(ctx, &models.LinkClick{
		ID:        "lc-1",
		LinkID:    "l-1",
		ClickID:   "K1",
		Link:      &models.ClickSource{ID: "l-1", Name: "Promo", Slug: "promo"},
		SessionID: "sess-1",
		CreatedAt: clicked,
	}))

	now := clicked.Add(time.Minute)
	m := attribution.NewMatcher(store, func() time.Time { return now }, zap.NewNop())

	first, err := m.Match(ctx, map[string]interface{}{"click_id": "K1"})
	require.NoError(t, err)
	require.Equal(t, attribution.KindLink, first.Kind)
	assert.Equal(t, "lc-1", first.LinkClick.ID)
	assert.Equal(t, "promo", first.Attribution["linkSlug"])
	assert.Equal(t, "K1", first.Attribution["originalClickId"])

	now = now.Add(time.Hour)
	second, err := m.Match(ctx, map[string]interface{}{"click_id": "K1"})
	require.NoError(t, err)
	require.Equal(t, attribution.KindLink, second.Kind)
	assert.Equal(t, first.LinkClick.ID, second.LinkClick.ID)
	assert.Equal(t, int64(time.Minute/time.Millisecond+time.Hour/time.Millisecond), second.Attribution["timeToConversion"])

	lc, err := store.FindLinkClickByClickID(ctx, "K1")
	require.NoError(t, err)
	require.NotNil(t, lc.ConvertedAt)
	assert.True(t, lc.ConvertedAt.Equal(now))
}

func TestMatchUnknownClick(t *testing.T) {
	m := attribution.NewMatcher(storage.NewMemoryStore(), nil, zap.NewNop())

	match, err := m.Match(context.Background(), map[string]interface{}{"click_id": "nobody"})
	require.NoError(t, err)
	assert.False(t, match.Matched())
	assert.Equal(t, "nobody", match.ClickID)
	assert.Nil(t, match.Attribution)

	match, err = m.Match(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, match.Matched())
	assert.Empty(t, match.ClickID)
}
