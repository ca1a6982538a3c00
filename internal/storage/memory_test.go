package storage

import (
	"context"
	"testing"
	"time"

	"postback-relay/internal/models"
	"postback-relay/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateRequest(ctx, &models.PostbackRequest{
		ID: "r1", EndpointID: "e1", Status: models.StatusReceived, CreatedAt: time.Now(),
	}))

	recorded := models.StatusRecorded
	eventID := "ev1"
	require.NoError(t, s.UpdateRequest(ctx, "r1", models.RequestUpdate{Status: &recorded, EventID: &eventID}))

	received := models.StatusReceived
	err := s.UpdateRequest(ctx, "r1", models.RequestUpdate{Status: &received})
	assert.True(t, errs.Is(err, ErrInvalidTransition))

	relayed := models.StatusRelayed
	require.NoError(t, s.UpdateRequest(ctx, "r1", models.RequestUpdate{Status: &relayed}))

	failed := models.StatusFailed
	assert.Error(t, s.UpdateRequest(ctx, "r1", models.RequestUpdate{Status: &failed}))

	r, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayed, r.Status)
	assert.Equal(t, "ev1", r.EventID)

	err = s.UpdateRequest(ctx, "missing", models.RequestUpdate{})
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}

func TestMemoryStoreListRequestsPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateRequest(ctx, &models.PostbackRequest{
			ID:         string(rune('a' + i)),
			EndpointID: "e1",
			Status:     models.StatusReceived,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.CreateRequest(ctx, &models.PostbackRequest{ID: "other", EndpointID: "e2"}))

	page, total, err := s.ListRequests(ctx, "e1", models.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].ID)
	assert.Equal(t, "c", page[1].ID)

	page, _, err = s.ListRequests(ctx, "e1", models.Page{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)

	stats, err := s.RequestStats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []models.StatusCount{{Status: models.StatusReceived, Count: 5}}, stats)

	n, err := s.ClearRequests(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestMemoryStoreEndpoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateEndpoint(ctx, &models.Endpoint{ID: "e1", Slug: "abc", IsActive: true}))

	err := s.CreateEndpoint(ctx, &models.Endpoint{ID: "e2", Slug: "abc"})
	assert.True(t, errs.Is(err, ErrSlugTaken))

	e, err := s.GetEndpointBySlug(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, e.Available())

	require.NoError(t, s.DeleteEndpoint(ctx, "e1", time.Now()))
	e, err = s.GetEndpointBySlug(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, e.Available())

	list, err := s.ListEndpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetEndpointBySlug(ctx, "nope")
	assert.True(t, errs.Is(err, errs.ErrNotFound))
}
