// Package attribution links an inbound postback to an earlier tracked click.
package attribution

import (
	"context"
	"time"

	"postback-relay/internal/models"
	"postback-relay/pkg/errs"
	"postback-relay/pkg/metrics"

	"go.uber.org/zap"
)

// ClickParams are scanned in order; the first non-empty string wins. _ct is
// the token appended to redirect targets.
var ClickParams = []string{
	"click_id", "clickId", "clickid", "cid", "subid", "sub1",
	"transaction_id", "tid", "aff_sub", "_ct",
}

// Kind says which click table produced a match.
type Kind string

const (
	KindNone     Kind = "none"
	KindRedirect Kind = "redirect"
	KindLink     Kind = "link"
)

// ClickStore is the click lookup/update surface the matcher needs. Lookups
// return errs.ErrNotFound when nothing matches.
type ClickStore interface {
	FindRedirectClickByToken(ctx context.Context, token string) (*models.RedirectClick, error)
	FindRedirectClickByExternalID(ctx context.Context, externalID string) (*models.RedirectClick, error)
	MarkRedirectClickConverted(ctx context.Context, id string, at time.Time) error
	FindLinkClickByClickID(ctx context.Context, clickID string) (*models.LinkClick, error)
	MarkLinkClickConverted(ctx context.Context, clickID string, at time.Time) error
}

// Match is the result of click resolution. ClickID is set whenever a
// candidate was found in the request, even if no click matched.
type Match struct {
	ClickID       string
	Kind          Kind
	RedirectClick *models.RedirectClick
	LinkClick     *models.LinkClick
	Attribution   map[string]interface{}
}

// Matched reports whether a click record was found.
func (m *Match) Matched() bool {
	return m != nil && m.Kind != KindNone
}

type Matcher struct {
	store  ClickStore
	now    func() time.Time
	logger *zap.Logger
}

func NewMatcher(store ClickStore, now func() time.Time, logger *zap.Logger) *Matcher {
	if now == nil {
		now = time.Now
	}
	return &Matcher{store: store, now: now, logger: logger}
}

// CandidateID returns the first non-empty string among ClickParams.
func CandidateID(data map[string]interface{}) string {
	for _, p := range ClickParams {
		if s, ok := data[p].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Match resolves a click id: redirect click by token, then by external id,
// then legacy link click. A matched click has convertedAt set to now every
// time, including repeat postbacks for the same click.
func (m *Matcher) Match(ctx context.Context, data map[string]interface{}) (*Match, error) {
	clickID := CandidateID(data)
	if clickID == "" {
		return &Match{Kind: KindNone}, nil
	}

	rc, err := m.findRedirectClick(ctx, clickID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if rc != nil {
		if err := m.store.MarkRedirectClickConverted(ctx, rc.ID, now); err != nil {
			return nil, errs.Wrap(err, "mark redirect click converted")
		}
		metrics.ClickMatches.WithLabelValues(string(KindRedirect)).Inc()
		m.logger.Debug("Matched redirect click", zap.String("click_id", clickID), zap.String("redirect_click_id", rc.ID))
		return &Match{
			ClickID:       clickID,
			Kind:          KindRedirect,
			RedirectClick: rc,
			Attribution:   RedirectAttribution(rc, now),
		}, nil
	}

	lc, err := m.store.FindLinkClickByClickID(ctx, clickID)
	if err != nil && !errs.Is(err, errs.ErrNotFound) {
		return nil, errs.Wrap(err, "find link click")
	}
	if lc == nil || err != nil {
		metrics.ClickMatches.WithLabelValues(string(KindNone)).Inc()
		return &Match{ClickID: clickID, Kind: KindNone}, nil
	}
	if err := m.store.MarkLinkClickConverted(ctx, clickID, now); err != nil {
		return nil, errs.Wrap(err, "mark link click converted")
	}
	metrics.ClickMatches.WithLabelValues(string(KindLink)).Inc()
	m.logger.Debug("Matched link click", zap.String("click_id", clickID), zap.String("link_click_id", lc.ID))
	return &Match{
		ClickID:     clickID,
		Kind:        KindLink,
		LinkClick:   lc,
		Attribution: LinkAttribution(lc, now),
	}, nil
}

func (m *Matcher) findRedirectClick(ctx context.Context, clickID string) (*models.RedirectClick, error) {
	rc, err := m.store.FindRedirectClickByToken(ctx, clickID)
	if err == nil {
		return rc, nil
	}
	if !errs.Is(err, errs.ErrNotFound) {
		return nil, errs.Wrap(err, "find redirect click by token")
	}
	rc, err = m.store.FindRedirectClickByExternalID(ctx, clickID)
	if err == nil {
		return rc, nil
	}
	if !errs.Is(err, errs.ErrNotFound) {
		return nil, errs.Wrap(err, "find redirect click by external id")
	}
	return nil, nil
}
