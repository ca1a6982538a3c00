package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"postback-relay/internal/models"
	"postback-relay/pkg/errs"
)

// MemoryStore keeps everything in maps. It backs tests and local runs
// without MongoDB.
type MemoryStore struct {
	mu             sync.RWMutex
	endpoints      map[string]*models.Endpoint
	relays         map[string]*models.Relay
	requests       map[string]*models.PostbackRequest
	relayLogs      []*models.RelayLog
	redirectClicks map[string]*models.RedirectClick
	linkClicks     map[string]*models.LinkClick
	events         []*models.Event
	revenues       []*models.Revenue
	now            func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		endpoints:      make(map[string]*models.Endpoint),
		relays:         make(map[string]*models.Relay),
		requests:       make(map[string]*models.PostbackRequest),
		redirectClicks: make(map[string]*models.RedirectClick),
		linkClicks:     make(map[string]*models.LinkClick),
		now:            time.Now,
	}
}

func (s *MemoryStore) GetEndpointBySlug(_ context.Context, slug string) (*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.endpoints {
		if e.Slug == slug {
			cp := *e
			return &cp, nil
		}
	}
	return nil, errs.Wrapf(errs.ErrNotFound, "endpoint %q", slug)
}

func (s *MemoryStore) GetEndpoint(_ context.Context, id string) (*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.endpoints[id]
	if !ok {
		return nil, errs.Wrapf(errs.ErrNotFound, "endpoint %s", id)
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) ListEndpoints(_ context.Context) ([]*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		if e.DeletedAt != nil {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateEndpoint(_ context.Context, e *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.endpoints {
		if existing.Slug == e.Slug {
			return errs.Wrapf(ErrSlugTaken, "slug %q", e.Slug)
		}
	}
	cp := *e
	s.endpoints[e.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateEndpoint(_ context.Context, e *models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[e.ID]; !ok {
		return errs.Wrapf(errs.ErrNotFound, "endpoint %s", e.ID)
	}
	for id, existing := range s.endpoints {
		if id != e.ID && existing.Slug == e.Slug {
			return errs.Wrapf(ErrSlugTaken, "slug %q", e.Slug)
		}
	}
	cp := *e
	s.endpoints[e.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.endpoints[id]
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "endpoint %s", id)
	}
	e.DeletedAt = &at
	e.IsActive = false
	return nil
}

func (s *MemoryStore) ListRelays(_ context.Context, endpointID string) ([]*models.Relay, error) {
	return s.relaysWhere(func(r *models.Relay) bool { return r.EndpointID == endpointID }), nil
}

func (s *MemoryStore) ListActiveRelays(_ context.Context, endpointID string) ([]*models.Relay, error) {
	return s.relaysWhere(func(r *models.Relay) bool { return r.EndpointID == endpointID && r.IsActive }), nil
}

func (s *MemoryStore) relaysWhere(keep func(*models.Relay) bool) []*models.Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Relay, 0)
	for _, r := range s.relays {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) GetRelay(_ context.Context, id string) (*models.Relay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relays[id]
	if !ok {
		return nil, errs.Wrapf(errs.ErrNotFound, "relay %s", id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) CreateRelay(_ context.Context, r *models.Relay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.relays[r.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateRelay(_ context.Context, r *models.Relay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relays[r.ID]; !ok {
		return errs.Wrapf(errs.ErrNotFound, "relay %s", r.ID)
	}
	cp := *r
	s.relays[r.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteRelay(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relays[id]; !ok {
		return errs.Wrapf(errs.ErrNotFound, "relay %s", id)
	}
	delete(s.relays, id)
	return nil
}

func (s *MemoryStore) CreateRequest(_ context.Context, r *models.PostbackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateRequest(_ context.Context, id string, u models.RequestUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "request %s", id)
	}
	if u.Status != nil && !r.Status.CanTransition(*u.Status) {
		return errs.Wrapf(ErrInvalidTransition, "request %s: %s -> %s", id, r.Status, *u.Status)
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.ParsedFields != nil {
		r.ParsedFields = u.ParsedFields
	}
	if u.Validation != nil {
		r.Validation = u.Validation
	}
	if u.RelayResult != nil {
		r.RelayResult = u.RelayResult
	}
	if u.EventID != nil {
		r.EventID = *u.EventID
	}
	if u.ClickID != nil {
		r.ClickID = *u.ClickID
	}
	if u.LinkClickID != nil {
		r.LinkClickID = *u.LinkClickID
	}
	if u.RedirectClickID != nil {
		r.RedirectClickID = *u.RedirectClickID
	}
	r.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (*models.PostbackRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, errs.Wrapf(errs.ErrNotFound, "request %s", id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRequests(_ context.Context, endpointID string, page models.Page) ([]*models.PostbackRequest, int64, error) {
	page = page.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*models.PostbackRequest, 0)
	for _, r := range s.requests {
		if r.EndpointID == endpointID {
			cp := *r
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if page.Offset >= len(all) {
		return []*models.PostbackRequest{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end], total, nil
}

func (s *MemoryStore) ClearRequests(_ context.Context, endpointID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.requests {
		if r.EndpointID == endpointID {
			delete(s.requests, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RequestStats(_ context.Context, endpointID string) ([]models.StatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.RequestStatus]int64)
	for _, r := range s.requests {
		if r.EndpointID == endpointID {
			counts[r.Status]++
		}
	}
	out := make([]models.StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, models.StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *MemoryStore) CreateRelayLog(_ context.Context, l *models.RelayLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.relayLogs = append(s.relayLogs, &cp)
	return nil
}

func (s *MemoryStore) ListRelayLogs(_ context.Context, requestID string) ([]*models.RelayLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RelayLog, 0)
	for _, l := range s.relayLogs {
		if l.RequestID == requestID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveRedirectClick(_ context.Context, c *models.RedirectClick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.redirectClicks[c.ID] = &cp
	return nil
}

func (s *MemoryStore) SaveLinkClick(_ context.Context, c *models.LinkClick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.linkClicks[c.ID] = &cp
	return nil
}

func (s *MemoryStore) FindRedirectClickByToken(_ context.Context, token string) (*models.RedirectClick, error) {
	return s.findRedirectClick(func(c *models.RedirectClick) bool { return c.ClickToken == token })
}

func (s *MemoryStore) FindRedirectClickByExternalID(_ context.Context, externalID string) (*models.RedirectClick, error) {
	return s.findRedirectClick(func(c *models.RedirectClick) bool { return c.ExternalClickID == externalID })
}

func (s *MemoryStore) findRedirectClick(match func(*models.RedirectClick) bool) (*models.RedirectClick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.redirectClicks {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *MemoryStore) MarkRedirectClickConverted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.redirectClicks[id]
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "redirect click %s", id)
	}
	c.ConvertedAt = &at
	return nil
}

func (s *MemoryStore) FindLinkClickByClickID(_ context.Context, clickID string) (*models.LinkClick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.linkClicks {
		if c.ClickID == clickID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *MemoryStore) MarkLinkClickConverted(_ context.Context, clickID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.linkClicks {
		if c.ClickID == clickID {
			c.ConvertedAt = &at
		}
	}
	return nil
}

func (s *MemoryStore) SaveEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) SaveRevenue(_ context.Context, r *models.Revenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.revenues = append(s.revenues, &cp)
	return nil
}

// Events returns copies of the saved events.
func (s *MemoryStore) Events() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Event, len(s.events))
	for i, e := range s.events {
		out[i] = *e
	}
	return out
}

// Revenues returns copies of the saved revenue rows.
func (s *MemoryStore) Revenues() []models.Revenue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Revenue, len(s.revenues))
	for i, r := range s.revenues {
		out[i] = *r
	}
	return out
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}
