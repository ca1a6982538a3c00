// Package storage persists endpoints, relays, audit records, clicks, relay
// attempt logs and events.
package storage

import (
	"context"
	"time"

	"postback-relay/internal/models"
	"postback-relay/pkg/errs"
)

// ErrInvalidTransition is returned when a request status update would move
// the status backwards.
var ErrInvalidTransition = errs.New("invalid status transition")

// ErrSlugTaken is returned when an endpoint slug is already in use.
var ErrSlugTaken = errs.New("slug already in use")

type EndpointStore interface {
	GetEndpointBySlug(ctx context.Context, slug string) (*models.Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*models.Endpoint, error)
	CreateEndpoint(ctx context.Context, e *models.Endpoint) error
	UpdateEndpoint(ctx context.Context, e *models.Endpoint) error
	// DeleteEndpoint soft-deletes.
	DeleteEndpoint(ctx context.Context, id string, at time.Time) error
}

type RelayStore interface {
	ListRelays(ctx context.Context, endpointID string) ([]*models.Relay, error)
	ListActiveRelays(ctx context.Context, endpointID string) ([]*models.Relay, error)
	GetRelay(ctx context.Context, id string) (*models.Relay, error)
	CreateRelay(ctx context.Context, r *models.Relay) error
	UpdateRelay(ctx context.Context, r *models.Relay) error
	DeleteRelay(ctx context.Context, id string) error
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.PostbackRequest) error
	// UpdateRequest applies a partial update. A status change that does not
	// move forward fails with ErrInvalidTransition.
	UpdateRequest(ctx context.Context, id string, u models.RequestUpdate) error
	GetRequest(ctx context.Context, id string) (*models.PostbackRequest, error)
	ListRequests(ctx context.Context, endpointID string, page models.Page) ([]*models.PostbackRequest, int64, error)
	ClearRequests(ctx context.Context, endpointID string) (int64, error)
	RequestStats(ctx context.Context, endpointID string) ([]models.StatusCount, error)
}

type RelayLogStore interface {
	CreateRelayLog(ctx context.Context, l *models.RelayLog) error
	ListRelayLogs(ctx context.Context, requestID string) ([]*models.RelayLog, error)
}

type ClickStore interface {
	SaveRedirectClick(ctx context.Context, c *models.RedirectClick) error
	SaveLinkClick(ctx context.Context, c *models.LinkClick) error
	FindRedirectClickByToken(ctx context.Context, token string) (*models.RedirectClick, error)
	FindRedirectClickByExternalID(ctx context.Context, externalID string) (*models.RedirectClick, error)
	MarkRedirectClickConverted(ctx context.Context, id string, at time.Time) error
	FindLinkClickByClickID(ctx context.Context, clickID string) (*models.LinkClick, error)
	MarkLinkClickConverted(ctx context.Context, clickID string, at time.Time) error
}

type EventSink interface {
	SaveEvent(ctx context.Context, e *models.Event) error
	SaveRevenue(ctx context.Context, r *models.Revenue) error
}

// Store is the full persistence surface.
type Store interface {
	EndpointStore
	RelayStore
	RequestStore
	RelayLogStore
	ClickStore
	EventSink
	Close(ctx context.Context) error
}

// previousStatuses lists the statuses a request may hold before moving to next.
func previousStatuses(next models.RequestStatus) []models.RequestStatus {
	var out []models.RequestStatus
	for _, s := range []models.RequestStatus{
		models.StatusReceived, models.StatusFailed, models.StatusRecorded,
		models.StatusRelayed, models.StatusRelayFailed,
	} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}
