package models

import (
	"time"
)

// RequestStatus tracks a postback through ingestion and relay.
//
//	received -> failed
//	received -> recorded -> relayed | relayFailed
type RequestStatus string

const (
	StatusReceived    RequestStatus = "received"
	StatusFailed      RequestStatus = "failed"
	StatusRecorded    RequestStatus = "recorded"
	StatusRelayed     RequestStatus = "relayed"
	StatusRelayFailed RequestStatus = "relayFailed"
)

var statusRank = map[RequestStatus]int{
	StatusReceived:    0,
	StatusFailed:      1,
	StatusRecorded:    1,
	StatusRelayed:     2,
	StatusRelayFailed: 2,
}

// CanTransition reports whether moving from s to next keeps the status moving forward.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	if s == StatusFailed || s == StatusRelayed || s == StatusRelayFailed {
		return false
	}
	if s == StatusReceived && (next == StatusRelayed || next == StatusRelayFailed) {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// ValidationOutcome is persisted on the audit record.
type ValidationOutcome struct {
	IsValid  bool                   `json:"isValid" bson:"is_valid"`
	Expected string                 `json:"expected,omitempty" bson:"expected,omitempty"`
	Received string                 `json:"received,omitempty" bson:"received,omitempty"`
	Error    string                 `json:"error,omitempty" bson:"error,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
}

// RelayResult summarizes outbound delivery for an audit record.
type RelayResult struct {
	Success      bool              `json:"success" bson:"success"`
	URL          string            `json:"url,omitempty" bson:"url,omitempty"`
	Method       string            `json:"method,omitempty" bson:"method,omitempty"`
	Body         interface{}       `json:"body,omitempty" bson:"body,omitempty"`
	StatusCode   int               `json:"statusCode,omitempty" bson:"status_code,omitempty"`
	ResponseBody string            `json:"responseBody,omitempty" bson:"response_body,omitempty"`
	DurationMs   int64             `json:"duration" bson:"duration_ms"`
	Error        string            `json:"error,omitempty" bson:"error,omitempty"`
	Relays       []RelayTargetStat `json:"relays,omitempty" bson:"relays,omitempty"`
}

// RelayTargetStat is the per-relay outcome of a multi-relay dispatch.
type RelayTargetStat struct {
	RelayID  string `json:"relayId" bson:"relay_id"`
	Name     string `json:"name" bson:"name"`
	Skipped  bool   `json:"skipped,omitempty" bson:"skipped,omitempty"`
	Success  bool   `json:"success" bson:"success"`
	Attempts int    `json:"attempts" bson:"attempts"`
	Error    string `json:"error,omitempty" bson:"error,omitempty"`
}

// PostbackRequest is the audit record for one inbound call.
type PostbackRequest struct {
	ID              string                 `json:"id" bson:"_id"`
	EndpointID      string                 `json:"endpointId" bson:"endpoint_id"`
	Method          string                 `json:"method" bson:"method"`
	Path            string                 `json:"path" bson:"path"`
	Query           map[string]interface{} `json:"query,omitempty" bson:"query,omitempty"`
	Headers         map[string]string      `json:"headers,omitempty" bson:"headers,omitempty"`
	Body            map[string]interface{} `json:"body,omitempty" bson:"body,omitempty"`
	BodyRaw         string                 `json:"bodyRaw,omitempty" bson:"body_raw,omitempty"`
	ContentType     string                 `json:"contentType,omitempty" bson:"content_type,omitempty"`
	ClientIP        string                 `json:"clientIp,omitempty" bson:"client_ip,omitempty"`
	UserAgent       string                 `json:"userAgent,omitempty" bson:"user_agent,omitempty"`
	Status          RequestStatus          `json:"status" bson:"status"`
	ParsedFields    map[string]interface{} `json:"parsedFields,omitempty" bson:"parsed_fields,omitempty"`
	Validation      *ValidationOutcome     `json:"validation,omitempty" bson:"validation,omitempty"`
	RelayResult     *RelayResult           `json:"relayResult,omitempty" bson:"relay_result,omitempty"`
	EventID         string                 `json:"eventId,omitempty" bson:"event_id,omitempty"`
	ClickID         string                 `json:"clickId,omitempty" bson:"click_id,omitempty"`
	LinkClickID     string                 `json:"linkClickId,omitempty" bson:"link_click_id,omitempty"`
	RedirectClickID string                 `json:"redirectClickId,omitempty" bson:"redirect_click_id,omitempty"`
	CreatedAt       time.Time              `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time              `json:"updatedAt" bson:"updated_at"`
}

// RequestUpdate is a partial update; nil fields are left unchanged.
type RequestUpdate struct {
	Status          *RequestStatus
	ParsedFields    map[string]interface{}
	Validation      *ValidationOutcome
	RelayResult     *RelayResult
	EventID         *string
	LinkClickID     *string
	RedirectClickID *string
	ClickID         *string
}

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 500
)

// Normalize clamps the page to the accepted range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// StatusCount is one row of per-status request statistics.
type StatusCount struct {
	Status RequestStatus `json:"status" bson:"_id"`
	Count  int64         `json:"count" bson:"count"`
}
