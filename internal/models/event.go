package models

import (
	"time"
)

const DefaultEventName = "conversion"

// Event is the conversion event written for an accepted postback.
type Event struct {
	ID         string                 `json:"id" bson:"_id"`
	EndpointID string                 `json:"endpointId" bson:"endpoint_id"`
	WebsiteID  string                 `json:"websiteId" bson:"website_id"`
	SessionID  string                 `json:"sessionId" bson:"session_id"`
	VisitID    string                 `json:"visitId" bson:"visit_id"`
	EventName  string                 `json:"eventName" bson:"event_name"`
	EventData  map[string]interface{} `json:"eventData" bson:"event_data"`
	Hostname   string                 `json:"hostname,omitempty" bson:"hostname,omitempty"`
	URLPath    string                 `json:"urlPath" bson:"url_path"`
	URLQuery   string                 `json:"urlQuery,omitempty" bson:"url_query,omitempty"`
	CreatedAt  time.Time              `json:"createdAt" bson:"created_at"`
}

// Revenue is the monetary side record of an event.
type Revenue struct {
	ID        string    `json:"id" bson:"_id"`
	WebsiteID string    `json:"websiteId" bson:"website_id"`
	SessionID string    `json:"sessionId" bson:"session_id"`
	EventID   string    `json:"eventId" bson:"event_id"`
	EventName string    `json:"eventName" bson:"event_name"`
	Currency  string    `json:"currency" bson:"currency"`
	Revenue   float64   `json:"revenue" bson:"revenue"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
