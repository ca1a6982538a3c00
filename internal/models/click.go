package models

import (
	"time"
)

// AdNetworkIDs are click identifiers appended by ad platforms.
type AdNetworkIDs struct {
	GCLID   string `json:"gclid,omitempty" bson:"gclid,omitempty"`
	FBCLID  string `json:"fbclid,omitempty" bson:"fbclid,omitempty"`
	MSCLKID string `json:"msclkid,omitempty" bson:"msclkid,omitempty"`
	TTCLID  string `json:"ttclid,omitempty" bson:"ttclid,omitempty"`
	TWCLID  string `json:"twclid,omitempty" bson:"twclid,omitempty"`
}

type UTM struct {
	Source   string `json:"utmSource,omitempty" bson:"utm_source,omitempty"`
	Medium   string `json:"utmMedium,omitempty" bson:"utm_medium,omitempty"`
	Campaign string `json:"utmCampaign,omitempty" bson:"utm_campaign,omitempty"`
	Content  string `json:"utmContent,omitempty" bson:"utm_content,omitempty"`
	Term     string `json:"utmTerm,omitempty" bson:"utm_term,omitempty"`
}

type Geo struct {
	Country string `json:"country,omitempty" bson:"country,omitempty"`
	Region  string `json:"region,omitempty" bson:"region,omitempty"`
	City    string `json:"city,omitempty" bson:"city,omitempty"`
}

// ClickSource is the redirect or link a click came through.
type ClickSource struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
	Slug string `json:"slug" bson:"slug"`
}

// RedirectClick is recorded by the redirect module; its token is appended to
// the target URL as _ct.
type RedirectClick struct {
	ID              string            `json:"id" bson:"_id"`
	RedirectID      string            `json:"redirectId" bson:"redirect_id"`
	ClickToken      string            `json:"clickToken" bson:"click_token"`
	ExternalClickID string            `json:"externalClickId,omitempty" bson:"external_click_id,omitempty"`
	AdNetwork       AdNetworkIDs      `json:"adNetwork" bson:"ad_network"`
	UTM             UTM               `json:"utm" bson:"utm"`
	Geo             Geo               `json:"geo" bson:"geo"`
	CapturedParams  map[string]string `json:"capturedParams,omitempty" bson:"captured_params,omitempty"`
	Redirect        *ClickSource      `json:"redirect,omitempty" bson:"redirect,omitempty"`
	SessionID       string            `json:"sessionId,omitempty" bson:"session_id,omitempty"`
	CreatedAt       time.Time         `json:"createdAt" bson:"created_at"`
	ConvertedAt     *time.Time        `json:"convertedAt,omitempty" bson:"converted_at,omitempty"`
}

// LinkClick is the legacy tracked-link click.
type LinkClick struct {
	ID          string       `json:"id" bson:"_id"`
	LinkID      string       `json:"linkId" bson:"link_id"`
	ClickID     string       `json:"clickId" bson:"click_id"`
	AdNetwork   AdNetworkIDs `json:"adNetwork" bson:"ad_network"`
	UTM         UTM          `json:"utm" bson:"utm"`
	Geo         Geo          `json:"geo" bson:"geo"`
	Link        *ClickSource `json:"link,omitempty" bson:"link,omitempty"`
	SessionID   string       `json:"sessionId,omitempty" bson:"session_id,omitempty"`
	CreatedAt   time.Time    `json:"createdAt" bson:"created_at"`
	ConvertedAt *time.Time   `json:"convertedAt,omitempty" bson:"converted_at,omitempty"`
}
