package models

import (
	"time"
)

// InputFormat selects how a request body is decoded.
type InputFormat string

const (
	InputFormatAuto  InputFormat = "auto"
	InputFormatJSON  InputFormat = "json"
	InputFormatXML   InputFormat = "xml"
	InputFormatForm  InputFormat = "form"
	InputFormatQuery InputFormat = "query"
)

// Endpoint is a public postback URL (/x/{slug}) and its processing configuration.
type Endpoint struct {
	ID                string         `json:"id" bson:"_id"`
	Name              string         `json:"name" bson:"name"`
	Description       string         `json:"description,omitempty" bson:"description,omitempty"`
	Slug              string         `json:"slug" bson:"slug"`
	WebsiteID         string         `json:"websiteId" bson:"website_id"`
	UserID            string         `json:"userId,omitempty" bson:"user_id,omitempty"`
	TeamID            string         `json:"teamId,omitempty" bson:"team_id,omitempty"`
	ReceiveTemplateID string         `json:"receiveTemplateId,omitempty" bson:"receive_template_id,omitempty"`
	RelayTemplateID   string         `json:"relayTemplateId,omitempty" bson:"relay_template_id,omitempty"`
	RelayTargetURL    string         `json:"relayTargetUrl,omitempty" bson:"relay_target_url,omitempty"`
	Config            EndpointConfig `json:"config" bson:"config"`
	IsActive          bool           `json:"isActive" bson:"is_active"`
	CreatedAt         time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt         time.Time      `json:"updatedAt" bson:"updated_at"`
	DeletedAt         *time.Time     `json:"deletedAt,omitempty" bson:"deleted_at,omitempty"`
}

// Available reports whether the endpoint may accept postbacks.
func (e *Endpoint) Available() bool {
	return e != nil && e.IsActive && e.DeletedAt == nil
}

// EndpointConfig is the typed form of the per-endpoint config blob. It is
// schema-validated when an endpoint is saved, not on every request.
type EndpointConfig struct {
	AllowedMethods []string            `json:"allowedMethods,omitempty" bson:"allowed_methods,omitempty"`
	InputFormat    InputFormat         `json:"inputFormat,omitempty" bson:"input_format,omitempty"`
	Validation     *ValidationSettings `json:"validation,omitempty" bson:"validation,omitempty"`
	FieldMapping   []FieldMappingRule  `json:"fieldMapping" bson:"field_mapping"`
	EventConfig    *EventConfig        `json:"eventConfig,omitempty" bson:"event_config,omitempty"`
	Response       *ResponseConfig     `json:"response,omitempty" bson:"response,omitempty"`
	// Settings holds template settings such as validationSalt, pixelId or accessToken.
	Settings map[string]interface{} `json:"settings,omitempty" bson:"settings,omitempty"`
}

var defaultAllowedMethods = []string{"GET", "POST"}

// Methods returns the allowed HTTP methods, defaulting to GET and POST.
func (c EndpointConfig) Methods() []string {
	if len(c.AllowedMethods) == 0 {
		return defaultAllowedMethods
	}
	return c.AllowedMethods
}

// AllowsMethod reports whether method is in the allowed list.
func (c EndpointConfig) AllowsMethod(method string) bool {
	for _, m := range c.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

// Format returns the configured input format, defaulting to auto.
func (c EndpointConfig) Format() InputFormat {
	if c.InputFormat == "" {
		return InputFormatAuto
	}
	return c.InputFormat
}

// Setting resolves a template setting by key.
func (c EndpointConfig) Setting(key string) (interface{}, bool) {
	v, ok := c.Settings[key]
	return v, ok
}

// ValidationType names a legacy validation strategy.
type ValidationType string

const (
	ValidationNone        ValidationType = "none"
	ValidationChecksum    ValidationType = "checksum"
	ValidationHMAC        ValidationType = "hmac"
	ValidationAPIKey      ValidationType = "apiKey"
	ValidationIPAllowlist ValidationType = "ipAllowlist"
)

// ValidationSettings configures legacy (template-less) validation.
type ValidationSettings struct {
	Type   ValidationType       `json:"type" bson:"type"`
	Config ValidationParameters `json:"config" bson:"config"`
}

// ValidationParameters is the union of parameters used by the legacy validators.
type ValidationParameters struct {
	Secret            string   `json:"secret,omitempty" bson:"secret,omitempty"`
	ChecksumField     string   `json:"checksumField,omitempty" bson:"checksum_field,omitempty"`
	Fields            []string `json:"fields,omitempty" bson:"fields,omitempty"`
	SignatureField    string   `json:"signatureField,omitempty" bson:"signature_field,omitempty"`
	SignatureLocation string   `json:"signatureLocation,omitempty" bson:"signature_location,omitempty"`
	APIKey            string   `json:"apiKey,omitempty" bson:"api_key,omitempty"`
	APIKeyField       string   `json:"apiKeyField,omitempty" bson:"api_key_field,omitempty"`
	APIKeyLocation    string   `json:"apiKeyLocation,omitempty" bson:"api_key_location,omitempty"`
	AllowedIPs        []string `json:"allowedIps,omitempty" bson:"allowed_ips,omitempty"`
}

// FieldSource is the request bucket a legacy field mapping reads from.
type FieldSource string

const (
	SourceBody   FieldSource = "body"
	SourceQuery  FieldSource = "query"
	SourceHeader FieldSource = "header"
	SourcePath   FieldSource = "path"
)

// FieldMappingRule is one legacy field-mapping entry.
type FieldMappingRule struct {
	Source       FieldSource `json:"source,omitempty" bson:"source"`
	SourcePath   string      `json:"sourcePath" bson:"source_path"`
	TargetField  string      `json:"targetField" bson:"target_field"`
	Transform    string      `json:"transform,omitempty" bson:"transform,omitempty"`
	DefaultValue interface{} `json:"defaultValue,omitempty" bson:"default_value,omitempty"`
}

// EventConfig controls the event and revenue written for accepted postbacks.
type EventConfig struct {
	EventName     string `json:"eventName,omitempty" bson:"event_name,omitempty"`
	RecordRevenue bool   `json:"recordRevenue,omitempty" bson:"record_revenue,omitempty"`
	RevenueField  string `json:"revenueField,omitempty" bson:"revenue_field,omitempty"`
	CurrencyField string `json:"currencyField,omitempty" bson:"currency_field,omitempty"`
}

// ResponseMode shapes the acknowledgment returned to the postback sender.
type ResponseMode string

const (
	ResponseMinimal     ResponseMode = "minimal"
	ResponsePassthrough ResponseMode = "passthrough"
	ResponseDetailed    ResponseMode = "detailed"
)

type ResponseConfig struct {
	Mode        ResponseMode `json:"mode,omitempty" bson:"mode,omitempty"`
	SuccessCode int          `json:"successCode,omitempty" bson:"success_code,omitempty"`
}
