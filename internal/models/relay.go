package models

import (
	"time"
)

// RelayFormat is the wire encoding for an outbound relay call.
type RelayFormat string

const (
	FormatJSON  RelayFormat = "json"
	FormatQuery RelayFormat = "query"
	FormatForm  RelayFormat = "form"
)

// Relay is a per-endpoint outbound forwarding target.
type Relay struct {
	ID          string            `json:"id" bson:"_id"`
	EndpointID  string            `json:"endpointId" bson:"endpoint_id"`
	Name        string            `json:"name" bson:"name"`
	TargetURL   string            `json:"targetUrl" bson:"target_url"`
	Method      string            `json:"method" bson:"method"`
	Format      RelayFormat       `json:"format" bson:"format"`
	Mapping     []RelayFieldMap   `json:"mapping,omitempty" bson:"mapping,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" bson:"headers,omitempty"`
	Conditions  *Conditions       `json:"conditions,omitempty" bson:"conditions,omitempty"`
	RetryConfig *RetryConfig      `json:"retryConfig,omitempty" bson:"retry_config,omitempty"`
	IsActive    bool              `json:"isActive" bson:"is_active"`
	CreatedAt   time.Time         `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time         `json:"updatedAt" bson:"updated_at"`
}

// RelayFieldMap copies one value (or a static value) into the outbound payload.
type RelayFieldMap struct {
	Source       string      `json:"source,omitempty" bson:"source,omitempty"`
	Target       string      `json:"target" bson:"target"`
	Transform    string      `json:"transform,omitempty" bson:"transform,omitempty"`
	DefaultValue interface{} `json:"defaultValue,omitempty" bson:"default_value,omitempty"`
	StaticValue  interface{} `json:"staticValue,omitempty" bson:"static_value,omitempty"`
}

// ConditionLogic combines rule outcomes.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "and"
	LogicOr  ConditionLogic = "or"
)

type Conditions struct {
	Rules []ConditionRule `json:"rules,omitempty" bson:"rules,omitempty"`
	Logic ConditionLogic  `json:"logic,omitempty" bson:"logic,omitempty"`
}

type ConditionRule struct {
	Field    string      `json:"field" bson:"field"`
	Operator string      `json:"operator" bson:"operator"`
	Value    interface{} `json:"value,omitempty" bson:"value,omitempty"`
}

type RetryConfig struct {
	MaxAttempts       int     `json:"maxAttempts,omitempty" bson:"max_attempts"`
	InitialDelayMs    int     `json:"initialDelayMs,omitempty" bson:"initial_delay_ms"`
	MaxDelayMs        int     `json:"maxDelayMs,omitempty" bson:"max_delay_ms"`
	BackoffMultiplier float64 `json:"backoffMultiplier,omitempty" bson:"backoff_multiplier"`
}

// DefaultRetryConfig is used when a relay has no retry configuration.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialDelayMs:    1000,
	MaxDelayMs:        30000,
	BackoffMultiplier: 2,
}

// Effective fills unset fields from DefaultRetryConfig.
func (r *RetryConfig) Effective() RetryConfig {
	if r == nil {
		return DefaultRetryConfig
	}
	out := *r
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if out.InitialDelayMs <= 0 {
		out.InitialDelayMs = DefaultRetryConfig.InitialDelayMs
	}
	if out.MaxDelayMs <= 0 {
		out.MaxDelayMs = DefaultRetryConfig.MaxDelayMs
	}
	if out.BackoffMultiplier <= 0 {
		out.BackoffMultiplier = DefaultRetryConfig.BackoffMultiplier
	}
	return out
}

// RelayLogStatus is the outcome of one delivery attempt.
type RelayLogStatus string

const (
	RelayLogSuccess  RelayLogStatus = "success"
	RelayLogRetrying RelayLogStatus = "retrying"
	RelayLogFailed   RelayLogStatus = "failed"
)

// RelayLog is one row per delivery attempt.
type RelayLog struct {
	ID           string                 `json:"id" bson:"_id"`
	RelayID      string                 `json:"relayId" bson:"relay_id"`
	RequestID    string                 `json:"requestId" bson:"request_id"`
	Attempt      int                    `json:"attempt" bson:"attempt"`
	Status       RelayLogStatus         `json:"status" bson:"status"`
	StatusCode   int                    `json:"statusCode,omitempty" bson:"status_code,omitempty"`
	RequestBody  map[string]interface{} `json:"requestBody,omitempty" bson:"request_body,omitempty"`
	ResponseBody string                 `json:"responseBody,omitempty" bson:"response_body,omitempty"`
	DurationMs   int64                  `json:"duration" bson:"duration_ms"`
	Error        string                 `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt    time.Time              `json:"createdAt" bson:"created_at"`
}
