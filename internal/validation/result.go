// Package validation verifies inbound postbacks, either through a receive
// template's checksum rules or through an endpoint's legacy validation config.
package validation

import (
	"postback-relay/internal/models"
	"postback-relay/pkg/errs"
)

var (
	// ErrConfiguration marks failures caused by a missing secret or salt.
	ErrConfiguration = errs.New("validation misconfigured")
	// ErrMismatch marks checksum, signature, key, IP and missing-field failures.
	ErrMismatch = errs.New("validation failed")
)

// Result is the outcome of validating one request.
type Result struct {
	Valid    bool
	Error    string
	Expected string
	Received string
	Details  map[string]interface{}

	class error
}

func pass() Result {
	return Result{Valid: true}
}

func mismatch(msg string) Result {
	return Result{Error: msg, class: ErrMismatch}
}

func misconfigured(msg string) Result {
	return Result{Error: msg, class: ErrConfiguration}
}

// Err returns nil for a valid result, otherwise an error carrying the
// failure message and marked with ErrConfiguration or ErrMismatch.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	class := r.class
	if class == nil {
		class = ErrMismatch
	}
	msg := r.Error
	if msg == "" {
		msg = "Validation failed"
	}
	return errs.Mark(errs.New(msg), class)
}

// Reason is a short label for metrics.
func (r Result) Reason() string {
	switch {
	case r.Valid:
		return "none"
	case r.class == ErrConfiguration:
		return "configuration"
	default:
		return "mismatch"
	}
}

// Outcome converts the result into its persisted form.
func (r Result) Outcome() *models.ValidationOutcome {
	return &models.ValidationOutcome{
		IsValid:  r.Valid,
		Expected: r.Expected,
		Received: r.Received,
		Error:    r.Error,
		Details:  r.Details,
	}
}
