// Package relay formats and delivers outbound relay calls, with
// conditional routing, per-relay retry and a bounded worker pool.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"postback-relay/internal/fields"
	"postback-relay/internal/models"
)

const (
	// MaxResponseBody caps how much of a target's response is kept.
	MaxResponseBody  = 1000
	DefaultUserAgent = "Postback-Relay/1.0"
)

// Request is a fully formatted outbound call.
type Request struct {
	Method      string
	URL         string
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// Response is what came back from the target.
type Response struct {
	StatusCode int
	Body       string
	DurationMs int64
}

// Encode renders a payload for a relay format. "query" moves the payload
// into the URL's query string, "form" url-encodes it and anything else is
// JSON.
func Encode(format models.RelayFormat, target string, payload map[string]interface{}) (string, string, []byte, error) {
	switch format {
	case models.FormatQuery:
		u, err := url.Parse(target)
		if err != nil {
			return "", "", nil, fmt.Errorf("invalid target URL: %v", err)
		}
		q := u.Query()
		for k, v := range payload {
			if v != nil {
				q.Set(k, fields.String(v))
			}
		}
		u.RawQuery = q.Encode()
		return u.String(), "text/plain", nil, nil
	case models.FormatForm:
		form := url.Values{}
		for k, v := range payload {
			if v != nil {
				form.Set(k, fields.String(v))
			}
		}
		return target, "application/x-www-form-urlencoded", []byte(form.Encode()), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", nil, fmt.Errorf("marshal payload: %v", err)
	}
	return target, "application/json", body, nil
}

// Sender performs outbound HTTP calls.
type Sender struct {
	client    *http.Client
	userAgent string
}

func NewSender(timeout time.Duration, userAgent string) *Sender {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Sender{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Send issues the call. Headers are applied in order Content-Type,
// User-Agent, then the request's own headers. GET and HEAD never carry a
// body. A non-2xx status is returned as an error along with the response.
func (s *Sender) Send(ctx context.Context, r Request) (Response, error) {
	var body io.Reader
	if len(r.Body) > 0 && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %v", err)
	}
	req.Header.Set("Content-Type", r.ContentType)
	req.Header.Set("User-Agent", s.userAgent)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Response{DurationMs: time.Since(start).Milliseconds()}, err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	out := Response{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if readErr != nil {
		return out, fmt.Errorf("read response: %v", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("Relay failed: %d %s", resp.StatusCode, out.Body)
	}
	return out, nil
}
