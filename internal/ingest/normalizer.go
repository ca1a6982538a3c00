package ingest

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"postback-relay/internal/models"

	"go.uber.org/zap"
)

// MaxBodyBytes caps how much of a postback body is read.
const MaxBodyBytes = 1 << 20

// Normalizer parses inbound requests according to an endpoint's input format.
type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// Normalize reads the request once. Body decoding failures are logged and
// leave Body nil; they never fail the request.
func (n *Normalizer) Normalize(r *http.Request, format models.InputFormat) *ParsedRequest {
	p := &ParsedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Host:        r.Host,
		RawQuery:    r.URL.RawQuery,
		Query:       make(map[string]interface{}),
		Headers:     make(map[string]string, len(r.Header)),
		ContentType: r.Header.Get("Content-Type"),
		ClientIP:    ClientIP(r),
		UserAgent:   r.UserAgent(),
	}

	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			p.Query[k] = vs[len(vs)-1]
		}
	}
	for k, vs := range r.Header {
		p.Headers[strings.ToLower(k)] = strings.Join(vs, ", ")
	}

	if !hasBody(r.Method) || r.Body == nil {
		return p
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		n.logger.Warn("Failed to read postback body", zap.String("path", p.Path), zap.Error(err))
		return p
	}
	p.RawBody = string(raw)
	if len(raw) == 0 {
		return p
	}

	body, err := decodeBody(p.RawBody, p.ContentType, format)
	if err != nil {
		n.logger.Warn("Failed to parse postback body",
			zap.String("path", p.Path),
			zap.String("format", string(format)),
			zap.Error(err))
		return p
	}
	p.Body = body
	return p
}

func decodeBody(raw, contentType string, format models.InputFormat) (map[string]interface{}, error) {
	switch format {
	case models.InputFormatJSON:
		return decodeJSON(raw)
	case models.InputFormatXML:
		return map[string]interface{}{"_xml": raw}, nil
	case models.InputFormatForm:
		return decodeForm(raw)
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		return decodeJSON(raw)
	case strings.Contains(ct, "application/xml"), strings.Contains(ct, "text/xml"):
		return map[string]interface{}{"_xml": raw}, nil
	case strings.Contains(ct, "x-www-form-urlencoded"):
		return decodeForm(raw)
	}

	if body, err := decodeJSON(raw); err == nil {
		return body, nil
	}
	if body, err := decodeForm(raw); err == nil {
		return body, nil
	}
	return map[string]interface{}{"raw": raw}, nil
}

// decodeJSON accepts only JSON objects; numbers are kept as float64.
func decodeJSON(raw string) (map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, err
	}
	return body, nil
}

func decodeForm(raw string) (map[string]interface{}, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	body := make(map[string]interface{}, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			body[k] = vs[len(vs)-1]
		}
	}
	return body, nil
}

// ClientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then
// the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
