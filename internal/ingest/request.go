// Package ingest turns raw HTTP requests into a uniform ParsedRequest.
package ingest

import (
	"strings"

	"postback-relay/internal/fields"
)

// ParsedRequest is the normalized view of one inbound postback.
type ParsedRequest struct {
	Method      string
	Path        string
	Host        string
	RawQuery    string
	Query       map[string]interface{}
	Headers     map[string]string
	Body        map[string]interface{}
	RawBody     string
	ContentType string
	ClientIP    string
	UserAgent   string
}

// Value resolves a field by name. Query parameters win, then a flat body
// key, then a dot path into the body, then headers matched case-insensitively.
func (r *ParsedRequest) Value(name string) (interface{}, bool) {
	if v, ok := r.Query[name]; ok {
		return v, true
	}
	if r.Body != nil {
		if v, ok := r.Body[name]; ok {
			return v, true
		}
		if v, ok := fields.ParsePath(name).Get(r.Body); ok {
			return v, true
		}
	}
	lower := strings.ToLower(name)
	for k, v := range r.Headers {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return nil, false
}

// Lookup adapts Value to fields.Lookup.
func (r *ParsedRequest) Lookup(name string) (interface{}, bool) {
	return r.Value(name)
}

// Merged returns query and body combined; body keys win on collision.
func (r *ParsedRequest) Merged() map[string]interface{} {
	return fields.Merge(r.Query, r.Body)
}

// Extract reads a dot path from one request bucket. The "path" source is
// accepted for compatibility but never resolves.
func (r *ParsedRequest) Extract(source, path string) (interface{}, bool) {
	var bucket map[string]interface{}
	switch source {
	case "body":
		bucket = r.Body
	case "query":
		bucket = r.Query
	case "header":
		bucket = make(map[string]interface{}, len(r.Headers))
		for k, v := range r.Headers {
			bucket[k] = v
		}
	default:
		return nil, false
	}
	return fields.ParsePath(path).Get(bucket)
}
