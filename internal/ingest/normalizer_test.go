package ingest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postback-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		format      models.InputFormat
		wantBody    map[string]interface{}
	}{
		{
			name:     "GET ignores body",
			method:   http.MethodGet,
			target:   "/x/abc?click_id=K1",
			body:     `{"a":1}`,
			format:   models.InputFormatAuto,
			wantBody: nil,
		},
		{
			name:        "json by content type",
			method:      http.MethodPost,
			target:      "/x/abc",
			contentType: "application/json; charset=utf-8",
			body:        `{"revenue":12.5,"data":{"id":"d1"}}`,
			format:      models.InputFormatAuto,
			wantBody:    map[string]interface{}{"revenue": 12.5, "data": map[string]interface{}{"id": "d1"}},
		},
		{
			name:     "auto detects json without content type",
			method:   http.MethodPost,
			target:   "/x/abc",
			body:     `{"a":"b"}`,
			format:   models.InputFormatAuto,
			wantBody: map[string]interface{}{"a": "b"},
		},
		{
			name:     "auto falls back to form",
			method:   http.MethodPost,
			target:   "/x/abc",
			body:     "a=1&b=two",
			format:   models.InputFormatAuto,
			wantBody: map[string]interface{}{"a": "1", "b": "two"},
		},
		{
			name:     "auto falls back to raw",
			method:   http.MethodPost,
			target:   "/x/abc",
			body:     "%zz",
			format:   models.InputFormatAuto,
			wantBody: map[string]interface{}{"raw": "%zz"},
		},
		{
			name:     "explicit xml",
			method:   http.MethodPut,
			target:   "/x/abc",
			body:     "<a>1</a>",
			format:   models.InputFormatXML,
			wantBody: map[string]interface{}{"_xml": "<a>1</a>"},
		},
		{
			name:        "explicit json failure leaves body nil",
			method:      http.MethodPost,
			target:      "/x/abc",
			contentType: "application/json",
			body:        "{broken",
			format:      models.InputFormatJSON,
			wantBody:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			p := n.Normalize(req, tt.format)
			assert.Equal(t, tt.wantBody, p.Body)
		})
	}
}

func TestNormalizeQueryAndHeaders(t *testing.T) {
	n := NewNormalizer(zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/x/abc?click_id=K1&revenue=12.5", nil)
	req.Header.Set("X-Signature", "sig")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	p := n.Normalize(req, models.InputFormatAuto)
	assert.Equal(t, "K1", p.Query["click_id"])
	assert.Equal(t, "12.5", p.Query["revenue"])
	assert.Equal(t, "sig", p.Headers["x-signature"])
	assert.Equal(t, "10.0.0.1", p.ClientIP)
	assert.Equal(t, "/x/abc", p.Path)
}

func TestValuePriority(t *testing.T) {
	p := &ParsedRequest{
		Query:   map[string]interface{}{"cid": "A"},
		Body:    map[string]interface{}{"cid": "B", "nested": map[string]interface{}{"id": "N"}, "only_body": "ob"},
		Headers: map[string]string{"x-token": "h"},
	}

	v, ok := p.Value("cid")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	v, _ = p.Value("only_body")
	assert.Equal(t, "ob", v)

	v, _ = p.Value("nested.id")
	assert.Equal(t, "N", v)

	v, _ = p.Value("X-Token")
	assert.Equal(t, "h", v)

	_, ok = p.Value("missing")
	assert.False(t, ok)

	assert.Equal(t, "B", p.Merged()["cid"])
}
