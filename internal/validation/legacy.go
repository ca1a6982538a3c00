package validation

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"postback-relay/internal/fields"
	"postback-relay/internal/ingest"
	"postback-relay/internal/models"
)

const (
	defaultChecksumField  = "checksum"
	defaultSignatureField = "signature"
	defaultAPIKeyField    = "api_key"
	locationHeader        = "header"
)

var bearerPrefix = regexp.MustCompile(`(?i)^Bearer\s+`)

// ValidateLegacy applies the endpoint's validation settings. Unknown types
// pass. Checksum and signature comparisons are case-sensitive.
func ValidateLegacy(req *ingest.ParsedRequest, settings *models.ValidationSettings) Result {
	if settings == nil {
		return pass()
	}
	switch settings.Type {
	case models.ValidationChecksum:
		return validateChecksum(req, settings.Config)
	case models.ValidationHMAC:
		return validateHMAC(req, settings.Config)
	case models.ValidationAPIKey:
		return validateAPIKey(req, settings.Config)
	case models.ValidationIPAllowlist:
		return validateIPAllowlist(req, settings.Config)
	}
	return pass()
}

func validateChecksum(req *ingest.ParsedRequest, cfg models.ValidationParameters) Result {
	field := orDefault(cfg.ChecksumField, defaultChecksumField)
	if cfg.Secret == "" {
		return misconfigured("Checksum validation requires secret")
	}

	all := req.Merged()
	received := all[field]
	if fields.Empty(received) {
		return mismatch(fmt.Sprintf("Missing %s parameter", field))
	}

	var b strings.Builder
	for _, f := range cfg.Fields {
		if v, ok := all[f]; ok {
			b.WriteString(fields.String(v))
		}
	}
	b.WriteString(cfg.Secret)
	sum := sha512.Sum512([]byte(b.String()))
	expected := hex.EncodeToString(sum[:])

	if fields.String(received) != expected {
		return mismatch("Checksum validation failed")
	}
	return pass()
}

func validateHMAC(req *ingest.ParsedRequest, cfg models.ValidationParameters) Result {
	field := orDefault(cfg.SignatureField, defaultSignatureField)
	if cfg.Secret == "" {
		return misconfigured("HMAC validation requires secret")
	}

	var signature string
	if orDefault(cfg.SignatureLocation, locationHeader) == locationHeader {
		signature = req.Headers[strings.ToLower(field)]
	} else {
		signature = paramValue(req, field)
	}
	if signature == "" {
		return mismatch(fmt.Sprintf("Missing %s", field))
	}

	payload := req.RawBody
	if payload == "" {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(req.Query); err != nil {
			return misconfigured(fmt.Sprintf("Validation error: %v", err))
		}
		payload = strings.TrimSuffix(buf.String(), "\n")
	}
	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))

	if signature != expected {
		return mismatch("HMAC validation failed")
	}
	return pass()
}

func validateAPIKey(req *ingest.ParsedRequest, cfg models.ValidationParameters) Result {
	field := orDefault(cfg.APIKeyField, defaultAPIKeyField)
	if cfg.APIKey == "" {
		return misconfigured("API key validation requires apiKey")
	}

	var received string
	if orDefault(cfg.APIKeyLocation, locationHeader) == locationHeader {
		received = req.Headers[strings.ToLower(field)]
		if received == "" {
			received = bearerPrefix.ReplaceAllString(req.Headers["authorization"], "")
		}
	} else {
		received = paramValue(req, field)
	}
	if received == "" {
		return mismatch(fmt.Sprintf("Missing %s", field))
	}
	if received != cfg.APIKey {
		return mismatch("Invalid API key")
	}
	return pass()
}

func validateIPAllowlist(req *ingest.ParsedRequest, cfg models.ValidationParameters) Result {
	var clientIP string
	if xff := req.Headers["x-forwarded-for"]; xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		clientIP = strings.TrimSpace(first)
	}
	if clientIP == "" {
		clientIP = req.Headers["x-real-ip"]
	}
	if clientIP == "" {
		return mismatch("Could not determine client IP")
	}
	for _, ip := range cfg.AllowedIPs {
		if ip == clientIP {
			return pass()
		}
	}
	r := mismatch("IP not in allowlist")
	r.Details = map[string]interface{}{"clientIp": clientIP}
	return r
}

// paramValue reads a string from the query, then the body.
func paramValue(req *ingest.ParsedRequest, field string) string {
	if s, ok := req.Query[field].(string); ok && s != "" {
		return s
	}
	if s, ok := req.Body[field].(string); ok {
		return s
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
