package validation

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"postback-relay/internal/fields"
	"postback-relay/internal/ingest"
	"postback-relay/internal/templates"
	"postback-relay/internal/tmpl"
)

// Settings resolves template settings such as the checksum salt.
type Settings interface {
	Setting(key string) (interface{}, bool)
}

// ValidateTemplate checks the request against a receive template's
// checksum rules. The comparison is case-insensitive.
func ValidateTemplate(req *ingest.ParsedRequest, t *templates.ReceiveTemplate, settings Settings) Result {
	cfg := t.Validation
	if cfg == nil || cfg.Type == templates.HashNone || cfg.Type == "" {
		return pass()
	}

	received, _ := req.Value(cfg.ChecksumField)
	if fields.Empty(received) {
		return mismatch(fmt.Sprintf("Checksum field %q not found in request", cfg.ChecksumField))
	}

	var salt string
	if cfg.SaltConfigKey != "" && settings != nil {
		if v, ok := settings.Setting(cfg.SaltConfigKey); ok {
			salt = fields.String(v)
		}
		if salt == "" {
			return misconfigured(fmt.Sprintf("Validation setting %q is not configured", cfg.SaltConfigKey))
		}
	}

	input := checksumInput(req, cfg, salt)
	expected, err := computeHash(cfg.Type, input, salt)
	if err != nil {
		return misconfigured(fmt.Sprintf("Validation error: %v", err))
	}

	receivedStr := fields.String(received)
	r := Result{
		Valid:    strings.EqualFold(expected, receivedStr),
		Expected: expected,
		Received: receivedStr,
	}
	if !r.Valid {
		r.Error = "Checksum mismatch"
		r.class = ErrMismatch
	}
	return r
}

// checksumInput renders the formula, or salt followed by the declared
// fields in order when no formula is set.
func checksumInput(req *ingest.ParsedRequest, cfg *templates.ValidationConfig, salt string) string {
	if cfg.Formula != "" {
		return tmpl.Parse(cfg.Formula).Render(saltLookup{salt: salt, req: req})
	}
	var b strings.Builder
	b.WriteString(salt)
	for _, f := range cfg.Fields {
		v, _ := req.Value(f)
		b.WriteString(fields.String(v))
	}
	return b.String()
}

type saltLookup struct {
	salt string
	req  *ingest.ParsedRequest
}

func (l saltLookup) Lookup(name string) (interface{}, bool) {
	if name == "salt" {
		return l.salt, true
	}
	return l.req.Value(name)
}

func computeHash(t templates.HashType, data, secret string) (string, error) {
	switch t {
	case templates.HashMD5:
		sum := md5.Sum([]byte(data))
		return hex.EncodeToString(sum[:]), nil
	case templates.HashSHA256:
		sum := sha256.Sum256([]byte(data))
		return hex.EncodeToString(sum[:]), nil
	case templates.HashHMACSHA256:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(data))
		return hex.EncodeToString(mac.Sum(nil)), nil
	}
	return "", fmt.Errorf("unsupported checksum type %q", t)
}
