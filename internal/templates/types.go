// Package templates is the static catalog of receive and relay templates.
package templates

import (
	"postback-relay/internal/models"
	"postback-relay/internal/tmpl"
)

// HashType selects the checksum algorithm for template validation.
type HashType string

const (
	HashNone       HashType = "none"
	HashMD5        HashType = "md5"
	HashSHA256     HashType = "sha256"
	HashHMACSHA256 HashType = "hmac-sha256"
)

// ValidationConfig describes how a receive template verifies a checksum.
type ValidationConfig struct {
	Type          HashType `json:"type"`
	Fields        []string `json:"fields"`
	ChecksumField string   `json:"checksumField"`
	SaltConfigKey string   `json:"saltConfigKey,omitempty"`
	Formula       string   `json:"formula,omitempty"`
}

// FieldType is the coercion applied to an extracted value.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
)

// FieldMapping copies a source field into a canonical target.
type FieldMapping struct {
	Source  string      `json:"source"`
	Target  string      `json:"target"`
	Type    FieldType   `json:"type,omitempty"`
	Default interface{} `json:"default,omitempty"`
}

// ConfigSetting is a user-supplied value the template needs, stored in the
// endpoint's config settings.
type ConfigSetting struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// ReceiveTemplate describes how to validate and extract an inbound postback.
type ReceiveTemplate struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Source         string            `json:"source"`
	DocsURL        string            `json:"docsUrl,omitempty"`
	Validation     *ValidationConfig `json:"validation,omitempty"`
	FieldMappings  []FieldMapping    `json:"fieldMappings"`
	StandardFields map[string]string `json:"standardFields"`
	ConfigSchema   []ConfigSetting   `json:"configSchema,omitempty"`
}

// RelayTemplate describes how to format an outbound relay call. URL, header
// and body templates are compiled when the template is registered.
type RelayTemplate struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Destination  string                 `json:"destination"`
	DocsURL      string                 `json:"docsUrl,omitempty"`
	Method       string                 `json:"method"`
	Format       models.RelayFormat     `json:"format"`
	URLTemplate  string                 `json:"urlTemplate"`
	Headers      map[string]string      `json:"headers,omitempty"`
	BodyTemplate map[string]interface{} `json:"bodyTemplate"`
	ConfigSchema []ConfigSetting        `json:"configSchema,omitempty"`

	url     *tmpl.Template
	headers map[string]*tmpl.Template
	body    tmpl.Value
}

func (t *RelayTemplate) compile() {
	t.url = tmpl.Parse(t.URLTemplate)
	t.headers = make(map[string]*tmpl.Template, len(t.Headers))
	for k, v := range t.Headers {
		t.headers[k] = tmpl.Parse(v)
	}
	t.body = tmpl.Compile(t.BodyTemplate)
}

// URL returns the compiled URL template.
func (t *RelayTemplate) URL() *tmpl.Template {
	if t.url == nil {
		t.compile()
	}
	return t.url
}

// HeaderTemplates returns the compiled header templates.
func (t *RelayTemplate) HeaderTemplates() map[string]*tmpl.Template {
	if t.headers == nil {
		t.compile()
	}
	return t.headers
}

// Body returns the compiled body template.
func (t *RelayTemplate) Body() tmpl.Value {
	if t.body == nil {
		t.compile()
	}
	return t.body
}
