package transform

import (
	"postback-relay/internal/fields"
	"postback-relay/internal/ingest"
	"postback-relay/internal/models"
	"postback-relay/internal/templates"

	"go.uber.org/zap"
)

// commonFields are captured for template-less endpoints.
var commonFields = []string{
	"click_id", "clickid", "cid",
	"revenue", "payout", "amount",
	"status", "event",
	"transaction_id", "txn_id", "order_id",
	"currency",
	"sub1", "sub2", "sub3", "sub4", "sub5",
	"subid1", "subid2", "subid3", "subid4", "subid5",
}

// Extractor produces the canonical field map for a request.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// TemplateFields applies a receive template's field mappings. Later
// mappings overwrite earlier ones for the same target; targets with no
// value and no default are omitted. A nil template yields the common
// fields found in the request.
func (e *Extractor) TemplateFields(req *ingest.ParsedRequest, t *templates.ReceiveTemplate) map[string]interface{} {
	out := make(map[string]interface{})
	if t == nil {
		for _, name := range commonFields {
			if v, ok := req.Value(name); ok {
				out[name] = v
			}
		}
		return out
	}

	for _, m := range t.FieldMappings {
		v, ok := req.Value(m.Source)
		if !ok || v == nil {
			if m.Default == nil {
				continue
			}
			v = m.Default
		}
		out[m.Target] = Coerce(v, m.Type)
	}
	return out
}

// Coerce applies a template field type. Numbers that fail to parse keep the
// original value.
func Coerce(v interface{}, t templates.FieldType) interface{} {
	switch t {
	case templates.TypeNumber:
		if n, ok := fields.Number(v); ok {
			return n
		}
		return v
	case templates.TypeBoolean:
		return fields.Truthy(v, "true", "1")
	}
	return fields.String(v)
}

// LegacyFields applies the endpoint's field mapping. With no mapping the
// query and body are merged, body winning.
func (e *Extractor) LegacyFields(req *ingest.ParsedRequest, rules []models.FieldMappingRule) map[string]interface{} {
	if rules == nil {
		return req.Merged()
	}

	out := make(map[string]interface{}, len(rules))
	for _, rule := range rules {
		v, ok := req.Extract(string(rule.Source), rule.SourcePath)
		if !ok && rule.DefaultValue != nil {
			v, ok = rule.DefaultValue, true
		}
		if !ok {
			continue
		}

		if rule.Transform != "" {
			if fn, known := Lookup(rule.Transform); known {
				transformed, err := fn(v)
				if err != nil {
					e.logger.Warn("Field transform failed",
						zap.String("field", rule.TargetField),
						zap.String("transform", rule.Transform),
						zap.Error(err))
					continue
				}
				v = transformed
			}
		}
		out[rule.TargetField] = v
	}
	return out
}

// Fields returns the transformed data used for events and relays: template
// fields when a receive template is configured, legacy fields otherwise.
func (e *Extractor) Fields(req *ingest.ParsedRequest, endpoint *models.Endpoint, t *templates.ReceiveTemplate) map[string]interface{} {
	if t != nil {
		return e.TemplateFields(req, t)
	}
	return e.LegacyFields(req, endpoint.Config.FieldMapping)
}
