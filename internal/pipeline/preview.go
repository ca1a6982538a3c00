package pipeline

import (
	"context"
	"net/http"

	"postback-relay/internal/attribution"
	"postback-relay/internal/models"
	"postback-relay/internal/relay"
	"postback-relay/internal/transform"
	"postback-relay/internal/validation"
	"postback-relay/pkg/errs"
)

// Preview is a dry run of Process. Nothing is persisted, no click is marked
// converted and no relay call is made.
type Preview struct {
	Request      map[string]interface{}       `json:"request"`
	Validation   *models.ValidationOutcome    `json:"validation"`
	ParsedFields map[string]interface{}       `json:"parsedFields"`
	Fields       map[string]interface{}       `json:"fields,omitempty"`
	ClickID      string                       `json:"clickId,omitempty"`
	Revenue      *transform.RevenueExtraction `json:"revenue,omitempty"`
	Relays       []RelayPreview               `json:"relays,omitempty"`
}

// RelayPreview is the call a relay would make for the previewed request.
type RelayPreview struct {
	RelayID     string            `json:"relayId,omitempty"`
	TemplateID  string            `json:"templateId,omitempty"`
	Name        string            `json:"name"`
	Fires       bool              `json:"fires"`
	Method      string            `json:"method,omitempty"`
	URL         string            `json:"url,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        interface{}       `json:"body,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Preview runs r through the endpoint's normalization, validation,
// extraction and relay formatting.
func (s *Service) Preview(ctx context.Context, endpoint *models.Endpoint, r *http.Request) (*Preview, error) {
	req := s.normalizer.Normalize(r, endpoint.Config.Format())
	tpl := s.receiveTemplate(endpoint)

	p := &Preview{
		Request: map[string]interface{}{
			"method":      req.Method,
			"query":       req.Query,
			"headers":     req.Headers,
			"body":        req.Body,
			"contentType": req.ContentType,
			"clientIp":    req.ClientIP,
		},
		ParsedFields: s.extractor.TemplateFields(req, tpl),
		ClickID:      attribution.CandidateID(req.Merged()),
	}

	result := validation.Validate(req, endpoint, tpl)
	p.Validation = result.Outcome()
	if !result.Valid {
		return p, nil
	}

	p.Fields = s.extractor.Fields(req, endpoint, tpl)
	p.Revenue = transform.ExtractRevenue(p.Fields, endpoint.Config.EventConfig)

	if endpoint.RelayTemplateID != "" {
		if t, ok := s.registry.Relay(endpoint.RelayTemplateID); ok {
			rp := RelayPreview{TemplateID: t.ID, Name: t.Name, Fires: true}
			out, body, err := relay.FormatTemplate(t, endpoint, p.Fields, s.now())
			rp.Body = body
			if err != nil {
				rp.Error = err.Error()
			} else {
				rp.Method, rp.URL, rp.ContentType, rp.Headers = out.Method, out.URL, out.ContentType, out.Headers
			}
			p.Relays = append(p.Relays, rp)
			return p, nil
		}
	}

	relays, err := s.store.ListActiveRelays(ctx, endpoint.ID)
	if err != nil {
		return nil, errs.Wrap(err, "list relays")
	}
	for _, r := range relays {
		rp := RelayPreview{RelayID: r.ID, Name: r.Name, Method: r.Method, Headers: r.Headers}
		rp.Fires = relay.Evaluate(r.Conditions, p.Fields)
		if rp.Fires {
			payload := relay.ApplyMapping(p.Fields, r.Mapping)
			rp.Body = payload
			url, contentType, _, err := relay.Encode(r.Format, r.TargetURL, payload)
			if err != nil {
				rp.Error = err.Error()
			}
			rp.URL, rp.ContentType = url, contentType
		}
		p.Relays = append(p.Relays, rp)
	}
	return p, nil
}
