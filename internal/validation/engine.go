package validation

import (
	"postback-relay/internal/ingest"
	"postback-relay/internal/models"
	"postback-relay/internal/templates"
)

// Validate picks the template path when a receive template is given and
// the legacy path otherwise.
func Validate(req *ingest.ParsedRequest, endpoint *models.Endpoint, t *templates.ReceiveTemplate) Result {
	if t != nil {
		return ValidateTemplate(req, t, endpoint.Config)
	}
	return ValidateLegacy(req, endpoint.Config.Validation)
}
