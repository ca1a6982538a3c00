package templates

import (
	"postback-relay/internal/models"
)

func builtinReceive() []*ReceiveTemplate {
	return []*ReceiveTemplate{
		{
			ID:          "generic",
			Name:        "Generic",
			Description: "Generic postback with common field names (click_id, revenue, status)",
			Source:      "Generic",
			Validation:  &ValidationConfig{Type: HashNone},
			FieldMappings: []FieldMapping{
				{Source: "click_id", Target: "clickId", Type: TypeString},
				{Source: "clickid", Target: "clickId", Type: TypeString},
				{Source: "cid", Target: "clickId", Type: TypeString},
				{Source: "revenue", Target: "revenue", Type: TypeNumber},
				{Source: "payout", Target: "revenue", Type: TypeNumber},
				{Source: "amount", Target: "revenue", Type: TypeNumber},
				{Source: "status", Target: "status", Type: TypeString},
				{Source: "event", Target: "status", Type: TypeString},
				{Source: "transaction_id", Target: "transactionId", Type: TypeString},
				{Source: "txn_id", Target: "transactionId", Type: TypeString},
				{Source: "order_id", Target: "transactionId", Type: TypeString},
				{Source: "currency", Target: "currency", Type: TypeString},
				{Source: "sub1", Target: "subId1", Type: TypeString},
				{Source: "sub2", Target: "subId2", Type: TypeString},
				{Source: "sub3", Target: "subId3", Type: TypeString},
				{Source: "sub4", Target: "subId4", Type: TypeString},
				{Source: "sub5", Target: "subId5", Type: TypeString},
				{Source: "subid1", Target: "subId1", Type: TypeString},
				{Source: "subid2", Target: "subId2", Type: TypeString},
				{Source: "subid3", Target: "subId3", Type: TypeString},
				{Source: "subid4", Target: "subId4", Type: TypeString},
				{Source: "subid5", Target: "subId5", Type: TypeString},
			},
			StandardFields: map[string]string{
				"clickId":       "click_id",
				"revenue":       "revenue",
				"status":        "status",
				"transactionId": "transaction_id",
				"currency":      "currency",
			},
		},
		{
			ID:          "chaturbate",
			Name:        "Chaturbate",
			Description: "Chaturbate affiliate program postbacks with MD5 validation",
			Source:      "Chaturbate",
			DocsURL:     "https://chaturbate.com/affiliates/",
			Validation: &ValidationConfig{
				Type:          HashMD5,
				Fields:        []string{"log_id", "attempt"},
				ChecksumField: "checksum",
				SaltConfigKey: "validationSalt",
				Formula:       "{{salt}}{{log_id}}{{attempt}}",
			},
			FieldMappings: []FieldMapping{
				{Source: "click_id", Target: "clickId", Type: TypeString},
				{Source: "log_id", Target: "transactionId", Type: TypeString},
				{Source: "token_amount", Target: "revenue", Type: TypeNumber},
				{Source: "conversion_type", Target: "status", Type: TypeString},
				{Source: "campaign", Target: "subId1", Type: TypeString},
				{Source: "tour", Target: "subId2", Type: TypeString},
				{Source: "track", Target: "subId3", Type: TypeString},
			},
			StandardFields: map[string]string{
				"clickId":       "click_id",
				"revenue":       "token_amount",
				"status":        "conversion_type",
				"transactionId": "log_id",
			},
			ConfigSchema: []ConfigSetting{
				{
					Key:         "validationSalt",
					Label:       "Validation Salt",
					Type:        "string",
					Required:    true,
					Description: "The salt phrase configured in your Chaturbate affiliate settings",
				},
			},
		},
		{
			ID:          "clickbank",
			Name:        "ClickBank",
			Description: "ClickBank Instant Notification Service (INS) postbacks",
			Source:      "ClickBank",
			DocsURL:     "https://support.clickbank.com/hc/en-us/articles/220364967",
			// ClickBank relies on IP allowlisting and a header secret rather than a checksum.
			Validation: &ValidationConfig{Type: HashNone},
			FieldMappings: []FieldMapping{
				{Source: "ctransreceipt", Target: "transactionId", Type: TypeString},
				{Source: "ctransamount", Target: "revenue", Type: TypeNumber},
				{Source: "ccurrency", Target: "currency", Type: TypeString},
				{Source: "ctransaction", Target: "status", Type: TypeString},
				{Source: "caffitid", Target: "clickId", Type: TypeString},
				{Source: "ctid", Target: "subId1", Type: TypeString},
			},
			StandardFields: map[string]string{
				"clickId":       "caffitid",
				"revenue":       "ctransamount",
				"status":        "ctransaction",
				"transactionId": "ctransreceipt",
				"currency":      "ccurrency",
				"subId1":        "ctid",
			},
			ConfigSchema: []ConfigSetting{
				{
					Key:         "secretKey",
					Label:       "Secret Key",
					Type:        "string",
					Description: "Your ClickBank INS secret key (optional, for verification)",
				},
			},
		},
	}
}

func builtinRelay() []*RelayTemplate {
	return []*RelayTemplate{
		{
			ID:          "generic-webhook",
			Name:        "Generic Webhook",
			Description: "Forward postback data as JSON to any webhook URL",
			Destination: "Custom Webhook",
			Method:      "POST",
			Format:      models.FormatJSON,
			URLTemplate: "{{webhookUrl}}",
			Headers: map[string]string{
				"Content-Type":      "application/json",
				"X-Postback-Source": "postback-relay",
			},
			BodyTemplate: map[string]interface{}{
				"click_id":       "{{clickId}}",
				"transaction_id": "{{transactionId}}",
				"revenue":        "{{revenue}}",
				"currency":       "{{currency}}",
				"status":         "{{status}}",
				"sub_id_1":       "{{subId1}}",
				"sub_id_2":       "{{subId2}}",
				"sub_id_3":       "{{subId3}}",
				"timestamp":      "{{timestamp}}",
			},
			ConfigSchema: []ConfigSetting{
				{Key: "webhookUrl", Label: "Webhook URL", Type: "string", Required: true, Description: "The URL to send the postback data to"},
			},
		},
		{
			ID:          "facebook-capi",
			Name:        "Facebook Conversions API",
			Description: "Send conversion events to Facebook CAPI for server-side tracking",
			Destination: "Facebook",
			DocsURL:     "https://developers.facebook.com/docs/marketing-api/conversions-api",
			Method:      "POST",
			Format:      models.FormatJSON,
			URLTemplate: "https://graph.facebook.com/v18.0/{{pixelId}}/events?access_token={{accessToken}}",
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
			BodyTemplate: map[string]interface{}{
				"data": []interface{}{
					map[string]interface{}{
						"event_name":       "Purchase",
						"event_time":       "{{timestamp}}",
						"event_id":         "{{transactionId}}",
						"event_source_url": "{{sourceUrl}}",
						"action_source":    "website",
						"user_data": map[string]interface{}{
							"fbp":               "{{clickId}}",
							"client_ip_address": "{{clientIp}}",
							"client_user_agent": "{{userAgent}}",
						},
						"custom_data": map[string]interface{}{
							"currency": "{{currency|default:USD}}",
							"value":    "{{revenue}}",
						},
					},
				},
			},
			ConfigSchema: []ConfigSetting{
				{Key: "pixelId", Label: "Pixel ID", Type: "string", Required: true, Description: "Your Facebook Pixel ID"},
				{Key: "accessToken", Label: "Access Token", Type: "string", Required: true, Description: "Facebook Conversions API access token"},
			},
		},
		{
			ID:          "google-ads",
			Name:        "Google Ads Conversions",
			Description: "Send offline conversions to Google Ads",
			Destination: "Google Ads",
			DocsURL:     "https://developers.google.com/google-ads/api/docs/conversions/overview",
			Method:      "POST",
			Format:      models.FormatJSON,
			URLTemplate: "https://googleads.googleapis.com/v14/customers/{{customerId}}:uploadClickConversions",
			Headers: map[string]string{
				"Content-Type":    "application/json",
				"Authorization":   "Bearer {{accessToken}}",
				"developer-token": "{{developerToken}}",
			},
			BodyTemplate: map[string]interface{}{
				"conversions": []interface{}{
					map[string]interface{}{
						"gclid":                "{{clickId}}",
						"conversion_action":    "{{conversionAction}}",
						"conversion_date_time": "{{timestamp}}",
						"conversion_value":     "{{revenue}}",
						"currency_code":        "{{currency|default:USD}}",
						"order_id":             "{{transactionId}}",
					},
				},
				"partialFailure": true,
			},
			ConfigSchema: []ConfigSetting{
				{Key: "customerId", Label: "Customer ID", Type: "string", Required: true, Description: "Google Ads customer ID (without dashes)"},
				{Key: "conversionAction", Label: "Conversion Action", Type: "string", Required: true, Description: "Resource name of the conversion action"},
				{Key: "accessToken", Label: "Access Token", Type: "string", Required: true, Description: "OAuth2 access token"},
				{Key: "developerToken", Label: "Developer Token", Type: "string", Required: true, Description: "Google Ads API developer token"},
			},
		},
	}
}
