package transform

import (
	"postback-relay/internal/fields"
	"postback-relay/internal/models"
)

const (
	defaultRevenueField  = "revenue"
	defaultCurrencyField = "currency"
	DefaultCurrency      = "USD"
)

// RevenueExtraction is the revenue/currency pair pulled from extracted fields.
type RevenueExtraction struct {
	Revenue  float64 `json:"revenue"`
	Currency string  `json:"currency"`
}

// ExtractRevenue returns nil unless revenue recording is enabled and the
// revenue field parses to a positive number.
func ExtractRevenue(data map[string]interface{}, cfg *models.EventConfig) *RevenueExtraction {
	if cfg == nil || !cfg.RecordRevenue {
		return nil
	}
	revenueField := cfg.RevenueField
	if revenueField == "" {
		revenueField = defaultRevenueField
	}
	currencyField := cfg.CurrencyField
	if currencyField == "" {
		currencyField = defaultCurrencyField
	}

	raw, ok := data[revenueField]
	if !ok {
		return nil
	}
	revenue, ok := fields.Number(raw)
	if !ok || revenue <= 0 {
		return nil
	}

	currency, _ := data[currencyField].(string)
	if currency == "" {
		currency = DefaultCurrency
	}
	return &RevenueExtraction{Revenue: revenue, Currency: currency}
}
