package relay

import (
	"strings"

	"postback-relay/internal/fields"
	"postback-relay/internal/models"
)

// Evaluate reports whether a relay's conditions hold for data. No rules
// means the relay always fires; logic defaults to "and".
func Evaluate(c *models.Conditions, data map[string]interface{}) bool {
	if c == nil || len(c.Rules) == 0 {
		return true
	}
	if c.Logic == models.LogicOr {
		for _, r := range c.Rules {
			if evaluateRule(r, data) {
				return true
			}
		}
		return false
	}
	for _, r := range c.Rules {
		if !evaluateRule(r, data) {
			return false
		}
	}
	return true
}

func evaluateRule(r models.ConditionRule, data map[string]interface{}) bool {
	v, _ := fields.ParsePath(r.Field).Get(data)

	switch r.Operator {
	case "eq":
		return strictEqual(v, r.Value)
	case "neq":
		return !strictEqual(v, r.Value)
	case "gt", "gte", "lt", "lte":
		return compareNumbers(r.Operator, v, r.Value)
	case "contains", "startsWith", "endsWith":
		return compareStrings(r.Operator, v, r.Value)
	case "exists":
		return v != nil
	case "notExists":
		return v == nil
	}
	return false
}

// strictEqual compares without type coercion: "10" never equals 10, but
// numbers compare by value regardless of their Go type.
func strictEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) && isNumber(b) {
		x, _ := fields.Number(a)
		y, _ := fields.Number(b)
		return x == y
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

// compareStrings matches the string forms of both sides. An absent field or
// rule value never matches.
func compareStrings(op string, a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	x, y := fields.String(a), fields.String(b)
	switch op {
	case "contains":
		return strings.Contains(x, y)
	case "startsWith":
		return strings.HasPrefix(x, y)
	}
	return strings.HasSuffix(x, y)
}

// compareNumbers coerces both sides; a side that is absent or not numeric
// makes every comparison false.
func compareNumbers(op string, a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	x, ok := fields.Number(a)
	if !ok {
		return false
	}
	y, ok := fields.Number(b)
	if !ok {
		return false
	}
	switch op {
	case "gt":
		return x > y
	case "gte":
		return x >= y
	case "lt":
		return x < y
	}
	return x <= y
}
