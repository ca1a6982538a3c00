package relay

import (
	"math"
	"strings"

	"postback-relay/internal/fields"
	"postback-relay/internal/models"
)

// ApplyMapping builds the outbound payload. Static values win over source
// lookups; a missing source falls back to the default. An empty mapping
// forwards data unchanged.
func ApplyMapping(data map[string]interface{}, mapping []models.RelayFieldMap) map[string]interface{} {
	if len(mapping) == 0 {
		return fields.Merge(data)
	}

	out := make(map[string]interface{})
	for _, m := range mapping {
		var v interface{}
		var ok bool
		if m.StaticValue != nil {
			v, ok = m.StaticValue, true
		} else {
			v, ok = fields.ParsePath(m.Source).Get(data)
			if !ok && m.DefaultValue != nil {
				v, ok = m.DefaultValue, true
			}
			if ok && m.Transform != "" {
				v = applyTransform(v, m.Transform)
			}
		}
		if !ok {
			continue
		}
		fields.ParsePath(m.Target).Set(out, v)
	}
	return out
}

// applyTransform implements the relay mapping transforms. Numeric
// transforms yield nil when the value is not a number.
func applyTransform(v interface{}, name string) interface{} {
	switch name {
	case "string":
		return fields.String(v)
	case "number":
		return numberOrNil(v, func(f float64) float64 { return f })
	case "boolean":
		return truthy(v)
	case "uppercase":
		return strings.ToUpper(fields.String(v))
	case "lowercase":
		return strings.ToLower(fields.String(v))
	case "trim":
		return strings.TrimSpace(fields.String(v))
	case "round":
		return numberOrNil(v, func(f float64) float64 { return math.Floor(f + 0.5) })
	case "floor":
		return numberOrNil(v, math.Floor)
	case "ceil":
		return numberOrNil(v, math.Ceil)
	}
	return v
}

func numberOrNil(v interface{}, fn func(float64) float64) interface{} {
	f, ok := fields.Number(v)
	if !ok {
		return nil
	}
	return fn(f)
}

// truthy follows loose truthiness: empty strings, zero, false and nil are false.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if isNumber(v) {
		f, _ := fields.Number(v)
		return f != 0 && !math.IsNaN(f)
	}
	return true
}
