package fields

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// String renders v the way it appears in a URL, header or checksum input.
// nil renders as the empty string; objects and arrays render as JSON.
func String(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return "Infinity"
		}
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Number coerces v to a float64 using loose numeric rules: blank strings
// and nil are zero, booleans are 1 or 0. ok is false when v is not numeric.
func Number(v interface{}) (f float64, ok bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Empty reports whether v is absent for defaulting purposes: nil or "".
func Empty(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Truthy reports whether v is one of the accepted boolean spellings.
func Truthy(v interface{}, spellings ...string) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		for _, s := range spellings {
			if t == s {
				return true
			}
		}
	}
	return false
}
