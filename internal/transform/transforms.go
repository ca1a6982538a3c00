// Package transform maps raw request fields onto the canonical field set,
// either through a receive template or an endpoint's legacy field mapping.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"postback-relay/internal/fields"
)

// Func converts one extracted value. A returned error drops the field.
type Func func(v interface{}) (interface{}, error)

var funcs = map[string]Func{
	"toString": func(v interface{}) (interface{}, error) {
		return fields.String(v), nil
	},
	"toNumber": func(v interface{}) (interface{}, error) {
		n, ok := fields.Number(v)
		if !ok {
			return float64(0), nil
		}
		return n, nil
	},
	"toFloat": func(v interface{}) (interface{}, error) {
		n, ok := fields.Number(v)
		if !ok {
			return float64(0), nil
		}
		return math.Round(n*100) / 100, nil
	},
	"toBoolean": func(v interface{}) (interface{}, error) {
		if b, ok := v.(bool); ok {
			return b, nil
		}
		s := strings.ToLower(fields.String(v))
		return s == "true" || s == "1" || s == "yes", nil
	},
	"toLowerCase": func(v interface{}) (interface{}, error) {
		return strings.ToLower(fields.String(v)), nil
	},
	"toUpperCase": func(v interface{}) (interface{}, error) {
		return strings.ToUpper(fields.String(v)), nil
	},
	"trim": func(v interface{}) (interface{}, error) {
		return strings.TrimSpace(fields.String(v)), nil
	},
	"parseJson": func(v interface{}) (interface{}, error) {
		var out interface{}
		if err := json.Unmarshal([]byte(fields.String(v)), &out); err != nil {
			return nil, fmt.Errorf("parseJson: %v", err)
		}
		return out, nil
	},
	"timestampToDate": func(v interface{}) (interface{}, error) {
		return toDate(v, time.Second)
	},
	"timestampMsToDate": func(v interface{}) (interface{}, error) {
		return toDate(v, time.Millisecond)
	},
	"extractDomain": func(v interface{}) (interface{}, error) {
		u, err := absoluteURL(v)
		if err != nil {
			return nil, err
		}
		return u.Hostname(), nil
	},
	"extractPath": func(v interface{}) (interface{}, error) {
		u, err := absoluteURL(v)
		if err != nil {
			return nil, err
		}
		if u.Path == "" {
			return "/", nil
		}
		return u.Path, nil
	},
}

// Lookup returns the named transform.
func Lookup(name string) (Func, bool) {
	f, ok := funcs[name]
	return f, ok
}

func toDate(v interface{}, unit time.Duration) (interface{}, error) {
	n, ok := fields.Number(v)
	if !ok {
		return nil, fmt.Errorf("not a timestamp: %q", fields.String(v))
	}
	return time.Unix(0, int64(n*float64(unit))).UTC(), nil
}

func absoluteURL(v interface{}) (*url.URL, error) {
	s := fields.String(v)
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("not an absolute URL: %q", s)
	}
	return u, nil
}
