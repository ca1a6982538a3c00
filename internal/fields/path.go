// Package fields holds the typed dot-path representation and the loose
// value coercions shared by extraction, templating and relay mapping.
package fields

import (
	"strings"
)

// Path is a parsed dot-notation field path such as "data.user.id".
type Path []string

// ParsePath splits a dot-notation path into segments.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Get walks m along the path. The second return is false when any segment is
// missing or a non-object is traversed.
func (p Path) Get(m map[string]interface{}) (interface{}, bool) {
	if len(p) == 0 || m == nil {
		return nil, false
	}
	var current interface{} = m
	for _, seg := range p {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes v at the path, creating intermediate objects and replacing any
// non-object value found on the way.
func (p Path) Set(m map[string]interface{}, v interface{}) {
	if len(p) == 0 || m == nil {
		return
	}
	current := m
	for _, seg := range p[:len(p)-1] {
		next, ok := asObject(current[seg])
		if !ok {
			next = make(map[string]interface{})
		}
		current[seg] = next
		current = next
	}
	current[p[len(p)-1]] = v
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch o := v.(type) {
	case map[string]interface{}:
		return o, o != nil
	case map[string]string:
		out := make(map[string]interface{}, len(o))
		for k, s := range o {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

// Lookup resolves a field by name. Implementations decide how the name is
// interpreted (flat key, dot path, header).
type Lookup interface {
	Lookup(name string) (interface{}, bool)
}

// Map is a Lookup over a flat map, falling back to a dot-path walk.
type Map map[string]interface{}

func (m Map) Lookup(name string) (interface{}, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	if strings.Contains(name, ".") {
		return ParsePath(name).Get(m)
	}
	return nil, false
}

// Chain tries each Lookup in order and returns the first non-nil hit.
type Chain []Lookup

func (c Chain) Lookup(name string) (interface{}, bool) {
	for _, l := range c {
		if l == nil {
			continue
		}
		if v, ok := l.Lookup(name); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Merge returns a shallow copy of the maps combined left to right; later
// maps win on key collision.
func Merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
