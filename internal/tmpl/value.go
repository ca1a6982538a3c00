package tmpl

import (
	"sort"

	"postback-relay/internal/fields"
)

// Value is a compiled nested template: strings are templates, arrays and
// objects are walked recursively, anything else is passed through.
type Value interface {
	Render(l fields.Lookup) interface{}
	collect(seen map[string]struct{})
}

type stringValue struct{ t *Template }

func (v stringValue) Render(l fields.Lookup) interface{} { return v.t.Render(l) }

func (v stringValue) collect(seen map[string]struct{}) {
	for _, tv := range v.t.vars {
		seen[tv.Name] = struct{}{}
	}
}

type listValue []Value

func (v listValue) Render(l fields.Lookup) interface{} {
	out := make([]interface{}, len(v))
	for i, item := range v {
		out[i] = item.Render(l)
	}
	return out
}

func (v listValue) collect(seen map[string]struct{}) {
	for _, item := range v {
		item.collect(seen)
	}
}

type objectValue map[string]Value

func (v objectValue) Render(l fields.Lookup) interface{} {
	out := make(map[string]interface{}, len(v))
	for k, item := range v {
		out[k] = item.Render(l)
	}
	return out
}

func (v objectValue) collect(seen map[string]struct{}) {
	for _, item := range v {
		item.collect(seen)
	}
}

type constValue struct{ v interface{} }

func (v constValue) Render(fields.Lookup) interface{} { return v.v }

func (constValue) collect(map[string]struct{}) {}

// Compile builds a Value from a decoded JSON-like tree.
func Compile(v interface{}) Value {
	switch t := v.(type) {
	case string:
		return stringValue{Parse(t)}
	case []interface{}:
		out := make(listValue, len(t))
		for i, item := range t {
			out[i] = Compile(item)
		}
		return out
	case []map[string]interface{}:
		out := make(listValue, len(t))
		for i, item := range t {
			out[i] = Compile(item)
		}
		return out
	case map[string]interface{}:
		out := make(objectValue, len(t))
		for k, item := range t {
			out[k] = Compile(item)
		}
		return out
	case map[string]string:
		out := make(objectValue, len(t))
		for k, item := range t {
			out[k] = stringValue{Parse(item)}
		}
		return out
	}
	return constValue{v}
}

// VariableNames returns the sorted distinct variable names referenced by v.
func VariableNames(v Value) []string {
	seen := make(map[string]struct{})
	v.collect(seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
