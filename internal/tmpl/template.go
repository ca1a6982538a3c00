// Package tmpl implements the {{variable}} substitution language used by
// relay templates: {{field}}, {{field|default:value}} and {{field|number}}.
//
// Templates are tokenized once into literal and variable nodes and then
// evaluated against a fields.Lookup.
package tmpl

import (
	"strings"

	"postback-relay/internal/fields"
)

const (
	ModifierDefault = "default"
	ModifierNumber  = "number"
)

type node interface {
	render(b *strings.Builder, l fields.Lookup)
}

type literal string

func (n literal) render(b *strings.Builder, _ fields.Lookup) {
	b.WriteString(string(n))
}

// Variable is a parsed {{name|modifier:arg}} token.
type Variable struct {
	Name     string
	Modifier string
	Arg      string
	HasArg   bool
}

func (v Variable) resolve(l fields.Lookup) interface{} {
	var value interface{}
	if l != nil {
		value, _ = l.Lookup(v.Name)
	}
	if v.Modifier == ModifierDefault && fields.Empty(value) {
		if v.HasArg {
			return v.Arg
		}
		return nil
	}
	return value
}

func (v Variable) render(b *strings.Builder, l fields.Lookup) {
	value := v.resolve(l)
	if v.Modifier == ModifierNumber {
		n, ok := fields.Number(value)
		if !ok {
			b.WriteString("0")
			return
		}
		b.WriteString(fields.String(n))
		return
	}
	b.WriteString(fields.String(value))
}

// Template is a parsed template string.
type Template struct {
	raw   string
	nodes []node
	vars  []Variable
}

// Parse tokenizes s. Parsing never fails: text that does not form a valid
// token is kept as a literal.
func Parse(s string) *Template {
	t := &Template{raw: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.nodes = append(t.nodes, literal(lit.String()))
			lit.Reset()
		}
	}

	i := 0
	for i < len(s) {
		if strings.HasPrefix(s[i:], "{{") {
			if end := strings.Index(s[i+2:], "}}"); end >= 0 {
				if v, ok := parseVariable(s[i+2 : i+2+end]); ok {
					flush()
					t.nodes = append(t.nodes, v)
					t.vars = append(t.vars, v)
					i += end + 4
					continue
				}
			}
		}
		lit.WriteByte(s[i])
		i++
	}
	flush()
	return t
}

// parseVariable accepts name, name|modifier and name|modifier:arg where
// name and modifier are word characters and arg contains no '}'.
func parseVariable(inner string) (Variable, bool) {
	name, rest, hasMod := strings.Cut(inner, "|")
	if !isWord(name) {
		return Variable{}, false
	}
	v := Variable{Name: name}
	if !hasMod {
		return v, true
	}
	mod, arg, hasArg := strings.Cut(rest, ":")
	if !isWord(mod) {
		return Variable{}, false
	}
	v.Modifier = mod
	if hasArg {
		if arg == "" || strings.ContainsRune(arg, '}') {
			return Variable{}, false
		}
		v.Arg = arg
		v.HasArg = true
	}
	return v, true
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

// Render evaluates the template. Unresolved variables render as "".
func (t *Template) Render(l fields.Lookup) string {
	if len(t.vars) == 0 {
		return t.raw
	}
	var b strings.Builder
	for _, n := range t.nodes {
		n.render(&b, l)
	}
	return b.String()
}

// Variables lists the variable tokens in order of appearance.
func (t *Template) Variables() []Variable {
	return t.vars
}

func (t *Template) String() string {
	return t.raw
}
