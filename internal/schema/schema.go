// Package schema validates endpoint and relay documents before they are
// saved.
package schema

import (
	"bytes"
	"embed"
	"strings"

	"postback-relay/pkg/errs"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed *.schema.json
var files embed.FS

// Kind names a document schema.
type Kind string

const (
	Endpoint Kind = "endpoint"
	Relay    Kind = "relay"
)

// ErrInvalid marks documents rejected by a schema.
var ErrInvalid = errs.New("invalid document")

// Validator holds the compiled schemas.
type Validator struct {
	schemas map[Kind]*jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	v := &Validator{schemas: make(map[Kind]*jsonschema.Schema)}
	for _, kind := range []Kind{Endpoint, Relay} {
		raw, err := files.ReadFile(string(kind) + ".schema.json")
		if err != nil {
			return nil, errs.Wrapf(err, "read %s schema", kind)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, errs.Wrapf(err, "parse %s schema", kind)
		}
		url := "postback-relay://schema/" + string(kind)
		if err := c.AddResource(url, doc); err != nil {
			return nil, errs.Wrapf(err, "add %s schema", kind)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, errs.Wrapf(err, "compile %s schema", kind)
		}
		v.schemas[kind] = compiled
	}
	return v, nil
}

// MustNewValidator is NewValidator for package-level setup.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a raw JSON document against a schema. Failures are marked
// with ErrInvalid and carry a one-line description of the first problem.
func (v *Validator) Validate(kind Kind, raw []byte) error {
	s, ok := v.schemas[kind]
	if !ok {
		return errs.Newf("unknown schema %q", kind)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return errs.Mark(errs.Newf("invalid JSON: %v", err), ErrInvalid)
	}
	if err := s.Validate(doc); err != nil {
		return errs.Mark(errs.New(describe(err)), ErrInvalid)
	}
	return nil
}

// describe reduces a schema error to its most specific cause.
func describe(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	lines := strings.Split(strings.TrimSpace(ve.Error()), "\n")
	return strings.TrimPrefix(strings.TrimSpace(lines[len(lines)-1]), "- ")
}
