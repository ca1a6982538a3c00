package templates

import (
	"fmt"
	"sort"
)

// Registry indexes receive and relay templates by id.
type Registry struct {
	receive map[string]*ReceiveTemplate
	relay   map[string]*RelayTemplate
}

// NewRegistry builds a registry and rejects empty or duplicate ids.
func NewRegistry(receive []*ReceiveTemplate, relay []*RelayTemplate) (*Registry, error) {
	r := &Registry{
		receive: make(map[string]*ReceiveTemplate, len(receive)),
		relay:   make(map[string]*RelayTemplate, len(relay)),
	}
	for _, t := range receive {
		if t.ID == "" {
			return nil, fmt.Errorf("receive template %q has no id", t.Name)
		}
		if _, dup := r.receive[t.ID]; dup {
			return nil, fmt.Errorf("duplicate receive template id %q", t.ID)
		}
		r.receive[t.ID] = t
	}
	for _, t := range relay {
		if t.ID == "" {
			return nil, fmt.Errorf("relay template %q has no id", t.Name)
		}
		if _, dup := r.relay[t.ID]; dup {
			return nil, fmt.Errorf("duplicate relay template id %q", t.ID)
		}
		t.compile()
		r.relay[t.ID] = t
	}
	return r, nil
}

// Receive looks up a receive template.
func (r *Registry) Receive(id string) (*ReceiveTemplate, bool) {
	t, ok := r.receive[id]
	return t, ok
}

// Relay looks up a relay template.
func (r *Registry) Relay(id string) (*RelayTemplate, bool) {
	t, ok := r.relay[id]
	return t, ok
}

// ReceiveTemplates lists receive templates ordered by id.
func (r *Registry) ReceiveTemplates() []*ReceiveTemplate {
	out := make([]*ReceiveTemplate, 0, len(r.receive))
	for _, t := range r.receive {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RelayTemplates lists relay templates ordered by id.
func (r *Registry) RelayTemplates() []*RelayTemplate {
	out := make([]*RelayTemplate, 0, len(r.relay))
	for _, t := range r.relay {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var builtin *Registry

func init() {
	var err error
	builtin, err = NewRegistry(builtinReceive(), builtinRelay())
	if err != nil {
		panic(err)
	}
}

// Default returns the registry of built-in templates.
func Default() *Registry {
	return builtin
}
