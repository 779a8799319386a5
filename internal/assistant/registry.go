package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Handler executes one read-only lookup. Handlers must not mutate any store;
// the registry offers the model data access, never side effects.
type Handler func(ctx context.Context, args map[string]string) (any, error)

// Param describes one function parameter for the model-facing documentation.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Definition is one callable function: documentation plus its handler.
type Definition struct {
	Name        string
	Description string
	Section     string
	Params      []Param
	Examples    []string
	Handler     Handler
}

// Registry maps function names to definitions. It is built once at startup
// and passed into the engine explicitly.
type Registry struct {
	defs     map[string]Definition
	sections map[string]string
	order    []string
}

// NewRegistry returns an empty function registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]Definition),
		sections: make(map[string]string),
	}
}

// RegisterSection records a section description shown in the documentation.
func (r *Registry) RegisterSection(name, description string) {
	r.sections[name] = description
}

// Register adds a function. Registering a duplicate name or a nil handler is
// a programming error.
func (r *Registry) Register(def Definition) {
	if def.Name == "" {
		panic("assistant: function name cannot be empty")
	}
	if def.Handler == nil {
		panic("assistant: function handler cannot be nil")
	}
	if _, exists := r.defs[def.Name]; exists {
		panic(fmt.Sprintf("assistant: function %q already registered", def.Name))
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
}

// Names returns registered function names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Execute runs a function by name. Unknown names are reported as errors, not
// silently ignored, so the model learns it asked for something that does not
// exist.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]string) (any, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("assistant: function %q not found", name)
	}
	return def.Handler(ctx, args)
}

// Documentation renders the registry for the model prompt, grouped by
// section.
func (r *Registry) Documentation() string {
	var b strings.Builder

	sections := make([]string, 0, len(r.sections))
	for name := range r.sections {
		sections = append(sections, name)
	}
	sort.Strings(sections)

	for _, section := range sections {
		fmt.Fprintf(&b, "\n## %s\n%s\n", strings.ToUpper(section), r.sections[section])
		for _, name := range r.order {
			def := r.defs[name]
			if def.Section != section {
				continue
			}
			fmt.Fprintf(&b, "\n### %s\nDescription: %s\n", def.Name, def.Description)
			if len(def.Params) > 0 {
				b.WriteString("Inputs:\n")
				for _, p := range def.Params {
					suffix := " (optional)"
					if p.Required {
						suffix = " (required)"
					}
					fmt.Fprintf(&b, "  - %s: %s%s\n", p.Name, p.Description, suffix)
				}
			}
			for _, ex := range def.Examples {
				fmt.Fprintf(&b, "Example: %s\n", ex)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
