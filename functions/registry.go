package functions

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/textflow/dispatch"
	"github.com/BaSui01/textflow/types"
)

// Template is a user-defined function. The user body supports a {text}
// placeholder for the selection plus {key} placeholders resolved from
// the request options.
type Template struct {
	Name   string `json:"name" yaml:"name"`
	System string `json:"system,omitempty" yaml:"system,omitempty"`
	User   string `json:"user" yaml:"user"`
}

// Validate checks the template for structural problems.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return types.NewError(types.ErrInvalidRequest, "template name is empty")
	}
	if !strings.Contains(t.User, "{text}") {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("template %q has no {text} placeholder", t.Name))
	}
	return nil
}

// render substitutes {text} and request options into s.
func (t Template) render(s string, req types.Request) string {
	out := strings.ReplaceAll(s, "{text}", req.Text)
	for key, value := range req.Options {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}

// Registry holds user-defined templates keyed by name. Changing a
// template changes the rendered prompt, so previously cached results for
// the old wording are simply never looked up again.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

// Add validates and stores a template, replacing any existing one with
// the same name.
func (r *Registry) Add(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
	return nil
}

// Remove deletes a template by name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, name)
}

// Get returns a template by name.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Names lists the registered template names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// Handler returns the dispatch handler serving the custom function type.
// The request's FunctionName selects the template.
func (r *Registry) Handler() dispatch.Handler {
	return dispatch.HandlerFunc(func(req types.Request) ([]types.Message, error) {
		if err := requireText(req); err != nil {
			return nil, err
		}
		t, ok := r.Get(req.FunctionName)
		if !ok {
			return nil, types.NewError(types.ErrUnknownFunction,
				fmt.Sprintf("no template named %q", req.FunctionName))
		}

		messages := make([]types.Message, 0, 2)
		if t.System != "" {
			messages = append(messages, types.Message{Role: types.RoleSystem, Content: t.render(t.System, req)})
		}
		messages = append(messages, types.Message{Role: types.RoleUser, Content: t.render(t.User, req)})
		return messages, nil
	})
}
