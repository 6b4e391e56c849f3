package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is the fixed set of providers available to the resolver
type Registry struct {
	providers map[string]Provider
}

// NewRegistry validates and registers providers. Names must be non-empty
// and unique.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("%w: nil provider", ErrInvalidProvider)
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidProvider)
		}
		if _, ok := r.providers[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
		}
		r.providers[name] = p
	}
	return r, nil
}

// Get returns the provider registered under name, matched case-insensitively
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names returns the registered provider names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ordered returns providers in the given priority order. Names are matched
// case-insensitively and duplicates are dropped.
func (r *Registry) Ordered(priority []string) ([]Provider, error) {
	seen := make(map[string]bool, len(priority))
	out := make([]Provider, 0, len(priority))
	for _, raw := range priority {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		p, ok := r.providers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
		}
		seen[name] = true
		out = append(out, p)
	}
	return out, nil
}

// Checkers returns the providers that can validate credentials, by name
func (r *Registry) Checkers() map[string]Checker {
	out := make(map[string]Checker)
	for name, p := range r.providers {
		if c, ok := p.(Checker); ok {
			out[name] = c
		}
	}
	return out
}

// ParsePriority splits a comma separated provider list
func ParsePriority(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
