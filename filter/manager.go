package filter

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Manager holds named filter presets
type Manager struct {
	compiler Compiler
	filters  map[string]CompiledFilter
	mu       sync.RWMutex
}

// NewManager creates a new filter manager
func NewManager() *Manager {
	return &Manager{
		compiler: NewExprCompiler(WithCache(100)),
		filters:  make(map[string]CompiledFilter),
	}
}

// RegisterFilter registers a new filter or updates an existing one
func (m *Manager) RegisterFilter(name, expression string) error {
	filter, err := m.compile(expression)
	if err != nil {
		return fmt.Errorf("failed to compile filter '%s': %w", name, err)
	}

	m.mu.Lock()
	m.filters[name] = filter
	m.mu.Unlock()

	return nil
}

// RegisterFilters registers several filters. Nothing is registered if any
// of them fails to compile.
func (m *Manager) RegisterFilters(filters map[string]string) error {
	compiled := make(map[string]CompiledFilter, len(filters))

	for name, expr := range filters {
		filter, err := m.compile(expr)
		if err != nil {
			return fmt.Errorf("failed to compile filter '%s': %w", name, err)
		}
		compiled[name] = filter
	}

	m.mu.Lock()
	maps.Copy(m.filters, compiled)
	m.mu.Unlock()

	return nil
}

// GetFilter returns a compiled filter by name
func (m *Manager) GetFilter(name string) (CompiledFilter, bool) {
	m.mu.RLock()
	filter, exists := m.filters[name]
	m.mu.RUnlock()
	return filter, exists
}

// ListFilters returns the registered filter names, sorted
func (m *Manager) ListFilters() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.filters))
}

// Resolve returns the filter to use for a run. An explicit expression wins
// over a preset name; neither means every item matches.
func (m *Manager) Resolve(expression, preset string) (CompiledFilter, error) {
	if !isBlank(expression) {
		return m.compile(expression)
	}
	if preset != "" {
		filter, ok := m.GetFilter(preset)
		if !ok {
			return nil, m.notFound(preset)
		}
		return filter, nil
	}
	return MatchAll{}, nil
}

func (m *Manager) notFound(name string) error {
	names := m.ListFilters()
	if len(names) == 0 {
		return fmt.Errorf("filter '%s' not found, no presets are configured", name)
	}
	return fmt.Errorf("filter '%s' not found, available: %s", name, strings.Join(names, ", "))
}

func (m *Manager) compile(expression string) (CompiledFilter, error) {
	if isBlank(expression) {
		return MatchAll{}, nil
	}
	return m.compiler.Compile(expression)
}
