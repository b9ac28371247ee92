package loader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ukhas/habitat-sub001/errors"
)

// Module is a named group of definitions.
type Module interface {
	Name() string
	Lookup(member string) (*Definition, bool)
	Members() []string
}

// StaticModule is an in-memory Module. It is safe for concurrent use.
type StaticModule struct {
	name string

	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewStaticModule creates an empty module.
func NewStaticModule(name string) *StaticModule {
	return &StaticModule{name: name, defs: make(map[string]*Definition)}
}

// Name implements Module
func (m *StaticModule) Name() string { return m.name }

// Lookup implements Module
func (m *StaticModule) Lookup(member string) (*Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.defs[member]
	return d, ok
}

// Members implements Module. Names are sorted.
func (m *StaticModule) Members() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.defs))
	for name := range m.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Add stores def. An existing member of the same name is a value-kind error.
func (m *StaticModule) Add(def *Definition) error {
	if def.Module != m.name {
		return errors.Newf(errors.ErrValueKind, "StaticModule", "Add",
			"definition %s does not belong to module %s", def.FullName(), m.name)
	}
	if err := def.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.defs[def.Member]; exists {
		return errors.Newf(errors.ErrValueKind, "StaticModule", "Add", "%s is already defined", def.FullName())
	}
	m.defs[def.Member] = def
	return nil
}

// Replace swaps the definition of an existing member. A missing member is an
// attribute-kind error.
func (m *StaticModule) Replace(def *Definition) error {
	if def.Module != m.name {
		return errors.Newf(errors.ErrValueKind, "StaticModule", "Replace",
			"definition %s does not belong to module %s", def.FullName(), m.name)
	}
	if err := def.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.defs[def.Member]; !exists {
		return errors.Newf(errors.ErrAttributeKind, "StaticModule", "Replace", "module %s has no member %s", m.name, def.Member)
	}
	m.defs[def.Member] = def
	return nil
}

// String implements fmt.Stringer
func (m *StaticModule) String() string {
	return fmt.Sprintf("<module %s: %d members>", m.name, len(m.Members()))
}
