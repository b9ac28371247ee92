package loader

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ukhas/habitat-sub001/errors"
)

// Registry maps module names to modules and resolves sink references.
// It is safe for concurrent use; multiple registries may coexist.
type Registry struct {
	mu          sync.RWMutex
	modules     map[string]Module
	generations map[string]uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		modules:     make(map[string]Module),
		generations: make(map[string]uint64),
	}
}

// Mount adds a module. Mounting a second module under the same name is a
// value-kind error.
func (r *Registry) Mount(m Module) error {
	if m == nil {
		return errors.Newf(errors.ErrTypeKind, "Registry", "Mount", "module is nil")
	}
	if err := ValidateName(m.Name()); err != nil {
		return errors.WrapInvalid(err, "Registry", "Mount", "module name validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.Name()]; exists {
		return errors.Newf(errors.ErrValueKind, "Registry", "Mount", "module %s is already mounted", m.Name())
	}
	r.modules[m.Name()] = m
	return nil
}

// Register adds def to its module, creating a StaticModule if the module
// does not exist yet. Registering an existing name is a value-kind error.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return errors.Newf(errors.ErrTypeKind, "Registry", "Register", "definition is nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mod, err := r.staticModuleLocked("Register", def.Module, true)
	if err != nil {
		return err
	}
	if err := mod.Add(def); err != nil {
		return err
	}
	r.generations[def.FullName()] = 1
	return nil
}

// Redefine replaces the definition stored under def's name and bumps its
// generation. The name must already be registered in a StaticModule.
func (r *Registry) Redefine(def *Definition) error {
	if def == nil {
		return errors.Newf(errors.ErrTypeKind, "Registry", "Redefine", "definition is nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mod, err := r.staticModuleLocked("Redefine", def.Module, false)
	if err != nil {
		return err
	}
	if err := mod.Replace(def); err != nil {
		return err
	}
	r.generations[def.FullName()]++
	return nil
}

func (r *Registry) staticModuleLocked(op, name string, create bool) (*StaticModule, error) {
	m, ok := r.modules[name]
	if !ok {
		if !create {
			return nil, errors.Newf(errors.ErrImportKind, "Registry", op, "no module named %s", name)
		}
		sm := NewStaticModule(name)
		r.modules[name] = sm
		return sm, nil
	}
	sm, ok := m.(*StaticModule)
	if !ok {
		return nil, errors.Newf(errors.ErrValueKind, "Registry", op,
			"module %s is mounted read-only (%T)", name, m)
	}
	return sm, nil
}

// Generation returns how many times fullname has been defined, or 0 if it
// never was.
func (r *Registry) Generation(fullname string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generations[fullname]
}

// Modules returns the mounted module names, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for name := range r.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns every definition, sorted by full name.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	mods := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		mods = append(mods, m)
	}
	r.mu.RUnlock()

	var out []*Definition
	for _, m := range mods {
		for _, member := range m.Members() {
			if d, ok := m.Lookup(member); ok {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}

// ResolveOption modifies Resolve.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	forceReload bool
}

// ForceReload makes Resolve look a Definition reference up again by name,
// so a redefinition since it was resolved is picked up.
func ForceReload() ResolveOption {
	return func(o *resolveOptions) { o.forceReload = true }
}

// Resolve turns ref into a definition. ref may be a qualified name, a
// *Definition or a Definition.
func (r *Registry) Resolve(ref any, opts ...ResolveOption) (*Definition, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	var def *Definition
	switch v := ref.(type) {
	case string:
		d, err := r.lookup(v)
		if err != nil {
			return nil, err
		}
		def = d
	case *Definition:
		if v == nil {
			return nil, errors.Newf(errors.ErrTypeKind, "Registry", "Resolve", "nil *Definition reference")
		}
		def = v
	case Definition:
		def = &v
	default:
		return nil, errors.Newf(errors.ErrTypeKind, "Registry", "Resolve",
			"reference must be a name or a Definition, got %T", ref)
	}

	if _, isName := ref.(string); o.forceReload && !isName {
		d, err := r.lookup(def.FullName())
		if err != nil {
			return nil, err
		}
		def = d
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Fullname resolves ref and returns its qualified name.
func (r *Registry) Fullname(ref any) (string, error) {
	def, err := r.Resolve(ref)
	if err != nil {
		return "", err
	}
	return def.FullName(), nil
}

// lookup resolves a qualified name against the current module contents.
func (r *Registry) lookup(name string) (*Definition, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, isModule := r.modules[name]; isModule {
		return nil, errors.Newf(errors.ErrTypeKind, "Registry", "Resolve", "%s is a module, not a sink", name)
	}

	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return nil, errors.Newf(errors.ErrImportKind, "Registry", "Resolve", "no module named %s", name)
	}
	modName, member := name[:idx], name[idx+1:]

	mod, ok := r.modules[modName]
	if !ok {
		return nil, errors.Newf(errors.ErrImportKind, "Registry", "Resolve", "no module named %s", modName)
	}
	def, ok := mod.Lookup(member)
	if !ok || def == nil {
		return nil, errors.Newf(errors.ErrAttributeKind, "Registry", "Resolve",
			"module %s has no member %s", modName, member)
	}
	return def, nil
}

// String implements fmt.Stringer
func (r *Registry) String() string {
	return fmt.Sprintf("<loader.Registry: %d modules>", len(r.Modules()))
}
