package clrtype

import (
	"bytes"
	"sync"

	semver "github.com/coreos/go-semver/semver"

	"github.com/clrvm/clrvm/clrerrors"
	"github.com/clrvm/clrvm/pe"
	"github.com/clrvm/clrvm/vmlog"
)

// Assembly is the metadata Assembly row of a module's own image, or the
// stub of one only known by name (an unresolved AssemblyRef).
type Assembly struct {
	Name           string
	Version        semver.Version
	PublicKeyToken []byte
	Module         *Module
}

// Module wraps one pe.Image plus an arena and the per-module memoization
// caches spec.md §3.1 calls for. Classes are never built eagerly: classByRid
// holds shells returned by ClassByTypeDefRid, filled in lazily by
// RtClass.Initialize.
type Module struct {
	Image    *pe.Image
	Assembly *Assembly
	Name     string // filename without extension; the registry lookup key

	arena *Arena

	mu            sync.RWMutex
	classByRid    map[uint32]*RtClass
	classByName   map[string]*RtClass
	typesigByTok  map[pe.Token]*Typesig
	genericInsts  map[string]*RtClass // keyed by the instantiation typesig's shape key (base type + argument shapes)

	registry *Registry // set once registered, used to resolve cross-module TypeRefs
}

func newModule(name string, img *pe.Image) *Module {
	return &Module{
		Image:        img,
		Name:         name,
		arena:        newArena(),
		classByRid:   make(map[uint32]*RtClass),
		classByName:  make(map[string]*RtClass),
		typesigByTok: make(map[pe.Token]*Typesig),
		genericInsts: make(map[string]*RtClass),
	}
}

// Load parses img's Assembly row (if any) and returns a new Module; it
// does not register it (see Registry.Register). Loading performs only the top-level sanity spec.md §4.2
// describes — module rid 1 must exist — and never materializes classes.
func Load(name string, img *pe.Image) (*Module, error) {
	modRow, ok := img.ReadModuleRow(1)
	if !ok {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindBadImageFormat).
			Path(name).Detail("module rid 1 missing").Build()
	}
	m := newModule(name, img)

	if asmRow, ok := img.ReadAssemblyRow(1); ok {
		m.Assembly = &Assembly{
			Name: asmRow.Name,
			Version: semver.Version{
				Major: int64(asmRow.MajorVersion),
				Minor: int64(asmRow.MinorVersion),
				Patch: int64(asmRow.BuildNumber),
			},
			PublicKeyToken: asmRow.PublicKey,
			Module:         m,
		}
	} else {
		m.Assembly = &Assembly{Name: name, Module: m}
	}

	vmlog.Logger().Sugar().Debugf("clrtype: loaded module %q (mvid %x)", modRow.Name, modRow.Mvid)
	return m, nil
}

// ClassByTypeDefRid returns the (possibly still-uninitialized) class shell
// for the TypeDef row rid, creating it on first access.
func (m *Module) ClassByTypeDefRid(rid uint32) (*RtClass, error) {
	m.mu.RLock()
	if c, ok := m.classByRid[rid]; ok {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	td, ok := m.Image.ReadTypeDefRow(rid)
	if !ok {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindTypeLoad).
			Path(m.Name).Detail("TypeDef rid %d out of range", rid).Build()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classByRid[rid]; ok {
		return c, nil
	}
	c := m.arena.NewClass()
	c.Module = m
	c.Token = pe.EncodeToken(pe.TableTypeDef, rid)
	c.Rid = rid
	c.Namespace = td.Namespace
	c.Name = td.Name
	c.Flags = td.Flags
	c.Extends = td.Extends
	c.fieldListStart = td.FieldList
	c.methodListStart = td.MethodList
	c.Family = FamilyTypeDef
	m.classByRid[rid] = c
	key := c.Namespace + "." + c.Name
	m.classByName[key] = c
	return c, nil
}

// ClassByName resolves a full "Namespace.Name" within this module only
// (no assembly-ref traversal); ignoreCase controls matching, mustExist
// determines whether a miss is an error or a (nil, nil) result.
func (m *Module) ClassByName(fullName string, ignoreCase, mustExist bool) (*RtClass, error) {
	m.mu.RLock()
	if !ignoreCase {
		c, ok := m.classByName[fullName]
		m.mu.RUnlock()
		if ok {
			return c, nil
		}
	} else {
		for k, c := range m.classByName {
			if equalFold(k, fullName) {
				m.mu.RUnlock()
				return c, nil
			}
		}
		m.mu.RUnlock()
	}

	// Walk TypeDef rows looking for an unmaterialized match.
	count := m.Image.RowCount(pe.TableTypeDef)
	for rid := uint32(1); rid <= count; rid++ {
		td, ok := m.Image.ReadTypeDefRow(rid)
		if !ok {
			continue
		}
		full := td.Namespace + "." + td.Name
		if full == fullName || (ignoreCase && equalFold(full, fullName)) {
			return m.ClassByTypeDefRid(rid)
		}
	}
	if mustExist {
		return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindTypeLoad).
			Path(m.Name, fullName).Detail("type not found").Build()
	}
	return nil, nil
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// GetUserString reads a #US heap entry as UTF-16 code units.
func (m *Module) GetUserString(rid uint32) []uint16 {
	return m.Image.UserString(rid)
}

// ModuleRegistry returns the registry m was registered into, or nil if m
// was never registered (e.g. a module loaded only for inspection). Lets
// packages outside clrtype reach the same registry (and its corlib) that
// TypeRef resolution already uses internally.
func (m *Module) ModuleRegistry() *Registry {
	return m.registry
}

// Registry is the process-wide assembly-name → Module map. The first
// module ever registered is implicitly the corlib. Grounded on
// linker.Namespace's RWMutex-guarded map, simplified since modules need
// no hierarchical path, only a flat name lookup plus AssemblyRef version
// resolution.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
	order   []string // registration order; order[0] is corlib
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Register adds m under its own name. Registering the same name twice is
// ModuleAlreadyLoaded.
func (r *Registry) Register(m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Name]; ok {
		return clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindModuleAlreadyLoaded).
			Path(m.Name).Build()
	}
	m.registry = r
	r.modules[m.Name] = m
	r.order = append(r.order, m.Name)
	return nil
}

// Corlib returns the first module ever registered, or nil if none.
func (r *Registry) Corlib() *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil
	}
	return r.modules[r.order[0]]
}

// ByName returns the module exactly named name, or nil.
func (r *Registry) ByName(name string) *Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[name]
}

// ResolveAssemblyRef finds the module best satisfying an AssemblyRef: among
// modules with the exact name whose major.minor is compatible (same major,
// minor ≥ requested) and whose public key token matches (when both sides
// carry one), the highest version wins; failing that, the first exact-name
// match is used with no version or token check. This policy is this runtime's own decision for an ambiguity
// spec.md leaves open — see DESIGN.md.
func (r *Registry) ResolveAssemblyRef(ref pe.AssemblyRefRow) (*Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := semver.Version{Major: int64(ref.MajorVersion), Minor: int64(ref.MinorVersion), Patch: int64(ref.BuildNumber)}

	var best *Module
	for _, name := range r.order {
		m := r.modules[name]
		if m.Assembly == nil || m.Assembly.Name != ref.Name {
			continue
		}
		if len(ref.PublicKeyOrToken) > 0 && len(m.Assembly.PublicKeyToken) > 0 &&
			!bytes.Equal(ref.PublicKeyOrToken, m.Assembly.PublicKeyToken) {
			continue
		}
		if m.Assembly.Version.Major == want.Major && m.Assembly.Version.Minor >= want.Minor {
			if best == nil || best.Assembly.Version.LessThan(m.Assembly.Version) {
				best = m
			}
		}
	}
	if best != nil {
		return best, nil
	}

	// Fall back to exact name match regardless of version/token.
	for _, name := range r.order {
		m := r.modules[name]
		if m.Assembly != nil && m.Assembly.Name == ref.Name {
			return m, nil
		}
	}
	return nil, clrerrors.New(clrerrors.PhaseLoad, clrerrors.KindTypeLoad).
		Detail("cannot resolve AssemblyRef %s", ref.Name).Build()
}
