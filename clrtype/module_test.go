package clrtype

import (
	"testing"

	semver "github.com/coreos/go-semver/semver"

	"github.com/clrvm/clrvm/pe"
)

func newNamedModule(name, asmName string, major, minor int64, token []byte) *Module {
	m := newModule(name, &pe.Image{})
	m.Assembly = &Assembly{
		Name:           asmName,
		Version:        semver.Version{Major: major, Minor: minor},
		PublicKeyToken: token,
		Module:         m,
	}
	return m
}

func TestRegistryFirstRegisteredIsCorlib(t *testing.T) {
	r := NewRegistry()
	corlib := newNamedModule("corlib", "System.Private.CoreLib", 4, 0, nil)
	other := newNamedModule("app", "App", 1, 0, nil)

	if err := r.Register(corlib); err != nil {
		t.Fatalf("Register(corlib): %v", err)
	}
	if err := r.Register(other); err != nil {
		t.Fatalf("Register(other): %v", err)
	}
	if r.Corlib() != corlib {
		t.Fatal("Corlib() should return the first registered module")
	}
	if r.ByName("app") != other {
		t.Fatal("ByName should find a module registered under its own name")
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	a := newNamedModule("dup", "A", 1, 0, nil)
	b := newNamedModule("dup", "B", 1, 0, nil)

	if err := r.Register(a); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(b); err == nil {
		t.Fatal("expected ModuleAlreadyLoaded error on duplicate registration")
	}
}

func TestResolveAssemblyRefPrefersCompatibleVersion(t *testing.T) {
	r := NewRegistry()
	token := []byte{0x01, 0x02, 0x03, 0x04}
	v1 := newNamedModule("m1", "Contoso.Lib", 1, 0, token)
	v2 := newNamedModule("m2", "Contoso.Lib", 1, 5, token)

	if err := r.Register(v1); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(v2); err != nil {
		t.Fatal(err)
	}

	ref := pe.AssemblyRefRow{Name: "Contoso.Lib", PublicKeyOrToken: token, MajorVersion: 1, MinorVersion: 2}
	resolved, err := r.ResolveAssemblyRef(ref)
	if err != nil {
		t.Fatalf("ResolveAssemblyRef: %v", err)
	}
	if resolved != v2 {
		t.Fatal("expected the higher minor-version-compatible module to win")
	}
}

func TestResolveAssemblyRefFallsBackToNameOnlyMatch(t *testing.T) {
	r := NewRegistry()
	old := newNamedModule("m1", "Contoso.Lib", 1, 0, nil)
	if err := r.Register(old); err != nil {
		t.Fatal(err)
	}

	ref := pe.AssemblyRefRow{Name: "Contoso.Lib", MajorVersion: 2, MinorVersion: 0}
	resolved, err := r.ResolveAssemblyRef(ref)
	if err != nil {
		t.Fatalf("ResolveAssemblyRef: %v", err)
	}
	if resolved != old {
		t.Fatal("expected exact-name fallback to return the only registered module with that name")
	}
}

func TestResolveAssemblyRefUnresolvedReturnsError(t *testing.T) {
	r := NewRegistry()
	ref := pe.AssemblyRefRow{Name: "Nonexistent.Assembly"}
	if _, err := r.ResolveAssemblyRef(ref); err == nil {
		t.Fatal("expected an error when no module matches the requested assembly name")
	}
}

func TestClassByNameIgnoreCase(t *testing.T) {
	mod := newModule("test", &pe.Image{})
	c := &RtClass{Module: mod, Namespace: "System", Name: "String"}
	mod.classByName["System.String"] = c

	got, err := mod.ClassByName("system.string", true, true)
	if err != nil {
		t.Fatalf("ClassByName: %v", err)
	}
	if got != c {
		t.Fatal("case-insensitive ClassByName should find the registered class")
	}

	if _, err := mod.ClassByName("System.String", false, true); err != nil {
		t.Fatalf("exact-case ClassByName: %v", err)
	}
}

func TestClassByNameMissingNotMustExist(t *testing.T) {
	mod := newModule("test", &pe.Image{})
	got, err := mod.ClassByName("Nope.Missing", false, false)
	if err != nil {
		t.Fatalf("expected no error when mustExist is false, got %v", err)
	}
	if got != nil {
		t.Fatal("expected nil class for a miss with mustExist=false")
	}
}
