package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/clrvm/clrvm/clrtype"
	"github.com/clrvm/clrvm/clrvm"
	"github.com/clrvm/clrvm/object"
	"github.com/clrvm/clrvm/vmexc"
)

// corlibName is the assembly load name this shell always resolves first,
// mirroring Assembly::load_corlib's STR_CORLIB_NAME convention.
const corlibName = "mscorlib"

// libDirs collects repeated -l flags in order, each a directory searched
// for an assembly's bytes by name (spec.md §6.3's loader callback).
type libDirs []string

func (d *libDirs) String() string { return strings.Join(*d, ",") }
func (d *libDirs) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func main() {
	var dirs libDirs
	var entry string
	flag.Var(&dirs, "l", "add library search directory (repeatable)")
	flag.StringVar(&entry, "e", "", "override entry point: Namespace.Class::Method")
	flag.Bool("i", false, "browse the assembly's classes and invoke a method interactively")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: clrrun [-l dir]... [-e Namespace.Class::Method] <assembly> [-- managed-args...]")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	assemblyPath := args[0]
	var managedArgs []string
	if rest := args[1:]; len(rest) > 0 {
		if rest[0] != "--" {
			fmt.Fprintf(os.Stderr, "unexpected argument %q: managed args must follow --\n", rest[0])
			os.Exit(2)
		}
		managedArgs = rest[1:]
	}

	if interactive() {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "-i requires an interactive terminal")
			os.Exit(2)
		}
		if err := runInteractive(assemblyPath, dirs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(-1)
		}
		return
	}

	if err := run(assemblyPath, entry, dirs, managedArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(-1)
	}
}

// interactive reports whether -i was passed ahead of any "--". -i is
// registered with the flag set only so that flag.Parse accepts it; its
// value is read here from os.Args.
func interactive() bool {
	for _, a := range os.Args[1:] {
		if a == "-i" || a == "--i" {
			return true
		}
		if a == "--" {
			return false
		}
	}
	return false
}

func run(assemblyPath, entry string, dirs libDirs, managedArgs []string) error {
	rt, err := clrvm.New(clrvm.DefaultOptions())
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close()

	loader := fileLoader(append(libDirs{filepath.Dir(assemblyPath)}, dirs...))

	if _, err := rt.LoadAssembly(corlibName, loader); err != nil {
		return fmt.Errorf("load %s: %w", corlibName, err)
	}
	types, err := rt.Initialize()
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}

	name := assemblyDisplayName(assemblyPath)
	module, err := rt.LoadAssembly(name, func(string) ([]byte, error) { return os.ReadFile(assemblyPath) })
	if err != nil {
		return fmt.Errorf("load %s: %w", assemblyPath, err)
	}

	method, err := resolveEntry(rt, module, entry)
	if err != nil {
		return fmt.Errorf("resolve entry point: %w", err)
	}

	argsObj, err := managedStringArray(rt, types, managedArgs)
	if err != nil {
		return fmt.Errorf("build argv: %w", err)
	}

	params := []uint64{object.Handle(argsObj)}
	ret, err := rt.Invoke(method, params)
	if err != nil {
		vmexc.ReportIfUnhandled()
		return fmt.Errorf("invoke %s: %w", entry, err)
	}

	if len(ret) > 0 {
		fmt.Printf("Result: %d\n", int32(ret[0]))
	}
	return nil
}

// fileLoader resolves an assembly name to bytes by trying name+".dll" in
// each directory in order, the disk-backed stand-in for spec.md §6.3's
// "embedder supplies fn(name) -> bytes" contract.
func fileLoader(dirs libDirs) clrvm.AssemblyLoaderFunc {
	return func(name string) ([]byte, error) {
		for _, dir := range dirs {
			path := filepath.Join(dir, name+".dll")
			if data, err := os.ReadFile(path); err == nil {
				return data, nil
			}
		}
		return nil, fmt.Errorf("%s.dll not found in any -l directory", name)
	}
}

// resolveEntry parses "Namespace.Class::Method" and finds the method on
// module, materializing its owning class first so the method's invoker
// is bound (spec.md §4.10's class-materialization-time lookup).
func resolveEntry(rt *clrvm.Runtime, module *clrtype.Module, entry string) (*clrtype.MethodInfo, error) {
	if entry == "" {
		entry = "Program.Main"
	}
	classAndMethod := strings.SplitN(entry, "::", 2)
	className := classAndMethod[0]
	methodName := "Main"
	if len(classAndMethod) == 2 {
		methodName = classAndMethod[1]
	}

	class, err := module.ClassByName(className, false, true)
	if err != nil {
		return nil, err
	}
	if err := rt.MaterializeClass(class); err != nil {
		return nil, err
	}
	for _, m := range class.Methods {
		if m.Name == methodName {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%s has no method %s", className, methodName)
}

// managedStringArray builds a managed string[] holding args, the
// conventional Main(string[]) parameter.
func managedStringArray(rt *clrvm.Runtime, types *clrvm.Corlib, args []string) (*object.RtObject, error) {
	arr, err := rt.Alloc.AllocateArray(arrayClassOf(types.String), int32(len(args)), 1)
	if err != nil {
		return nil, err
	}
	for i, a := range args {
		s, err := object.NewString(types.String, a)
		if err != nil {
			return nil, err
		}
		if err := object.SetElementRef(rt.Alloc, arr, s, int32(i)); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

// arrayClassOf is a placeholder array-class resolver: a full SZArray
// class (spec.md §4.3's synthetic array classes) is built from an
// element class by clrtype's own class materializer once a module asks
// for it via a Type token; this shell has no such token to resolve
// against for a bare string[], so it builds the minimal shell AllocateArray
// needs directly.
func arrayClassOf(element *clrtype.RtClass) *clrtype.RtClass {
	return &clrtype.RtClass{
		Module:       element.Module,
		Namespace:    element.Namespace,
		Name:         element.Name + "[]",
		Family:       clrtype.FamilyArrayOrSZArray,
		ElementClass: element,
		Extra:        clrtype.ExtraArrayOrSZArray | clrtype.ExtraReferenceType | clrtype.ExtraHasReferences,
	}
}
