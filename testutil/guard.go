// Package testutil holds test helpers that enforce the layering of the
// rollcall module: domain types at the bottom, backends that know nothing of
// the service, and a service that knows nothing of transports or persistence.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ModulePath is the import path prefix of this module.
const ModulePath = "rollcall"

// Layer names a group of packages by import path prefix.
type Layer struct {
	Name     string
	Prefixes []string
}

// Layers of the module, lowest first.
var (
	LayerDomain        = Layer{Name: "domain", Prefixes: []string{"rollcall/pkg/domain"}}
	LayerStore         = Layer{Name: "store", Prefixes: []string{"rollcall/internal/infra/persistence/memory"}}
	LayerBackends      = Layer{Name: "backends", Prefixes: []string{"rollcall/internal/infra/persistence/sqlite", "rollcall/internal/infra/persistence/postgres", "rollcall/internal/infra/persistence/redis", "rollcall/internal/infra/persistence/blobkv", "rollcall/internal/blob", "rollcall/internal/infra/blob"}}
	LayerService       = Layer{Name: "service", Prefixes: []string{"rollcall/internal/core"}}
	LayerPersist       = Layer{Name: "persist", Prefixes: []string{"rollcall/internal/persist"}}
	LayerObservability = Layer{Name: "observability", Prefixes: []string{"rollcall/internal/observability", "rollcall/internal/logging"}}
	LayerTransport     = Layer{Name: "transport", Prefixes: []string{"rollcall/internal/adapters", "rollcall/internal/app", "rollcall/cmd"}}
)

// Matches reports whether importPath belongs to the layer.
func (l Layer) Matches(importPath string) bool {
	for _, p := range l.Prefixes {
		if importPath == p || strings.HasPrefix(importPath, p+"/") {
			return true
		}
	}
	return false
}

// AnyLayer returns a predicate matching imports of any of layers.
func AnyLayer(layers ...Layer) func(string) bool {
	return func(importPath string) bool {
		for _, l := range layers {
			if l.Matches(importPath) {
				return true
			}
		}
		return false
	}
}

// ModuleImport matches any package of this module.
func ModuleImport(importPath string) bool {
	return importPath == ModulePath || strings.HasPrefix(importPath, ModulePath+"/")
}

// InternalImport matches packages under rollcall/internal.
func InternalImport(importPath string) bool {
	return strings.HasPrefix(importPath, ModulePath+"/internal/")
}

// AssertNoDirectImports scans the non-test .go files of dir and fails if any
// import satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfViolations(t, "direct imports", reason, viols)
}

// AssertNoTransitiveDependency runs `go list -deps pattern` and fails if any
// dependency satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, out, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Skipf("go list unavailable: %v\n%s", err, out)
	}
	failIfViolations(t, "transitive dependency", reason, viols)
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func transitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && forbidden(line) {
			viols = append(viols, line)
		}
	}
	return viols, out, nil
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden %s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
