package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingT struct {
	testing.TB
	msg string
}

func (r *recordingT) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestLayerMatches(t *testing.T) {
	cases := []struct {
		layer Layer
		path  string
		want  bool
	}{
		{LayerDomain, "rollcall/pkg/domain", true},
		{LayerDomain, "rollcall/pkg/domainx", false},
		{LayerBackends, "rollcall/internal/infra/persistence/redis", true},
		{LayerBackends, "rollcall/internal/infra/blob/s3", true},
		{LayerBackends, "rollcall/internal/infra/persistence/memory", false},
		{LayerTransport, "rollcall/internal/adapters/httpapi", true},
		{LayerService, "rollcall/internal/corekit", false},
	}
	for _, c := range cases {
		if got := c.layer.Matches(c.path); got != c.want {
			t.Fatalf("%s.Matches(%q)=%v want %v", c.layer.Name, c.path, got, c.want)
		}
	}
	pred := AnyLayer(LayerPersist, LayerObservability)
	if !pred("rollcall/internal/logging") || pred("rollcall/internal/core") {
		t.Fatalf("AnyLayer predicate mismatch")
	}
	if !ModuleImport("rollcall/cmd/rollcall") || ModuleImport("rollcallx/foo") {
		t.Fatalf("ModuleImport mismatch")
	}
	if !InternalImport("rollcall/internal/core") || InternalImport("rollcall/pkg/domain") {
		t.Fatalf("InternalImport mismatch")
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"rollcall/internal/persist\"\n)\nvar _ = fmt.Sprint\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"rollcall/internal/observability\"\n")
	writeFile(t, dir, "notes.txt", "import \"rollcall/internal/persist\"")

	viols, err := directImportViolations(dir, AnyLayer(LayerPersist, LayerObservability))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "rollcall/internal/persist (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}

	rec := &recordingT{TB: t}
	AssertNoDirectImports(rec, dir, InternalImport, "service stays transport free")
	if !strings.Contains(rec.msg, "service stays transport free") {
		t.Fatalf("expected failure message, got %q", rec.msg)
	}

	rec = &recordingT{TB: t}
	AssertNoDirectImports(rec, dir, func(string) bool { return false }, "nothing forbidden")
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
}

func TestDirectImportViolationsErrors(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), ModuleImport); err == nil {
		t.Fatalf("expected missing dir error")
	}
	dir := t.TempDir()
	writeFile(t, dir, "bad.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, ModuleImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	prev := goListDeps
	t.Cleanup(func() { goListDeps = prev })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nrollcall/pkg/domain\n\nrollcall/internal/core\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", InternalImport)
	if err != nil || len(viols) != 1 || viols[0] != "rollcall/internal/core" {
		t.Fatalf("unexpected result %v %v", viols, err)
	}
	rec := &recordingT{TB: t}
	AssertNoTransitiveDependency(rec, "./...", InternalImport, "domain is a leaf")
	if !strings.Contains(rec.msg, "forbidden transitive dependency") {
		t.Fatalf("expected failure, got %q", rec.msg)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", InternalImport); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure to surface")
	}
}
