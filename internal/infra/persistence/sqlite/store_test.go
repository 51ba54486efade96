package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestBackendSaveAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	backend, err := NewBackend(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, ok, err := backend.Load(ctx, "people"); err != nil || ok {
		t.Fatalf("expected absent bucket, got ok=%v err=%v", ok, err)
	}
	if err := backend.SaveBuckets(ctx, map[string][]byte{
		"people": []byte(`{"p1":{"id":"p1"}}`),
		"events": []byte(`{}`),
	}); err != nil {
		t.Fatalf("save buckets: %v", err)
	}
	if err := backend.Save(ctx, "people", []byte(`{}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	payload, ok, err := reopened.Load(ctx, "people")
	if err != nil || !ok || string(payload) != `{}` {
		t.Fatalf("expected overwritten people bucket, got %q ok=%v err=%v", payload, ok, err)
	}
	if _, ok, _ := reopened.Load(ctx, "events"); !ok {
		t.Fatalf("expected events bucket to persist")
	}
	var rows int
	if err := reopened.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected one row per bucket, got %d", rows)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
}

func TestBackendClosedDatabaseErrors(t *testing.T) {
	backend, err := NewBackend(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_ = backend.Close()
	if _, _, err := backend.Load(context.Background(), "people"); err == nil {
		t.Fatalf("expected load error on closed database")
	}
	if err := backend.Save(context.Background(), "people", []byte(`{}`)); err == nil {
		t.Fatalf("expected save error on closed database")
	}
}
