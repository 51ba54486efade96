package persist

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rollcall/internal/core"
	"rollcall/internal/infra/blob/memory"
	"rollcall/internal/infra/persistence/blobkv"
	"rollcall/pkg/domain"
)

func newBackend() *blobkv.Backend {
	return blobkv.NewBackend(memory.New(), "")
}

func seededService(t *testing.T) *core.Service {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	alex, _, err := svc.AddPerson(ctx, core.PersonInput{Name: "Alex"})
	if err != nil {
		t.Fatalf("add person: %v", err)
	}
	sam, _, err := svc.AddPerson(ctx, core.PersonInput{Name: "Sam"})
	if err != nil {
		t.Fatalf("add person: %v", err)
	}
	event, _, err := svc.AddEvent(ctx, core.EventInput{Title: "Climbing", Date: "2024-03-01", Cost: decimal.NewNullDecimal(decimal.NewFromInt(15))})
	if err != nil {
		t.Fatalf("add event: %v", err)
	}
	for _, id := range []string{alex.ID, sam.ID} {
		if _, err := svc.SetAttending(ctx, event.ID, id, true); err != nil {
			t.Fatalf("attend: %v", err)
		}
	}
	if _, err := svc.SetPaid(ctx, event.ID, alex.ID, true); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, _, err := svc.UpdateSettings(ctx, core.SettingsInput{Currency: "eur"}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	return svc
}

func TestParseWhitelist(t *testing.T) {
	w, err := ParseWhitelist("")
	if err != nil || !reflect.DeepEqual(w, DefaultWhitelist()) {
		t.Fatalf("expected default whitelist, got %v %v", w, err)
	}
	w, err = ParseWhitelist(" Events ,people")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.String() != "settings,people,events" {
		t.Fatalf("expected settings to be added and order normalized, got %s", w)
	}
	if _, err := ParseWhitelist("people,teams"); err == nil {
		t.Fatalf("expected unknown bucket error")
	}
	if !(Whitelist{}).Contains(BucketSettings) || (Whitelist{}).Contains(BucketPeople) {
		t.Fatalf("empty whitelist should hold only settings")
	}
	w, err = ParseWhitelist("attendance")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.String() != "settings,people,events,attendance" {
		t.Fatalf("expected attendance to pull in people and events, got %s", w)
	}
	if got := (Whitelist{BucketAttendance}).Normalize().String(); got != "settings,people,events,attendance" {
		t.Fatalf("expected normalize to add attendance parents, got %s", got)
	}
}

func TestAttendanceWhitelistSurvivesRehydration(t *testing.T) {
	ctx := context.Background()
	source := seededService(t)
	backend := newBackend()
	whitelist, err := ParseWhitelist("attendance")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Save(ctx, backend, source.Store(), whitelist); err != nil {
		t.Fatalf("save: %v", err)
	}
	restored := core.NewInMemoryService(core.NewDefaultRulesEngine())
	if _, err := Hydrate(ctx, backend, restored.Store(), whitelist); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if got, want := len(restored.Store().ListAttendance()), len(source.Store().ListAttendance()); got != want || got == 0 {
		t.Fatalf("expected %d attendance records after rehydration, got %d", want, got)
	}
	if err := Save(ctx, backend, restored.Store(), whitelist); err != nil {
		t.Fatalf("save restored: %v", err)
	}
	payload, ok, err := backend.Load(ctx, "attendance")
	if err != nil || !ok || string(payload) == "{}" {
		t.Fatalf("expected attendance to stay persisted, got %q %v %v", payload, ok, err)
	}
}

func TestEncodeOnlyWhitelistedBuckets(t *testing.T) {
	snapshot := domain.Snapshot{Settings: domain.DefaultSettings()}
	payloads, err := Encode(snapshot, Whitelist{BucketPeople})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(payloads) != 2 || string(payloads["people"]) != "{}" {
		t.Fatalf("unexpected payloads %v", payloads)
	}
	var settings domain.Settings
	if err := json.Unmarshal(payloads["settings"], &settings); err != nil || settings.Currency != "USD" {
		t.Fatalf("unexpected settings payload %s", payloads["settings"])
	}
}

func TestDecodeRejectsCorruptBucket(t *testing.T) {
	if _, err := Decode(domain.Snapshot{}, map[string][]byte{"events": []byte("[")}); err == nil {
		t.Fatalf("expected decode error")
	}
	out, err := Decode(domain.Snapshot{}, map[string][]byte{"unknown": []byte("[")})
	if err != nil || out.People != nil {
		t.Fatalf("unknown buckets should be ignored: %v", err)
	}
}

func TestRehydrateReproducesSelectors(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	backend := newBackend()
	if err := Save(ctx, backend, svc.Store(), DefaultWhitelist()); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := core.NewInMemoryService(core.NewDefaultRulesEngine())
	found, err := Hydrate(ctx, backend, restored.Store(), DefaultWhitelist())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(found) != 4 {
		t.Fatalf("expected all buckets found, got %v", found)
	}
	if !reflect.DeepEqual(svc.ListPeople(), restored.ListPeople()) {
		t.Fatalf("people differ after rehydrate")
	}
	if !reflect.DeepEqual(svc.ListEvents(), restored.ListEvents()) {
		t.Fatalf("events differ after rehydrate")
	}
	event := svc.ListEvents()[0]
	if svc.EventStats(event.ID) != restored.EventStats(event.ID) {
		t.Fatalf("stats differ: %+v vs %+v", svc.EventStats(event.ID), restored.EventStats(event.ID))
	}
	if !reflect.DeepEqual(svc.PeopleForEvent(event.ID), restored.PeopleForEvent(event.ID)) {
		t.Fatalf("people for event differ after rehydrate")
	}
	if restored.Settings().Currency != "EUR" || restored.UnpaidEventsCount() != 1 {
		t.Fatalf("unexpected restored settings or badges: %+v %d", restored.Settings(), restored.UnpaidEventsCount())
	}
}

func TestHydrateEmptyBackendStartsEmpty(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	found, err := Hydrate(context.Background(), newBackend(), svc.Store(), DefaultWhitelist())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(found) != 0 || len(svc.ListPeople()) != 0 || svc.Settings().Currency != domain.DefaultCurrency {
		t.Fatalf("expected empty store, found %v", found)
	}
}

func TestHydrateDropsOrphanAttendance(t *testing.T) {
	ctx := context.Background()
	backend := newBackend()
	_ = backend.Save(ctx, "people", []byte(`{"p1":{"id":"p1","name":"Alex"}}`))
	_ = backend.Save(ctx, "attendance", []byte(`{"e1:p1":{"id":"e1:p1","event_id":"e1","person_id":"p1"}}`))
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	if _, err := Hydrate(ctx, backend, svc.Store(), DefaultWhitelist()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if len(svc.Store().ListAttendance()) != 0 || len(svc.ListPeople()) != 1 {
		t.Fatalf("expected orphan attendance to be dropped")
	}
}

func TestHydrateSettingsOnlyWhitelist(t *testing.T) {
	ctx := context.Background()
	source := seededService(t)
	backend := newBackend()
	if err := Save(ctx, backend, source.Store(), Whitelist{BucketSettings}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, _ := backend.Load(ctx, "people"); ok {
		t.Fatalf("people bucket must not be written outside the whitelist")
	}
	restored := core.NewInMemoryService(core.NewDefaultRulesEngine())
	if _, err := Hydrate(ctx, backend, restored.Store(), Whitelist{BucketSettings}); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if restored.Settings().Currency != "EUR" || len(restored.ListPeople()) != 0 {
		t.Fatalf("expected only settings to be restored")
	}
}

type failingBackend struct {
	mu    sync.Mutex
	saves int
}

func (f *failingBackend) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("load boom")
}

func (f *failingBackend) Save(context.Context, string, []byte) error {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()
	return errors.New("save boom")
}

func (f *failingBackend) Close() error { return nil }

func TestHydrateLoadFailure(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	if _, err := Hydrate(context.Background(), &failingBackend{}, svc.Store(), DefaultWhitelist()); err == nil {
		t.Fatalf("expected load error")
	}
}

type mirrorMetrics struct {
	mu       sync.Mutex
	outcomes []bool
}

func (m *mirrorMetrics) ObserveMirrorWrite(_ context.Context, success bool, _ time.Duration) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, success)
	m.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMirrorWritesAfterCommit(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	backend := newBackend()
	metrics := &mirrorMetrics{}
	mirror := NewMirror(backend, svc.Store(), WithMirrorMetrics(metrics))
	svc.AddCommitHook(mirror.Notify)

	if _, _, err := svc.AddPerson(ctx, core.PersonInput{Name: "Alex"}); err != nil {
		t.Fatalf("add person: %v", err)
	}
	waitFor(t, func() bool {
		payload, ok, _ := backend.Load(ctx, "people")
		return ok && len(payload) > 2
	})
	if err := mirror.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if mirror.Writes() == 0 || mirror.Failures() != 0 {
		t.Fatalf("unexpected counters writes=%d failures=%d", mirror.Writes(), mirror.Failures())
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.outcomes) == 0 || !metrics.outcomes[0] {
		t.Fatalf("expected successful write to be observed, got %v", metrics.outcomes)
	}
}

func TestMirrorCloseFlushesLatestState(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	backend := newBackend()
	mirror := NewMirror(backend, svc.Store(), WithWhitelist(Whitelist{BucketPeople}))
	for _, name := range []string{"Alex", "Sam", "Kim"} {
		if _, _, err := svc.AddPerson(ctx, core.PersonInput{Name: name}); err != nil {
			t.Fatalf("add person: %v", err)
		}
		mirror.Notify(ctx, "add_person")
	}
	if err := mirror.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	payload, ok, err := backend.Load(ctx, "people")
	if err != nil || !ok {
		t.Fatalf("expected people bucket, got ok=%v err=%v", ok, err)
	}
	var people map[string]domain.Person
	if err := json.Unmarshal(payload, &people); err != nil || len(people) != 3 {
		t.Fatalf("expected three people persisted, got %s", payload)
	}
	if _, ok, _ := backend.Load(ctx, "events"); ok {
		t.Fatalf("events bucket is not whitelisted")
	}
	if mirror.Whitelist().String() != "settings,people" {
		t.Fatalf("unexpected whitelist %s", mirror.Whitelist())
	}
	// Close is idempotent and Notify after close does not block.
	mirror.Notify(ctx, "add_person")
	if err := mirror.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMirrorFailuresAreCountedNotPropagated(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	backend := &failingBackend{}
	metrics := &mirrorMetrics{}
	mirror := NewMirror(backend, svc.Store(), WithMirrorMetrics(metrics), WithWriteTimeout(time.Second))
	svc.AddCommitHook(mirror.Notify)

	if _, _, err := svc.AddPerson(ctx, core.PersonInput{Name: "Alex"}); err != nil {
		t.Fatalf("commit must succeed despite persistence failure: %v", err)
	}
	waitFor(t, func() bool { return mirror.Failures() > 0 })
	if err := mirror.Close(ctx); err == nil {
		t.Fatalf("expected final flush to report the failure")
	}
	if mirror.Writes() != 0 {
		t.Fatalf("no write should have succeeded")
	}
	if len(svc.ListPeople()) != 1 {
		t.Fatalf("in-memory state must be unaffected")
	}
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []Driver{DriverMemory, DriverFS, DriverSQLite} {
		backend, err := Open(ctx, Config{
			Driver:     driver,
			SQLitePath: filepath.Join(t.TempDir(), "state.db"),
			FSRoot:     t.TempDir(),
		})
		if err != nil {
			t.Fatalf("open %s: %v", driver, err)
		}
		if err := backend.Save(ctx, "settings", []byte(`{"currency":"USD"}`)); err != nil {
			t.Fatalf("save %s: %v", driver, err)
		}
		if _, ok, err := backend.Load(ctx, "settings"); err != nil || !ok {
			t.Fatalf("load %s: ok=%v err=%v", driver, ok, err)
		}
		if err := backend.Close(); err != nil {
			t.Fatalf("close %s: %v", driver, err)
		}
	}
	if _, err := Open(ctx, Config{Driver: "etcd"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
}
