// Package memory provides the in-memory transactional entity store that owns
// people, events, attendance and settings.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Person aliases domain.Person for in-memory persistence operations.
	Person = domain.Person
	// Event aliases domain.Event.
	Event = domain.Event
	// Attendance aliases domain.Attendance.
	Attendance = domain.Attendance
	// Settings aliases domain.Settings.
	Settings = domain.Settings
	// Snapshot aliases domain.Snapshot exchanged with persistence adapters.
	Snapshot = domain.Snapshot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	settings   Settings
	people     map[string]Person
	events     map[string]Event
	attendance map[string]Attendance
}

func newMemoryState() memoryState {
	return memoryState{
		settings:   domain.DefaultSettings(),
		people:     make(map[string]Person),
		events:     make(map[string]Event),
		attendance: make(map[string]Attendance),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		settings:   s.settings,
		people:     make(map[string]Person, len(s.people)),
		events:     make(map[string]Event, len(s.events)),
		attendance: make(map[string]Attendance, len(s.attendance)),
	}
	for k, v := range s.people {
		cloned.people[k] = v
	}
	for k, v := range s.events {
		cloned.events[k] = v
	}
	for k, v := range s.attendance {
		cloned.attendance[k] = cloneAttendance(v)
	}
	return cloned
}

func cloneAttendance(a Attendance) Attendance {
	if a.PaidAt != nil {
		t := *a.PaidAt
		a.PaidAt = &t
	}
	return a
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Settings:   c.settings,
		People:     c.people,
		Events:     c.events,
		Attendance: c.attendance,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{
		settings:   s.Settings,
		people:     s.People,
		events:     s.Events,
		attendance: s.Attendance,
	}.clone()
}

// migrateSnapshot normalizes a snapshot loaded from an older or partial save:
// missing maps become empty, records are re-keyed by their own id, settings
// fall back to defaults and attendance without both parents is dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	out := Snapshot{
		Settings:   snapshot.Settings,
		People:     make(map[string]Person, len(snapshot.People)),
		Events:     make(map[string]Event, len(snapshot.Events)),
		Attendance: make(map[string]Attendance, len(snapshot.Attendance)),
	}
	if out.Settings.Currency == "" {
		out.Settings.Currency = domain.DefaultCurrency
	}
	for key, p := range snapshot.People {
		if p.ID == "" {
			p.ID = key
		}
		if p.ID == "" || strings.Contains(p.ID, domain.AttendanceSeparator) {
			continue
		}
		out.People[p.ID] = p
	}
	for key, e := range snapshot.Events {
		if e.ID == "" {
			e.ID = key
		}
		if e.ID == "" || strings.Contains(e.ID, domain.AttendanceSeparator) {
			continue
		}
		out.Events[e.ID] = e
	}
	for key, a := range snapshot.Attendance {
		if a.EventID == "" || a.PersonID == "" {
			eventID, personID, ok := domain.SplitAttendanceID(key)
			if !ok {
				continue
			}
			a.EventID, a.PersonID = eventID, personID
		}
		if _, ok := out.Events[a.EventID]; !ok {
			continue
		}
		if _, ok := out.People[a.PersonID]; !ok {
			continue
		}
		a.ID = domain.AttendanceID(a.EventID, a.PersonID)
		out.Attendance[a.ID] = cloneAttendance(a)
	}
	return out
}

// Option customizes a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used to stamp records.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDFunc overrides id generation for people and events.
func WithIDFunc(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.idFn = newID
		}
	}
}

// Store provides an in-memory transactional store for the rollcall domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListPeople() []Person {
	return listPeople(v.state)
}

func (v transactionView) ListEvents() []Event {
	return listEvents(v.state)
}

func (v transactionView) ListAttendance() []Attendance {
	return listAttendance(v.state)
}

func (v transactionView) Settings() Settings {
	return v.state.settings
}

func (v transactionView) FindPerson(id string) (Person, bool) {
	p, ok := v.state.people[id]
	return p, ok
}

func (v transactionView) FindEvent(id string) (Event, bool) {
	e, ok := v.state.events[id]
	return e, ok
}

func (v transactionView) FindAttendance(id string) (Attendance, bool) {
	a, ok := v.state.attendance[id]
	if !ok {
		return Attendance{}, false
	}
	return cloneAttendance(a), true
}

func listPeople(state *memoryState) []Person {
	out := make([]Person, 0, len(state.people))
	for _, p := range state.people {
		out = append(out, p)
	}
	domain.SortPeople(out)
	return out
}

func listEvents(state *memoryState) []Event {
	out := make([]Event, 0, len(state.events))
	for _, e := range state.events {
		out = append(out, e)
	}
	domain.SortEvents(out)
	return out
}

func listAttendance(state *memoryState) []Attendance {
	out := make([]Attendance, 0, len(state.attendance))
	for _, a := range state.attendance {
		out = append(out, cloneAttendance(a))
	}
	domain.SortAttendance(out)
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules run against the post-mutation state; a blocking result discards it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now is the timestamp applied to every record written by the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) FindPerson(id string) (Person, bool) {
	p, ok := tx.state.people[id]
	return p, ok
}

func (tx *transaction) FindEvent(id string) (Event, bool) {
	e, ok := tx.state.events[id]
	return e, ok
}

func (tx *transaction) FindAttendance(id string) (Attendance, bool) {
	a, ok := tx.state.attendance[id]
	if !ok {
		return Attendance{}, false
	}
	return cloneAttendance(a), true
}

// CreatePerson stores a new person, assigning id and creation time when absent.
func (tx *transaction) CreatePerson(p Person) (Person, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Person{}, fmt.Errorf("person name is empty: %w", domain.ErrContractViolation)
	}
	if err := checkID(domain.EntityPerson, p.ID); err != nil {
		return Person{}, err
	}
	if p.ID == "" {
		p.ID = tx.store.idFn()
	}
	if _, exists := tx.state.people[p.ID]; exists {
		return Person{}, fmt.Errorf("person %q already exists", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now
	}
	p.UpdatedAt = tx.now
	tx.state.people[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionCreate, After: p})
	return p, nil
}

// DeletePerson removes a person and every attendance record that references it.
func (tx *transaction) DeletePerson(id string) error {
	current, ok := tx.state.people[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPerson, ID: id}
	}
	for key, a := range tx.state.attendance {
		if a.PersonID == id {
			tx.deleteAttendance(key, a)
		}
	}
	delete(tx.state.people, id)
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateEvent stores a new event.
func (tx *transaction) CreateEvent(e Event) (Event, error) {
	e.Title = strings.TrimSpace(e.Title)
	if err := checkEvent(e); err != nil {
		return Event{}, err
	}
	if err := checkID(domain.EntityEvent, e.ID); err != nil {
		return Event{}, err
	}
	if e.ID == "" {
		e.ID = tx.store.idFn()
	}
	if _, exists := tx.state.events[e.ID]; exists {
		return Event{}, fmt.Errorf("event %q already exists", e.ID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = tx.now
	}
	e.UpdatedAt = tx.now
	tx.state.events[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionCreate, After: e})
	return e, nil
}

// UpdateEvent mutates an event using the provided mutator function.
func (tx *transaction) UpdateEvent(id string, mutator func(*Event) error) (Event, error) {
	current, ok := tx.state.events[id]
	if !ok {
		return Event{}, domain.ErrNotFound{Entity: domain.EntityEvent, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Event{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.Title = strings.TrimSpace(current.Title)
	if err := checkEvent(current); err != nil {
		return Event{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.events[id] = current
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteEvent removes an event and every attendance record that references it.
func (tx *transaction) DeleteEvent(id string) error {
	current, ok := tx.state.events[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityEvent, ID: id}
	}
	for key, a := range tx.state.attendance {
		if a.EventID == id {
			tx.deleteAttendance(key, a)
		}
	}
	delete(tx.state.events, id)
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionDelete, Before: current})
	return nil
}

// checkID rejects ids that would make an attendance key ambiguous.
func checkID(entity domain.EntityType, id string) error {
	if strings.Contains(id, domain.AttendanceSeparator) {
		return fmt.Errorf("%s id %q contains %q: %w", entity, id, domain.AttendanceSeparator, domain.ErrContractViolation)
	}
	return nil
}

func checkEvent(e Event) error {
	if e.Title == "" {
		return fmt.Errorf("event title is empty: %w", domain.ErrContractViolation)
	}
	if !e.Date.Valid() {
		return fmt.Errorf("event date %q: %w", e.Date, domain.ErrContractViolation)
	}
	if e.Cost.Valid && e.Cost.Decimal.IsNegative() {
		return fmt.Errorf("event cost %s is negative: %w", e.Cost.Decimal, domain.ErrContractViolation)
	}
	return nil
}

// CreateAttendance records that a person attends an event. The id is always
// derived from the pair.
func (tx *transaction) CreateAttendance(a Attendance) (Attendance, error) {
	if _, ok := tx.state.events[a.EventID]; !ok {
		return Attendance{}, domain.ErrNotFound{Entity: domain.EntityEvent, ID: a.EventID}
	}
	if _, ok := tx.state.people[a.PersonID]; !ok {
		return Attendance{}, domain.ErrNotFound{Entity: domain.EntityPerson, ID: a.PersonID}
	}
	a.ID = domain.AttendanceID(a.EventID, a.PersonID)
	if _, exists := tx.state.attendance[a.ID]; exists {
		return Attendance{}, fmt.Errorf("attendance %q already exists", a.ID)
	}
	a = cloneAttendance(a)
	tx.state.attendance[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAttendance, Action: domain.ActionCreate, After: cloneAttendance(a)})
	return cloneAttendance(a), nil
}

// UpdateAttendance mutates the payment state of an attendance record.
func (tx *transaction) UpdateAttendance(id string, mutator func(*Attendance) error) (Attendance, error) {
	current, ok := tx.state.attendance[id]
	if !ok {
		return Attendance{}, domain.ErrNotFound{Entity: domain.EntityAttendance, ID: id}
	}
	before := cloneAttendance(current)
	current = cloneAttendance(current)
	if err := mutator(&current); err != nil {
		return Attendance{}, err
	}
	current.ID, current.EventID, current.PersonID = before.ID, before.EventID, before.PersonID
	tx.state.attendance[id] = current
	tx.recordChange(Change{Entity: domain.EntityAttendance, Action: domain.ActionUpdate, Before: before, After: cloneAttendance(current)})
	return cloneAttendance(current), nil
}

// DeleteAttendance removes a single attendance record.
func (tx *transaction) DeleteAttendance(id string) error {
	current, ok := tx.state.attendance[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityAttendance, ID: id}
	}
	tx.deleteAttendance(id, current)
	return nil
}

func (tx *transaction) deleteAttendance(key string, a Attendance) {
	delete(tx.state.attendance, key)
	tx.recordChange(Change{Entity: domain.EntityAttendance, Action: domain.ActionDelete, Before: a})
}

// UpdateSettings mutates the singleton settings record.
func (tx *transaction) UpdateSettings(mutator func(*Settings) error) (Settings, error) {
	before := tx.state.settings
	current := before
	if err := mutator(&current); err != nil {
		return Settings{}, err
	}
	if current.Currency == "" {
		current.Currency = domain.DefaultCurrency
	}
	current.UpdatedAt = tx.now
	tx.state.settings = current
	tx.recordChange(Change{Entity: domain.EntitySettings, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// Clear empties one collection. Clearing people or events also clears the
// attendance that referenced them; clearing settings restores defaults.
func (tx *transaction) Clear(entity domain.EntityType) error {
	switch entity {
	case domain.EntityPerson:
		for _, p := range listPeople(&tx.state) {
			if err := tx.DeletePerson(p.ID); err != nil {
				return err
			}
		}
	case domain.EntityEvent:
		for _, e := range listEvents(&tx.state) {
			if err := tx.DeleteEvent(e.ID); err != nil {
				return err
			}
		}
	case domain.EntityAttendance:
		for _, a := range listAttendance(&tx.state) {
			tx.deleteAttendance(a.ID, a)
		}
	case domain.EntitySettings:
		before := tx.state.settings
		tx.state.settings = domain.DefaultSettings()
		tx.recordChange(Change{Entity: domain.EntitySettings, Action: domain.ActionDelete, Before: before, After: tx.state.settings})
	default:
		return fmt.Errorf("unknown collection %q", entity)
	}
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetPerson retrieves a person by ID from committed state.
func (s *Store) GetPerson(id string) (Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.people[id]
	return p, ok
}

// ListPeople returns all people ordered by name.
func (s *Store) ListPeople() []Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPeople(&s.state)
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.events[id]
	return e, ok
}

// ListEvents returns all events, newest date first.
func (s *Store) ListEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEvents(&s.state)
}

// ListAttendance returns every attendance record.
func (s *Store) ListAttendance() []Attendance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAttendance(&s.state)
}

// Settings returns the committed settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.settings
}
