package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rollcall/internal/infra/persistence/memory"
	"rollcall/pkg/domain"
)

// Service is the application root: it owns the entity store and exposes every
// command and selector over it.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	clock   Clock
	now     func() time.Time
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	mu      sync.RWMutex
	hooks   []CommitHook
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	svc := &Service{
		store:   store,
		clock:   o.clock,
		logger:  o.logger,
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
		hooks:   o.hooks,
	}
	svc.now = func() time.Time { return svc.clock.Now() }
	if withEngine, ok := store.(interface{ RulesEngine() *RulesEngine }); ok {
		svc.engine = withEngine.RulesEngine()
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. The store stamps records with the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	store := memory.NewStore(engine, memory.WithNowFunc(func() time.Time { return o.clock.Now() }))
	return NewService(store, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine evaluated at every commit.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// AddCommitHook registers a hook after construction, for collaborators such as
// the persistence mirror that need the service to exist first.
func (s *Service) AddCommitHook(hook CommitHook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) (string, Result, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, res, err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	entry := AuditEntry{
		Operation: op,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.now(),
	}
	if meta, ok := operations[op]; ok {
		entry.Entity, entry.Action = meta.entity, meta.action
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		s.logOperationError(op, entityID, err)
		return res, err
	}
	s.audit.Record(ctx, entry)
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "entity_id", v.EntityID, "message", v.Message)
	}
	s.logger.Debug("operation committed", "operation", op, "entity_id", entityID, "duration", elapsed)

	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, op)
	}
	return res, nil
}

func (s *Service) logOperationError(op, entityID string, err error) {
	var validation ValidationError
	var duplicate DuplicateNameError
	var notFound ErrNotFound
	switch {
	case errors.As(err, &validation), errors.As(err, &duplicate), errors.As(err, &notFound):
		s.logger.Info("operation rejected", "operation", op, "entity_id", entityID, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
	}
}

func (s *Service) view(fn func(TransactionView)) {
	// View only fails when fn does.
	_ = s.store.View(context.Background(), func(v TransactionView) error {
		fn(v)
		return nil
	})
}

// People --------------------------------------------------------------------

// AddPerson validates the form, rejects loose duplicates unless allowed and
// stores the person.
func (s *Service) AddPerson(ctx context.Context, input PersonInput) (Person, Result, error) {
	var created Person
	res, err := s.run(ctx, "add_person", func(ctx context.Context) (string, Result, error) {
		input = input.normalize()
		if err := validateForm(input); err != nil {
			return input.ID, Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if !input.AllowDuplicate {
				if existing, dup := domain.FindDuplicate(tx.Snapshot().ListPeople(), input.Name); dup {
					return DuplicateNameError{Name: input.Name, Existing: existing}
				}
			}
			var err error
			created, err = tx.CreatePerson(Person{Base: Base{ID: input.ID}, Name: input.Name})
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// AddPeople stores a batch in one transaction. Each name is checked against
// the earlier names of the batch and against the stored people.
func (s *Service) AddPeople(ctx context.Context, inputs []PersonInput) ([]Person, Result, error) {
	var created []Person
	res, err := s.run(ctx, "add_people", func(ctx context.Context) (string, Result, error) {
		normalized := make([]PersonInput, len(inputs))
		names := make([]string, 0, len(inputs))
		for i, in := range inputs {
			in = in.normalize()
			if err := validateForm(in); err != nil {
				return "", Result{}, fmt.Errorf("person %d: %w", i, err)
			}
			if !in.AllowDuplicate {
				if match, dup := domain.FindDuplicateName(names, in.Name); dup {
					return "", Result{}, DuplicateNameError{Name: in.Name, Existing: Person{Name: match}}
				}
			}
			names = append(names, in.Name)
			normalized[i] = in
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			existing := tx.Snapshot().ListPeople()
			created = make([]Person, 0, len(normalized))
			for _, in := range normalized {
				if !in.AllowDuplicate {
					if match, dup := domain.FindDuplicate(existing, in.Name); dup {
						return DuplicateNameError{Name: in.Name, Existing: match}
					}
				}
				p, err := tx.CreatePerson(Person{Base: Base{ID: in.ID}, Name: in.Name})
				if err != nil {
					return err
				}
				created = append(created, p)
			}
			return nil
		})
		if err != nil {
			created = nil
		}
		return "", res, err
	})
	return created, res, err
}

// RemovePerson deletes a person and their attendance. Unknown ids are a no-op.
func (s *Service) RemovePerson(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "remove_person", func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindPerson(id); !ok {
				return nil
			}
			return tx.DeletePerson(id)
		})
		return id, res, err
	})
}

// ListPeople returns all people ordered by name.
func (s *Service) ListPeople() []Person {
	return s.store.ListPeople()
}

// GetPerson returns the person with id.
func (s *Service) GetPerson(id string) (Person, bool) {
	return s.store.GetPerson(id)
}

// Events --------------------------------------------------------------------

// AddEvent validates the form and stores the event.
func (s *Service) AddEvent(ctx context.Context, input EventInput) (Event, Result, error) {
	var created Event
	res, err := s.run(ctx, "add_event", func(ctx context.Context) (string, Result, error) {
		input = input.normalize()
		if err := validateForm(input); err != nil {
			return input.ID, Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateEvent(Event{
				Base:  Base{ID: input.ID},
				Title: input.Title,
				Date:  input.Date,
				Cost:  input.Cost,
			})
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// UpdateEvent replaces the fields present in patch.
func (s *Service) UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, Result, error) {
	var updated Event
	res, err := s.run(ctx, "update_event", func(ctx context.Context) (string, Result, error) {
		patch = patch.normalize()
		if err := validateForm(patch); err != nil {
			return id, Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateEvent(id, func(e *Event) error {
				patch.apply(e)
				return nil
			})
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// RemoveEvent deletes an event and its attendance. Unknown ids are a no-op.
func (s *Service) RemoveEvent(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "remove_event", func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindEvent(id); !ok {
				return nil
			}
			return tx.DeleteEvent(id)
		})
		return id, res, err
	})
}

// ListEvents returns all events, newest date first.
func (s *Service) ListEvents() []Event {
	return s.store.ListEvents()
}

// GetEvent returns the event with id.
func (s *Service) GetEvent(id string) (Event, bool) {
	return s.store.GetEvent(id)
}

// PartitionEventsByTime splits the event list around ref. A zero ref means now.
func (s *Service) PartitionEventsByTime(ref time.Time) EventsByTime {
	if ref.IsZero() {
		ref = s.now()
	}
	return PartitionEventsByTime(s.store.ListEvents(), ref)
}

// Attendance ----------------------------------------------------------------

// SetAttending marks or unmarks a person as attending. Both directions are
// idempotent. Marking requires the event and person to exist.
func (s *Service) SetAttending(ctx context.Context, eventID, personID string, attending bool) (Result, error) {
	id := domain.AttendanceID(eventID, personID)
	return s.run(ctx, "set_attending", func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, exists := tx.FindAttendance(id)
			switch {
			case attending && !exists:
				_, err := tx.CreateAttendance(Attendance{EventID: eventID, PersonID: personID})
				return err
			case !attending && exists:
				return tx.DeleteAttendance(id)
			}
			return nil
		})
		return id, res, err
	})
}

// SetPaid records or clears a payment. It does nothing when the person is not
// attending the event.
func (s *Service) SetPaid(ctx context.Context, eventID, personID string, paid bool) (Result, error) {
	id := domain.AttendanceID(eventID, personID)
	return s.run(ctx, "set_paid", func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindAttendance(id); !ok {
				return nil
			}
			_, err := tx.UpdateAttendance(id, func(a *Attendance) error {
				if !paid {
					a.PaidAt = nil
					return nil
				}
				now := tx.Now()
				a.PaidAt = &now
				return nil
			})
			return err
		})
		return id, res, err
	})
}

// PeopleForEvent returns every person with their attendance for eventID.
func (s *Service) PeopleForEvent(eventID string) []PersonForEvent {
	var out []PersonForEvent
	s.view(func(v TransactionView) { out = SelectPeopleForEvent(v, eventID) })
	return out
}

// EventStats returns attendee and unpaid counts for eventID.
func (s *Service) EventStats(eventID string) EventStats {
	var out EventStats
	s.view(func(v TransactionView) { out = SelectEventStats(v, eventID) })
	return out
}

// UnpaidEventsCount returns the number of events with an unpaid attendee.
func (s *Service) UnpaidEventsCount() int {
	var out int
	s.view(func(v TransactionView) { out = SelectUnpaidEventsCount(v) })
	return out
}

// TotalEventsCount returns the number of events.
func (s *Service) TotalEventsCount() int {
	var out int
	s.view(func(v TransactionView) { out = SelectTotalEventsCount(v) })
	return out
}

// Settings and reset --------------------------------------------------------

// Settings returns the current settings.
func (s *Service) Settings() Settings {
	return s.store.Settings()
}

// UpdateSettings validates and stores new settings.
func (s *Service) UpdateSettings(ctx context.Context, input SettingsInput) (Settings, Result, error) {
	var updated Settings
	res, err := s.run(ctx, "update_settings", func(ctx context.Context) (string, Result, error) {
		input = input.normalize()
		if err := validateForm(input); err != nil {
			return "", Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateSettings(func(st *Settings) error {
				st.Currency = input.Currency
				return nil
			})
			return err
		})
		return "", res, err
	})
	return updated, res, err
}

// Collections lists every collection Reset accepts, in clearing order.
var Collections = []EntityType{EntityAttendance, EntityEvent, EntityPerson, EntitySettings}

// Reset clears the named collections in one transaction, or all of them when
// none are named.
func (s *Service) Reset(ctx context.Context, collections ...EntityType) (Result, error) {
	if len(collections) == 0 {
		collections = Collections
	}
	return s.run(ctx, "reset", func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, c := range collections {
				if err := tx.Clear(c); err != nil {
					return err
				}
			}
			return nil
		})
		return "", res, err
	})
}
