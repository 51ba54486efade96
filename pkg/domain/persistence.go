package domain

import (
	"context"
	"time"
)

// TransactionView provides read-only access to snapshot data for rules and selectors.
type TransactionView interface {
	RuleView
	FindAttendance(id string) (Attendance, bool)
	Settings() Settings
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreatePerson(Person) (Person, error)
	DeletePerson(id string) error
	FindPerson(id string) (Person, bool)
	CreateEvent(Event) (Event, error)
	UpdateEvent(id string, mutator func(*Event) error) (Event, error)
	DeleteEvent(id string) error
	FindEvent(id string) (Event, bool)
	CreateAttendance(Attendance) (Attendance, error)
	UpdateAttendance(id string, mutator func(*Attendance) error) (Attendance, error)
	DeleteAttendance(id string) error
	FindAttendance(id string) (Attendance, bool)
	UpdateSettings(mutator func(*Settings) error) (Settings, error)
	Clear(entity EntityType) error
}

// Snapshot is a point-in-time copy of every collection, keyed by id.
type Snapshot struct {
	Settings   Settings              `json:"settings"`
	People     map[string]Person     `json:"people"`
	Events     map[string]Event      `json:"events"`
	Attendance map[string]Attendance `json:"attendance"`
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPerson(id string) (Person, bool)
	ListPeople() []Person
	GetEvent(id string) (Event, bool)
	ListEvents() []Event
	ListAttendance() []Attendance
	Settings() Settings
	ExportState() Snapshot
	ImportState(Snapshot)
}
