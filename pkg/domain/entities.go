// Package domain defines the persistent entities, derived views, value types and
// rule evaluation primitives used by rollcall.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the entity store.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPerson identifies a person record.
	EntityPerson EntityType = "person"
	// EntityEvent identifies an event record.
	EntityEvent EntityType = "event"
	// EntityAttendance identifies an attendance (person x event) record.
	EntityAttendance EntityType = "attendance"
	// EntitySettings identifies the singleton settings record.
	EntitySettings EntityType = "settings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// DateLayout is the storage format of an event date.
const DateLayout = "2006-01-02"

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ErrContractViolation is returned by the store when input that the form layer
// should have rejected reaches a mutation.
var ErrContractViolation = errors.New("input violates store contract")

// ErrNotFound is returned when an operation references a missing record.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Base contains common fields for stored records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Person is someone who may attend events.
type Person struct {
	Base
	Name string `json:"name"`
}

// CalendarDate is a day in YYYY-MM-DD form, without time zone.
type CalendarDate string

// Valid reports whether the date matches the storage format.
func (d CalendarDate) Valid() bool {
	return dateFormat.MatchString(string(d))
}

// In parses the date as midnight in loc.
func (d CalendarDate) In(loc *time.Location) (time.Time, error) {
	if !d.Valid() {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", string(d))
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, string(d), loc)
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) CalendarDate {
	return CalendarDate(t.Format(DateLayout))
}

// Event is a dated occasion people attend, optionally with a per-head cost.
type Event struct {
	Base
	Title string       `json:"title"`
	Date  CalendarDate `json:"date"`
	// Cost distinguishes "no cost" (Valid=false) from a zero cost.
	Cost decimal.NullDecimal `json:"cost"`
}

// Attendance marks a person as attending an event and carries payment state.
// Its ID is always AttendanceID(EventID, PersonID).
type Attendance struct {
	ID       string     `json:"id"`
	EventID  string     `json:"event_id"`
	PersonID string     `json:"person_id"`
	PaidAt   *time.Time `json:"paid_at"`
}

// Paid reports whether a payment has been recorded.
func (a Attendance) Paid() bool { return a.PaidAt != nil }

// AttendanceSeparator joins the two halves of an attendance key. Person and
// event ids must not contain it.
const AttendanceSeparator = ":"

// AttendanceID derives the composite key of an attendance record.
func AttendanceID(eventID, personID string) string {
	return eventID + AttendanceSeparator + personID
}

// SplitAttendanceID reverses AttendanceID.
func SplitAttendanceID(id string) (eventID, personID string, ok bool) {
	return strings.Cut(id, AttendanceSeparator)
}

// DefaultCurrency is used when settings carry no currency.
const DefaultCurrency = "USD"

// Settings holds user preferences persisted across restarts.
type Settings struct {
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{Currency: DefaultCurrency}
}

// PersonForEvent is a person joined with their attendance for one event.
type PersonForEvent struct {
	Person
	Attending bool       `json:"attending"`
	PaidAt    *time.Time `json:"paid_at"`
}

// EventStats folds the attendance of one event.
type EventStats struct {
	Attending int `json:"attending"`
	Unpaid    int `json:"unpaid"`
}

// EventsByTime partitions events around a reference day.
type EventsByTime struct {
	FutureEvents []Event `json:"future_events"`
	PastEvents   []Event `json:"past_events"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations of severity warn.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
