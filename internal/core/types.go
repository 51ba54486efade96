package core

import "rollcall/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Person             = domain.Person
	Event              = domain.Event
	Attendance         = domain.Attendance
	Settings           = domain.Settings
	CalendarDate       = domain.CalendarDate
	PersonForEvent     = domain.PersonForEvent
	EventStats         = domain.EventStats
	EventsByTime       = domain.EventsByTime
	Snapshot           = domain.Snapshot
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPerson     = domain.EntityPerson
	EntityEvent      = domain.EntityEvent
	EntityAttendance = domain.EntityAttendance
	EntitySettings   = domain.EntitySettings
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
