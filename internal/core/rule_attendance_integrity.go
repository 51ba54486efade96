package core

import (
	"context"
	"fmt"

	"rollcall/pkg/domain"
)

// NewAttendanceIntegrityRule returns the in-transaction rule that blocks
// attendance pointing at a missing event or person.
func NewAttendanceIntegrityRule() domain.Rule {
	return attendanceIntegrityRule{}
}

type attendanceIntegrityRule struct{}

func (attendanceIntegrityRule) Name() string { return "attendance_integrity" }

func (r attendanceIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, a := range view.ListAttendance() {
		var problem string
		switch {
		case a.ID != domain.AttendanceID(a.EventID, a.PersonID):
			problem = fmt.Sprintf("attendance %s does not match event %s and person %s", a.ID, a.EventID, a.PersonID)
		case !eventExists(view, a.EventID):
			problem = fmt.Sprintf("attendance %s references missing event %s", a.ID, a.EventID)
		case !personExists(view, a.PersonID):
			problem = fmt.Sprintf("attendance %s references missing person %s", a.ID, a.PersonID)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  problem,
			Entity:   domain.EntityAttendance,
			EntityID: a.ID,
		})
	}
	return res, nil
}

func eventExists(view domain.RuleView, id string) bool {
	_, ok := view.FindEvent(id)
	return ok
}

func personExists(view domain.RuleView, id string) bool {
	_, ok := view.FindPerson(id)
	return ok
}
