package core

import (
	"context"
	"fmt"

	"rollcall/pkg/domain"
)

// NewDuplicatePersonNameRule returns a warn-only rule that flags newly created
// people whose name loosely equals someone already stored.
func NewDuplicatePersonNameRule() domain.Rule {
	return duplicatePersonNameRule{}
}

type duplicatePersonNameRule struct{}

func (duplicatePersonNameRule) Name() string { return "duplicate_person_name" }

func (r duplicatePersonNameRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var people []domain.Person
	for _, change := range changes {
		if change.Entity != domain.EntityPerson || change.Action != domain.ActionCreate {
			continue
		}
		created, ok := change.After.(domain.Person)
		if !ok {
			continue
		}
		if people == nil {
			people = view.ListPeople()
		}
		for _, other := range people {
			if other.ID == created.ID {
				continue
			}
			if _, dup := domain.CompareNames(other.Name, created.Name); dup {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("person %q looks like existing person %q (%s)", created.Name, other.Name, other.ID),
					Entity:   domain.EntityPerson,
					EntityID: created.ID,
				})
				break
			}
		}
	}
	return res, nil
}
