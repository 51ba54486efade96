package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"rollcall/pkg/domain"
)

// PersonInput is the add-person form.
type PersonInput struct {
	ID   string `json:"id,omitempty" validate:"omitempty,excludes=:"`
	Name string `json:"name" validate:"required,min=2,max=120"`
	// AllowDuplicate skips the loose name check.
	AllowDuplicate bool `json:"-"`
}

// EventInput is the add-event form.
type EventInput struct {
	ID    string              `json:"id,omitempty" validate:"omitempty,excludes=:"`
	Title string              `json:"title" validate:"required,min=2,max=200"`
	Date  domain.CalendarDate `json:"date" validate:"required,calendar_date"`
	Cost  decimal.NullDecimal `json:"cost" validate:"omitempty,gte=0"`
}

// EventPatch carries the fields of an event edit. Nil fields are left alone.
type EventPatch struct {
	Title     *string              `json:"title,omitempty" validate:"omitnil,min=2,max=200"`
	Date      *domain.CalendarDate `json:"date,omitempty" validate:"omitnil,calendar_date"`
	Cost      *decimal.NullDecimal `json:"cost,omitempty" validate:"omitempty,gte=0"`
	ClearCost bool                 `json:"clear_cost,omitempty"`
}

// SettingsInput is the settings form.
type SettingsInput struct {
	Currency string `json:"currency" validate:"required,iso4217"`
}

// ValidationError maps form fields to the first rule each one failed.
type ValidationError struct {
	Fields map[string]string
}

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// DuplicateNameError reports that a name loosely equals an existing person or
// an earlier name in the same batch. Callers may retry with AllowDuplicate.
type DuplicateNameError struct {
	Name     string
	Existing Person
}

func (e DuplicateNameError) Error() string {
	return fmt.Sprintf("name %q looks like existing %q", e.Name, e.Existing.Name)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.NullDecimal)
		if !ok || !d.Valid {
			return nil
		}
		return d.Decimal.InexactFloat64()
	}, decimal.NullDecimal{})
	if err := v.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
		return domain.CalendarDate(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}
	return v
}

func validateForm(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		if _, seen := out.Fields[fe.Field()]; seen {
			continue
		}
		out.Fields[fe.Field()] = describeFieldError(fe)
	}
	return out
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must not be negative"
	case "excludes":
		return "must not contain " + strconv.Quote(fe.Param())
	case "calendar_date":
		return "must be a date in YYYY-MM-DD form"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	default:
		return "failed " + fe.Tag()
	}
}

func (in PersonInput) normalize() PersonInput {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	return in
}

func (in EventInput) normalize() EventInput {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Date = domain.CalendarDate(strings.TrimSpace(string(in.Date)))
	return in
}

func (p EventPatch) normalize() EventPatch {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if p.Date != nil {
		d := domain.CalendarDate(strings.TrimSpace(string(*p.Date)))
		p.Date = &d
	}
	return p
}

func (in SettingsInput) normalize() SettingsInput {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	return in
}

func (p EventPatch) apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Cost != nil {
		e.Cost = *p.Cost
	}
	if p.ClearCost {
		e.Cost = decimal.NullDecimal{}
	}
}
