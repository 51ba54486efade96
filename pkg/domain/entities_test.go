package domain

import (
	"testing"
	"time"
)

func TestCalendarDate(t *testing.T) {
	if !CalendarDate("2024-02-29").Valid() {
		t.Fatalf("expected valid date")
	}
	for _, bad := range []string{"", "2024-2-29", "24-02-29", "2024/02/29", "2024-02-29T00:00:00Z"} {
		if CalendarDate(bad).Valid() {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
	loc := time.FixedZone("plus5", 5*3600)
	got, err := CalendarDate("2024-03-01").In(loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Location() != loc || got.Hour() != 0 || got.Day() != 1 {
		t.Fatalf("unexpected time %v", got)
	}
	if _, err := CalendarDate("2024-13-45").In(nil); err == nil {
		t.Fatalf("expected out of range month to fail")
	}
	if DateOf(got) != "2024-03-01" {
		t.Fatalf("unexpected date %q", DateOf(got))
	}
}

func TestAttendanceIDRoundTrip(t *testing.T) {
	id := AttendanceID("event-1", "person-9")
	if id != "event-1:person-9" {
		t.Fatalf("unexpected id %q", id)
	}
	e, p, ok := SplitAttendanceID(id)
	if !ok || e != "event-1" || p != "person-9" {
		t.Fatalf("unexpected split %q %q %v", e, p, ok)
	}
	if _, _, ok := SplitAttendanceID("nope"); ok {
		t.Fatalf("expected split failure")
	}
}

func TestSortEventsTieBreaks(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Base: Base{ID: "b", CreatedAt: base}, Date: "2024-05-01"},
		{Base: Base{ID: "a", CreatedAt: base}, Date: "2024-05-01"},
		{Base: Base{ID: "c", CreatedAt: base.Add(time.Hour)}, Date: "2024-05-01"},
		{Base: Base{ID: "d", CreatedAt: base}, Date: "2025-01-01"},
	}
	SortEvents(events)
	var ids string
	for _, e := range events {
		ids += e.ID
	}
	if ids != "dcab" {
		t.Fatalf("unexpected order %q", ids)
	}
}
