package core

import (
	"time"

	"rollcall/pkg/domain"
)

// SelectPeopleForEvent joins every person, in name order, with their
// attendance for eventID.
func SelectPeopleForEvent(view TransactionView, eventID string) []PersonForEvent {
	people := view.ListPeople()
	out := make([]PersonForEvent, 0, len(people))
	for _, p := range people {
		row := PersonForEvent{Person: p}
		if a, ok := view.FindAttendance(domain.AttendanceID(eventID, p.ID)); ok {
			row.Attending = true
			row.PaidAt = a.PaidAt
		}
		out = append(out, row)
	}
	return out
}

// SelectEventStats counts the attendees of eventID and how many have not paid.
func SelectEventStats(view TransactionView, eventID string) EventStats {
	return statsByEvent(view.ListAttendance())[eventID]
}

func statsByEvent(records []Attendance) map[string]EventStats {
	out := make(map[string]EventStats)
	for _, a := range records {
		s := out[a.EventID]
		s.Attending++
		if !a.Paid() {
			s.Unpaid++
		}
		out[a.EventID] = s
	}
	return out
}

// SelectUnpaidEventsCount returns the number of events with at least one
// attendee who has not paid.
func SelectUnpaidEventsCount(view TransactionView) int {
	count := 0
	for _, s := range statsByEvent(view.ListAttendance()) {
		if s.Unpaid > 0 {
			count++
		}
	}
	return count
}

// SelectTotalEventsCount returns the number of events.
func SelectTotalEventsCount(view TransactionView) int {
	return len(view.ListEvents())
}

// PartitionEventsByTime splits events around the calendar day of ref, read in
// ref's location. Events on that day count as future. Events whose date
// cannot be parsed count as past. Both halves keep the input order.
func PartitionEventsByTime(events []Event, ref time.Time) EventsByTime {
	out := EventsByTime{FutureEvents: []Event{}, PastEvents: []Event{}}
	loc := ref.Location()
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	for _, e := range events {
		at, err := e.Date.In(loc)
		if err == nil && !at.Before(day) {
			out.FutureEvents = append(out.FutureEvents, e)
			continue
		}
		out.PastEvents = append(out.PastEvents, e)
	}
	return out
}
