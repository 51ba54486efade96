package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestPartitionEventsByTimeReferenceDay(t *testing.T) {
	events := []Event{
		{Base: Base{ID: "a"}, Date: "2021-11-29"},
		{Base: Base{ID: "c"}, Date: "2021-11-28"},
		{Base: Base{ID: "b"}, Date: "2021-11-27"},
		{Base: Base{ID: "x"}, Date: "garbage"},
	}
	ref := time.Date(2021, 11, 28, 23, 59, 0, 0, time.UTC)
	got := PartitionEventsByTime(events, ref)
	if len(got.FutureEvents) != 2 || got.FutureEvents[0].ID != "a" || got.FutureEvents[1].ID != "c" {
		t.Fatalf("unexpected future events %+v", got.FutureEvents)
	}
	if len(got.PastEvents) != 2 || got.PastEvents[0].ID != "b" || got.PastEvents[1].ID != "x" {
		t.Fatalf("unexpected past events %+v", got.PastEvents)
	}
}

func TestPartitionEventsByTimeUsesReferenceLocation(t *testing.T) {
	events := []Event{{Base: Base{ID: "e"}, Date: "2021-11-28"}}
	// 2021-11-28 03:00 in UTC+5 is still 2021-11-27 in UTC.
	plus5 := time.FixedZone("plus5", 5*3600)
	ref := time.Date(2021, 11, 28, 3, 0, 0, 0, plus5)
	if got := PartitionEventsByTime(events, ref); len(got.FutureEvents) != 1 {
		t.Fatalf("expected event on the local reference day to be future")
	}
	if got := PartitionEventsByTime(events, ref.AddDate(0, 0, 1)); len(got.PastEvents) != 1 {
		t.Fatalf("expected event before the reference day to be past")
	}
}

func TestPartitionEventsByTimeIsTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		events := make([]Event, n)
		for i := range events {
			day := rapid.IntRange(0, 3650).Draw(t, fmt.Sprintf("day%d", i))
			date := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
			events[i] = Event{Base: Base{ID: fmt.Sprint(i)}, Date: CalendarDate(date.Format("2006-01-02"))}
		}
		refDay := rapid.IntRange(0, 3650).Draw(t, "ref")
		ref := time.Date(2015, 1, 1, rapid.IntRange(0, 23).Draw(t, "hour"), 0, 0, 0, time.UTC).AddDate(0, 0, refDay)
		got := PartitionEventsByTime(events, ref)
		if len(got.FutureEvents)+len(got.PastEvents) != n {
			t.Fatalf("partition lost events: %d + %d != %d", len(got.FutureEvents), len(got.PastEvents), n)
		}
		today := CalendarDate(ref.Format("2006-01-02"))
		for _, e := range got.FutureEvents {
			if e.Date < today {
				t.Fatalf("past event %s in future half (ref %s)", e.Date, today)
			}
		}
		for _, e := range got.PastEvents {
			if e.Date >= today {
				t.Fatalf("event %s on or after %s in past half", e.Date, today)
			}
		}
	})
}

func TestStatsMatchPeopleForEvent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc := newTestService()
		people := rapid.IntRange(1, 6).Draw(t, "people")
		var ids []string
		for i := 0; i < people; i++ {
			p, _, err := svc.AddPerson(ctx, PersonInput{Name: fmt.Sprintf("Person %c", 'A'+i), AllowDuplicate: true})
			if err != nil {
				t.Fatalf("add person: %v", err)
			}
			ids = append(ids, p.ID)
		}
		e, _, err := svc.AddEvent(ctx, EventInput{Title: "Event", Date: "2024-01-01"})
		if err != nil {
			t.Fatalf("add event: %v", err)
		}
		steps := rapid.IntRange(0, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			pid := rapid.SampledFrom(ids).Draw(t, "person")
			on := rapid.Bool().Draw(t, "on")
			if rapid.Bool().Draw(t, "paid") {
				_, err = svc.SetPaid(ctx, e.ID, pid, on)
			} else {
				_, err = svc.SetAttending(ctx, e.ID, pid, on)
			}
			if err != nil {
				t.Fatalf("step: %v", err)
			}
		}
		stats := svc.EventStats(e.ID)
		attending, unpaid := 0, 0
		for _, row := range svc.PeopleForEvent(e.ID) {
			if row.Attending {
				attending++
				if row.PaidAt == nil {
					unpaid++
				}
			}
		}
		if stats.Attending != attending || stats.Unpaid != unpaid {
			t.Fatalf("stats %+v disagree with rows (%d attending, %d unpaid)", stats, attending, unpaid)
		}
		if len(svc.Store().ListAttendance()) != attending {
			t.Fatalf("attendance records disagree with rows")
		}
	})
}
