package domain

import (
	"cmp"
	"slices"
	"strings"
)

// SortPeople orders people by name (byte-wise) and then by id.
func SortPeople(people []Person) {
	slices.SortFunc(people, func(a, b Person) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// SortEvents orders events newest date first. Events on the same day are
// ordered by creation time, newest first, and then by id.
func SortEvents(events []Event) {
	slices.SortFunc(events, func(a, b Event) int {
		if c := strings.Compare(string(b.Date), string(a.Date)); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// SortAttendance orders records by their composite id.
func SortAttendance(records []Attendance) {
	slices.SortFunc(records, func(a, b Attendance) int {
		return strings.Compare(a.ID, b.ID)
	})
}
