package domain

import (
	"strings"
	"unicode"
)

// MakeSafeString lower-cases s and drops every rune that is not a letter, so
// "Jean-Luc", "jean luc" and "JEANLUC!" all reduce to "jeanluc".
func MakeSafeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CompareNames reports whether candidate loosely equals existing and, when it
// does, returns existing.
func CompareNames(existing, candidate string) (string, bool) {
	if MakeSafeString(existing) == MakeSafeString(candidate) {
		return existing, true
	}
	return "", false
}

// FindDuplicate returns the first person in collection order whose name
// loosely equals candidate.
func FindDuplicate(people []Person, candidate string) (Person, bool) {
	want := MakeSafeString(candidate)
	for _, p := range people {
		if MakeSafeString(p.Name) == want {
			return p, true
		}
	}
	return Person{}, false
}

// FindDuplicateName is FindDuplicate over plain names, used for batches that
// have not been stored yet.
func FindDuplicateName(names []string, candidate string) (string, bool) {
	for _, n := range names {
		if match, ok := CompareNames(n, candidate); ok {
			return match, true
		}
	}
	return "", false
}
