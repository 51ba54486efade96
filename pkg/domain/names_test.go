package domain

import (
	"strings"
	"testing"
	"unicode"

	"pgregory.net/rapid"
)

func TestMakeSafeString(t *testing.T) {
	cases := map[string]string{
		" Random str1ng with Ch@rs ": "randomstrngwithchrs",
		"Ben O'Malley":               "benomalley",
		"ben omalley":                "benomalley",
		"Zoë":                        "zoë",
		"42":                         "",
	}
	for in, want := range cases {
		if got := MakeSafeString(in); got != want {
			t.Fatalf("MakeSafeString(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompareNames(t *testing.T) {
	if got, ok := CompareNames("Ben O'Malley", "ben omalley"); !ok || got != "Ben O'Malley" {
		t.Fatalf("expected loose match, got %q %v", got, ok)
	}
	if _, ok := CompareNames("Ben O'Malley", "Benjamin OMalley"); ok {
		t.Fatalf("expected distinct names")
	}
}

func TestFindDuplicateFirstMatch(t *testing.T) {
	people := []Person{
		{Base: Base{ID: "1"}, Name: "Sam"},
		{Base: Base{ID: "2"}, Name: "S.A.M."},
		{Base: Base{ID: "3"}, Name: "Alex"},
	}
	got, ok := FindDuplicate(people, "sam")
	if !ok || got.ID != "1" {
		t.Fatalf("expected first match, got %+v %v", got, ok)
	}
	if _, ok := FindDuplicate(people, "Robin"); ok {
		t.Fatalf("expected no match")
	}
	if name, ok := FindDuplicateName([]string{"Alex", "Jo Jo"}, "jojo"); !ok || name != "Jo Jo" {
		t.Fatalf("expected batch match, got %q %v", name, ok)
	}
}

func TestMakeSafeStringProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		safe := MakeSafeString(s)
		if MakeSafeString(safe) != safe {
			t.Fatalf("not idempotent for %q", s)
		}
		for _, r := range safe {
			if !unicode.IsLetter(r) {
				t.Fatalf("non-letter %q survived in %q", r, safe)
			}
		}
	})
}

func TestMakeSafeStringIgnoresASCIICase(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[A-Za-z0-9 '.,!-]{0,24}`).Draw(t, "s")
		if MakeSafeString(strings.ToUpper(s)) != MakeSafeString(s) {
			t.Fatalf("case sensitive for %q", s)
		}
	})
}

func TestCompareNamesSymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringMatching(`[A-Za-z '.-]{0,12}`).Draw(t, "a")
		b := rapid.StringMatching(`[A-Za-z '.-]{0,12}`).Draw(t, "b")
		_, ab := CompareNames(a, b)
		_, ba := CompareNames(b, a)
		if ab != ba {
			t.Fatalf("asymmetric for %q / %q", a, b)
		}
		if _, ok := CompareNames(a, a); !ok {
			t.Fatalf("name %q must match itself", a)
		}
	})
}
