package cronspec

import (
	"errors"
	"testing"
	"time"
)

func TestParseFieldCount(t *testing.T) {
	cases := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"four fields", "* * * *"},
		{"seven fields", "* * * * * * *"},
		{"blank", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.expr, time.UTC)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Fatalf("Parse(%q) err = %v, want ErrInvalidFormat", tc.expr, err)
			}
		})
	}
}

func TestParseFieldValues(t *testing.T) {
	cases := []struct {
		name string
		expr string
	}{
		{"minute out of range", "61 * * * *"},
		{"month out of range", "0 0 * 13 *"},
		{"garbage field", "0 0 * * x!"},
		{"descriptor rejected", "@hourly * * * *"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.expr, time.UTC)
			if !errors.Is(err, ErrInvalidField) {
				t.Fatalf("Parse(%q) err = %v, want ErrInvalidField", tc.expr, err)
			}
		})
	}
}

func TestNextAfterStrictlyGreater(t *testing.T) {
	tr, err := Parse("0 0 * * *", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Exactly on a fire boundary: next must be the following day, not "now".
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next, ok := tr.NextAfter(from)
	if !ok {
		t.Fatal("NextAfter returned ok=false")
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextAfterStep(t *testing.T) {
	tr, err := Parse("*/15 * * * *", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	from := time.Date(2024, 3, 10, 10, 7, 0, 0, time.UTC)
	next, ok := tr.NextAfter(from)
	if !ok {
		t.Fatal("NextAfter returned ok=false")
	}
	want := time.Date(2024, 3, 10, 10, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextAfterSeconds(t *testing.T) {
	tr, err := Parse("*/5 * * * * *", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	from := time.Date(2024, 3, 10, 10, 0, 2, 0, time.UTC)
	next, ok := tr.NextAfter(from)
	if !ok {
		t.Fatal("NextAfter returned ok=false")
	}
	want := time.Date(2024, 3, 10, 10, 0, 5, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextAfterMonotonic(t *testing.T) {
	tr, err := Parse("30 8 * * 1-5", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cur := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		next, ok := tr.NextAfter(cur)
		if !ok {
			t.Fatalf("NextAfter(%v) returned ok=false", cur)
		}
		if !next.After(cur) {
			t.Fatalf("next %v not after %v", next, cur)
		}
		cur = next
	}
}

func TestNextAfterDomDowUnion(t *testing.T) {
	// Both day-of-month and day-of-week restricted: fires when EITHER matches.
	tr, err := Parse("0 0 13 * 5", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// Thu 2024-06-06; the following Friday (2024-06-07) should fire even
	// though the 13th is still a week away.
	from := time.Date(2024, 6, 6, 12, 0, 0, 0, time.UTC)
	next, ok := tr.NextAfter(from)
	if !ok {
		t.Fatal("NextAfter returned ok=false")
	}
	want := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	// And from Sat 2024-06-08 the next fire is the 13th (a Thursday).
	from = time.Date(2024, 6, 8, 0, 0, 1, 0, time.UTC)
	next, ok = tr.NextAfter(from)
	if !ok {
		t.Fatal("NextAfter returned ok=false")
	}
	want = time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextAfterExhausted(t *testing.T) {
	// Feb 30 never exists.
	tr, err := Parse("0 0 30 2 *", time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if next, ok := tr.NextAfter(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); ok {
		t.Fatalf("expected exhaustion, got next = %v", next)
	}
}

func TestNextAfterTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tr, err := Parse("0 9 * * *", loc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// 09:00 EDT == 13:00 UTC during daylight saving.
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	next, ok := tr.NextAfter(from)
	if !ok {
		t.Fatal("NextAfter returned ok=false")
	}
	want := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v (%v), want %v", next, next.UTC(), want)
	}
}
