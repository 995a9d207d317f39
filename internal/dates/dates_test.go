package dates

import "testing"

func TestParseShapes(t *testing.T) {
	tests := []struct {
		in       string
		dateOnly bool
		day      string
	}{
		{"2025-10-20", true, "2025-10-20"},
		{"2025-10-20 09:30:00", false, "2025-10-20"},
	}
	for _, tt := range tests {
		st, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if st.DateOnly() != tt.dateOnly {
			t.Errorf("Parse(%q).DateOnly() = %v, want %v", tt.in, st.DateOnly(), tt.dateOnly)
		}
		if st.Day() != tt.day {
			t.Errorf("Parse(%q).Day() = %q, want %q", tt.in, st.Day(), tt.day)
		}
		if st.String() != tt.in {
			t.Errorf("Parse(%q).String() = %q, round-trip broken", tt.in, st.String())
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "20251020", "2025-13-01", "2025-10-20 25:00:00"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestCalendarPrev(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"midweek day steps one back", "2025-10-16", "2025-10-15"},
		{"monday skips the weekend", "2025-10-20", "2025-10-17"},
		{"sunday lands on friday", "2025-10-19", "2025-10-17"},
		{"intraday steps one hour", "2025-10-20 09:30:00", "2025-10-20 08:30:00"},
		// The hour step crosses into the weekend without skipping it.
		{"intraday does not skip weekends", "2025-10-20 00:30:00", "2025-10-19 23:30:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.in).CalendarPrev().String()
			if got != tt.want {
				t.Fatalf("CalendarPrev(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDayOf(t *testing.T) {
	if got := DayOf("2025-10-16 09:00:00"); got != "2025-10-16" {
		t.Fatalf("DayOf = %q", got)
	}
	if got := DayOf("2025-10-16"); got != "2025-10-16" {
		t.Fatalf("DayOf = %q", got)
	}
	if !SameDay("2025-10-16", "2025-10-16 15:00:00") {
		t.Fatal("SameDay should match day prefix")
	}
	if SameDay("2025-10-16", "2025-10-17 15:00:00") {
		t.Fatal("SameDay matched different days")
	}
}
