package release

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	valid := []string{
		"0 */6 * * *",
		"*/15 * * * *",
		"30 3 * * 1",
		"@daily",
		"@hourly",
	}
	for _, expr := range valid {
		if _, err := ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q): %v", expr, err)
		}
	}

	invalid := []string{
		"",
		"every day",
		"* * * *",
		"0 0 * * * *",
		"61 * * * *",
	}
	for _, expr := range invalid {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) accepted a malformed expression", expr)
		}
	}
}

func TestScheduleNext(t *testing.T) {
	s, err := ParseSchedule("0 */6 * * *")
	if err != nil {
		t.Fatal(err)
	}

	after := time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)
	next := s.Next(after)
	want := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}

	if s.Expression() != "0 */6 * * *" {
		t.Errorf("Expression() = %q", s.Expression())
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule("@daily"); err != nil {
		t.Errorf("ValidateSchedule(@daily): %v", err)
	}
	if err := ValidateSchedule("bogus"); err == nil {
		t.Error("ValidateSchedule accepted a malformed expression")
	}
}
