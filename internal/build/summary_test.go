package build

import (
	"strings"
	"testing"
)

func TestParseSummary(t *testing.T) {
	in := "Agencies: Test Transit, Other: Lines\nStart Date: 20240101\nTimetable Page Count: 2\nTimetable Count: 1,204\n\nnot a field\n"
	s, err := ParseSummary(strings.NewReader(in))
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}
	if got, want := s.Agencies(), "Test Transit, Other: Lines"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := s.TimetableCount(), 1204; got != want {
		t.Errorf("got %d, want %d", got, want)
	}
	if got, want := s["Timetable Page Count"], "2"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if _, ok := s["not a field"]; ok {
		t.Errorf("didn't want a line without a colon")
	}
}

func TestSummaryTimetableCountMissing(t *testing.T) {
	if got := (Summary{}).TimetableCount(); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}
