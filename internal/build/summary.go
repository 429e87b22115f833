package build

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Summary is the key-value log the generator writes next to its output.
type Summary map[string]string

// ParseSummary parses "Key: value" lines.
// Lines without a colon are ignored and later keys win.
func ParseSummary(r io.Reader) (Summary, error) {
	s := make(Summary)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		s[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("build.ParseSummary: %w", err)
	}
	return s, nil
}

// ReadSummary reads the summary file at name.
func ReadSummary(name string) (Summary, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("build.ReadSummary: %w", err)
	}
	defer f.Close()
	return ParseSummary(f)
}

// TimetableCount returns the "Timetable Count" field, or 0 if it is absent
// or not a number.
func (s Summary) TimetableCount() int {
	n, err := strconv.Atoi(strings.ReplaceAll(s["Timetable Count"], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// Agencies returns the "Agencies" field.
func (s Summary) Agencies() string {
	return s["Agencies"]
}
