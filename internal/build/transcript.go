package build

import "sync"

// Transcript is the list of status lines a client displays for a build.
//
// An overwrite event takes a provisional slot at the end of the list,
// replacing the previous provisional line if there is one. The next status
// event replaces the provisional line. An error always appends and ends the
// provisional run, so the last progress line stays visible above it.
type Transcript struct {
	mu          sync.Mutex
	lines       []string
	provisional bool
}

func (t *Transcript) OnEvent(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Error != "" {
		t.lines = append(t.lines, e.Error)
		t.provisional = false
		return
	}
	if t.provisional && len(t.lines) > 0 {
		t.lines[len(t.lines)-1] = e.Status
	} else {
		t.lines = append(t.lines, e.Status)
	}
	t.provisional = e.Overwrite
}

// Lines returns a copy of the displayed lines.
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}
