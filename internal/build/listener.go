package build

import (
	"sync"
	"time"
)

// Event is a status update of a build.
type Event struct {
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	Overwrite   bool   `json:"overwrite,omitempty"`
	DownloadURL string `json:"html_download_url,omitempty"`
	PreviewURL  string `json:"html_preview_url,omitempty"`
}

// Terminal reports whether e ends a build.
func (e Event) Terminal() bool {
	return e.Error != "" || e.DownloadURL != "" || e.PreviewURL != ""
}

// Listener receives the events of a build in emission order.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// NopListener drops every event.
type NopListener struct{}

func (NopListener) OnEvent(Event) {}

// DefaultProgressInterval is the shortest gap between two overwrite events
// passed on by a ThrottledListener.
const DefaultProgressInterval = 500 * time.Millisecond

// ThrottledListener coalesces overwrite events and passes the rest through.
// Pending overwrite events are passed on before the next other event, so
// order is kept.
type ThrottledListener struct {
	next     Listener
	throttle *Throttle[Event]
	mu       sync.Mutex
	closed   bool
}

// NewThrottledListener returns a listener passing events on to next.
func NewThrottledListener(next Listener, interval time.Duration) *ThrottledListener {
	return &ThrottledListener{
		next:     next,
		throttle: NewThrottle(interval, next.OnEvent),
	}
}

func (l *ThrottledListener) OnEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if e.Overwrite {
		l.throttle.Call(e)
		return
	}
	l.throttle.Flush()
	l.next.OnEvent(e)
}

// Close passes on the pending overwrite event, if any, and stops the
// throttle. Events after Close are dropped.
func (l *ThrottledListener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.throttle.Flush()
	l.throttle.Stop()
}
