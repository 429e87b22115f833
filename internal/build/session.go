package build

import (
	"encoding/json"
	"errors"
	"sync"
)

// State is the state of a status channel.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CreateMessage asks a status channel to start a build.
// Options is a JSON object or a string holding one.
type CreateMessage struct {
	URL      string          `json:"url"`
	BuildID  string          `json:"buildId"`
	Options  json.RawMessage `json:"options,omitempty"`
	Template string          `json:"template,omitempty"`
}

var errBuildInProgress = errors.New("build in progress")

// Session tracks the build of one status channel connection and sends its
// events to the client. A channel runs one build at a time; a build started
// after a terminal event starts from a fresh state.
type Session struct {
	send Listener

	mu    sync.Mutex
	state State
	gen   uint64
}

// NewSession returns an idle session sending events to send.
func NewSession(send Listener) *Session {
	return &Session{send: send}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin validates msg and moves the session to processing.
// On error an error event is sent and the state is left as it was.
func (s *Session) Begin(msg *CreateMessage) (*Request, Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateProcessing {
		e := newError(KindInvalidInput, "A build is already in progress", errBuildInProgress)
		s.send.OnEvent(Event{Error: e.Message})
		return nil, nil, e
	}

	req, err := requestFromMessage(msg)
	if err != nil {
		e := AsError(err)
		s.send.OnEvent(Event{Error: e.Describe()})
		return nil, nil, e
	}

	s.gen++
	s.state = StateProcessing
	return req, s.progress(s.gen), nil
}

func requestFromMessage(msg *CreateMessage) (*Request, error) {
	if msg == nil || msg.URL == "" {
		return nil, newError(KindInvalidInput, "No URL provided", nil)
	}
	if msg.BuildID == "" {
		return nil, newError(KindInvalidInput, "No Build ID provided", nil)
	}
	id, err := ParseID(msg.BuildID)
	if err != nil {
		return nil, err
	}
	options, err := DecodeOptions(msg.Options)
	if err != nil {
		return nil, err
	}
	req, err := NewURLRequest(msg.URL, options, msg.Template)
	if err != nil {
		return nil, err
	}
	req.ID = id
	return req, nil
}

// progress returns the listener of build gen. Events stop once the build
// has ended.
func (s *Session) progress(gen uint64) Listener {
	return ListenerFunc(func(e Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.state != StateProcessing || e.Terminal() {
			return
		}
		s.send.OnEvent(e)
	})
}

// Finish sends the terminal event of the current build and moves the
// session to completed or failed. It does nothing if no build is running.
func (s *Session) Finish(outcome *Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateProcessing {
		return
	}
	if err != nil || outcome == nil {
		if err == nil {
			err = newError(KindConversionFailure, msgUnableToProcess, nil)
		}
		s.state = StateFailed
		s.send.OnEvent(Event{Error: AsError(err).Describe()})
		return
	}
	s.state = StateCompleted
	s.send.OnEvent(outcome.CompletedEvent())
}
