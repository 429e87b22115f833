package build

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSession(t *testing.T) {
	const buildID = "aaaaaaaa-0000-0000-0000-000000000000"

	t.Run("rejects messages without a URL or build ID", func(t *testing.T) {
		var events []Event
		s := NewSession(ListenerFunc(func(e Event) { events = append(events, e) }))

		if _, _, err := s.Begin(&CreateMessage{BuildID: buildID}); err == nil {
			t.Fatalf("want an error")
		}
		if _, _, err := s.Begin(&CreateMessage{URL: "https://example.org/feed.zip"}); err == nil {
			t.Fatalf("want an error")
		}
		if s.State() != StateIdle {
			t.Errorf("got %v, want idle", s.State())
		}
		if len(events) != 2 || events[0].Error != "No URL provided" || events[1].Error != "No Build ID provided" {
			t.Errorf("got %+v", events)
		}
	})

	t.Run("runs one build at a time", func(t *testing.T) {
		var events []Event
		s := NewSession(ListenerFunc(func(e Event) { events = append(events, e) }))

		req, progress, err := s.Begin(&CreateMessage{URL: "https://example.org/feed.zip", BuildID: buildID, Options: json.RawMessage(`{"showMap":false}`)})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if req.ID.String() != buildID || req.Options["showMap"] != false {
			t.Errorf("got %+v", req)
		}
		if s.State() != StateProcessing {
			t.Errorf("got %v, want processing", s.State())
		}

		if _, _, err = s.Begin(&CreateMessage{URL: "https://example.org/other.zip", BuildID: buildID}); err == nil {
			t.Fatalf("want an error")
		}

		progress.OnEvent(Event{Status: "Generating"})
		s.Finish(&Outcome{DownloadURL: "https://cdn/x/timetables.zip", PreviewURL: "https://cdn/x/index.html"}, nil)
		progress.OnEvent(Event{Status: "late"})
		s.Finish(nil, errors.New("twice"))

		if s.State() != StateCompleted {
			t.Errorf("got %v, want completed", s.State())
		}
		if len(events) != 3 {
			t.Fatalf("got %+v, want 3 events", events)
		}
		if events[0].Error != "A build is already in progress" {
			t.Errorf("got %+v", events[0])
		}
		if events[1].Status != "Generating" {
			t.Errorf("got %+v", events[1])
		}
		if !events[2].Terminal() || events[2].DownloadURL == "" || events[2].Error != "" {
			t.Errorf("got %+v", events[2])
		}
	})

	t.Run("reports failures with the source URL", func(t *testing.T) {
		var events []Event
		s := NewSession(ListenerFunc(func(e Event) { events = append(events, e) }))
		_, _, err := s.Begin(&CreateMessage{URL: "https://example.org/feed.zip", BuildID: buildID})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		s.Finish(nil, &Error{Kind: KindDownloadFailed, Message: "GTFS file not found at the provided URL. Please verify the URL is correct and the file exists.", URL: "https://example.org/feed.zip", StatusCode: 404})

		if s.State() != StateFailed {
			t.Errorf("got %v, want failed", s.State())
		}
		want := "GTFS file not found at the provided URL. Please verify the URL is correct and the file exists. (https://example.org/feed.zip)"
		if len(events) != 1 || events[0].Error != want || events[0].DownloadURL != "" {
			t.Errorf("got %+v, want one error %q", events, want)
		}

		if _, _, err = s.Begin(&CreateMessage{URL: "https://example.org/feed.zip", BuildID: buildID}); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if s.State() != StateProcessing {
			t.Errorf("got %v, want processing", s.State())
		}
	})

	t.Run("rejects invalid build IDs", func(t *testing.T) {
		s := NewSession(NopListener{})
		if _, _, err := s.Begin(&CreateMessage{URL: "https://example.org/feed.zip", BuildID: "../../etc"}); !IsKind(err, KindInvalidInput) {
			t.Fatalf("got %v, want invalid input", err)
		}
	})
}
