package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/k11v/gtfshtml/internal/build"
)

func dialStatus(tb testing.TB, srv *httptest.Server) *websocket.Conn {
	tb.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	tb.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendCreate(tb testing.TB, conn *websocket.Conn, msg build.CreateMessage) {
	tb.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	if err = conn.WriteJSON(frame{Event: "create", Data: data}); err != nil {
		tb.Fatalf("didn't want %q", err)
	}
}

// readUntilTerminal returns the status events up to and including the
// first terminal one.
func readUntilTerminal(tb testing.TB, conn *websocket.Conn) []build.Event {
	tb.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var events []build.Event
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			tb.Fatalf("didn't want %q", err)
		}
		if f.Event != "status" {
			tb.Fatalf("got event %q, want status", f.Event)
		}
		var e build.Event
		if err := json.Unmarshal(f.Data, &e); err != nil {
			tb.Fatalf("didn't want %q", err)
		}
		events = append(events, e)
		if e.Terminal() {
			return events
		}
	}
}

func TestStatus(t *testing.T) {
	feeds := newFeedServer(t)
	publisher := &publisherSpy{}
	srv := newTestServer(t, &Config{}, &Deps{
		Mode:      build.ModeObjectStorage,
		Publisher: publisher,
		PublicURL: testPublicURL,
	}, feeds)

	t.Run("reports a build until it's published", func(t *testing.T) {
		conn := dialStatus(t, srv)
		id := build.NewID()
		sendCreate(t, conn, build.CreateMessage{URL: feeds.URL + "/feed.zip", BuildID: id.String()})

		events := readUntilTerminal(t, conn)
		last := events[len(events)-1]
		if got, want := last.Status, "Timetable upload completed"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := last.DownloadURL, testPublicURL+"/"+id.String()+"/timetables.zip"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := last.PreviewURL, testPublicURL+"/"+id.String()+"/index.html"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		var sawConversion bool
		for _, e := range events[:len(events)-1] {
			if e.Terminal() {
				t.Fatalf("got terminal event %+v before the last one", e)
			}
			if e.Status == "Generating timetables" {
				sawConversion = true
			}
		}
		if !sawConversion {
			t.Fatalf("got %+v, want the converter's status", events)
		}
	})

	t.Run("reports a download failure with the url", func(t *testing.T) {
		conn := dialStatus(t, srv)
		url := feeds.URL + "/missing.zip"
		sendCreate(t, conn, build.CreateMessage{URL: url, BuildID: build.NewID().String()})

		events := readUntilTerminal(t, conn)
		want := "GTFS file not found at the provided URL. Please verify the URL is correct and the file exists. (" + url + ")"
		if got := events[len(events)-1].Error; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("rejects a message without a url", func(t *testing.T) {
		conn := dialStatus(t, srv)
		sendCreate(t, conn, build.CreateMessage{BuildID: build.NewID().String()})

		events := readUntilTerminal(t, conn)
		if got, want := events[len(events)-1].Error, "No URL provided"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("accepts options as a string", func(t *testing.T) {
		conn := dialStatus(t, srv)
		sendCreate(t, conn, build.CreateMessage{
			URL:     feeds.URL + "/feed.zip",
			BuildID: build.NewID().String(),
			Options: json.RawMessage(`"{\"showMap\":false}"`),
		})

		events := readUntilTerminal(t, conn)
		last := events[len(events)-1]
		if last.Error != "" {
			t.Fatalf("didn't want %q", last.Error)
		}
		if got, want := last.Status, "Timetable upload completed"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("rejects a malformed options string", func(t *testing.T) {
		conn := dialStatus(t, srv)
		sendCreate(t, conn, build.CreateMessage{
			URL:     feeds.URL + "/feed.zip",
			BuildID: build.NewID().String(),
			Options: json.RawMessage(`"{"`),
		})

		events := readUntilTerminal(t, conn)
		if got, want := events[len(events)-1].Error, "Invalid options JSON. Check the syntax and try again."; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("rejects malformed data", func(t *testing.T) {
		conn := dialStatus(t, srv)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"create","data":"nope"}`)); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		events := readUntilTerminal(t, conn)
		if got, want := events[len(events)-1].Error, "Invalid message"; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})
}
