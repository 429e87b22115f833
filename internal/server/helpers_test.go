package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/k11v/gtfshtml/internal/build"
)

// fakeConverter writes a small archive and summary like the generator does.
type fakeConverter struct{}

func (fakeConverter) Convert(ctx context.Context, params *build.ConvertParams) (*build.ConvertResult, error) {
	ws := params.Workspace
	params.Listener.OnEvent(build.Event{Status: "Generating timetables"})
	if err := os.MkdirAll(ws.OutputDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(ws.ArchivePath(), []byte("PK fake timetables"), 0o600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(ws.OutputDir, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		return nil, err
	}
	logPath := filepath.Join(ws.OutputDir, "log.txt")
	if err := os.WriteFile(logPath, []byte("Timetable Count: 3\nAgencies: Test Transit\n"), 0o600); err != nil {
		return nil, err
	}
	summary, err := build.ReadSummary(logPath)
	if err != nil {
		return nil, err
	}
	return &build.ConvertResult{OutputDir: ws.OutputDir, ArchivePath: ws.ArchivePath(), Summary: summary}, nil
}

type publisherSpy struct {
	mu     sync.Mutex
	params []*build.PublishParams
}

func (p *publisherSpy) Publish(ctx context.Context, params *build.PublishParams) (*build.PublishResult, error) {
	p.mu.Lock()
	p.params = append(p.params, params)
	p.mu.Unlock()
	if params.Progress != nil {
		params.Progress(50, 100)
		params.Progress(100, 100)
	}
	return &build.PublishResult{Uploaded: 3}, nil
}

func (p *publisherSpy) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.params)
}

const testPublicURL = "https://cdn.example.com/builds"

// newFeedServer serves a valid feed at /feed.zip. Other paths are 404.
func newFeedServer(tb testing.TB) *httptest.Server {
	tb.Helper()
	feed := gtfsZip(tb)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(feed)
	})
	srv := httptest.NewServer(mux)
	tb.Cleanup(srv.Close)
	return srv
}

// newTestServer starts the handler with a fake converter.
// The feed server's client is used to download feeds.
func newTestServer(tb testing.TB, cfg *Config, deps *Deps, feeds *httptest.Server) *httptest.Server {
	tb.Helper()
	if deps.Pipeline == nil {
		stager := &build.Stager{TempDir: tb.TempDir()}
		if feeds != nil {
			stager.Client = feeds.Client()
		}
		deps.Pipeline = &build.Pipeline{
			Stager:           stager,
			Converter:        fakeConverter{},
			ProgressInterval: 1,
			Logger:           zerolog.Nop(),
		}
	}
	srv := httptest.NewServer(newHandler(cfg, zerolog.Nop(), deps))
	tb.Cleanup(srv.Close)
	return srv
}

func gtfsZip(tb testing.TB) []byte {
	tb.Helper()
	files := []struct{ name, content string }{
		{"agency.txt", "agency_id,agency_name\nTT,Test Transit\n"},
		{"routes.txt", "route_id,route_short_name\nR1,1\n"},
		{"stop_times.txt", "trip_id,arrival_time,departure_time,stop_id,stop_sequence\nT1,08:00:00,08:00:00,S1,1\n"},
		{"trips.txt", "route_id,service_id,trip_id\nR1,WK,T1\n"},
	}
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			tb.Fatalf("didn't want %q", err)
		}
		if _, err = w.Write([]byte(f.content)); err != nil {
			tb.Fatalf("didn't want %q", err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return buf.Bytes()
}

func postJSON(tb testing.TB, url string, body string) *http.Response {
	tb.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	tb.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(tb testing.TB, url string) *http.Response {
	tb.Helper()
	resp, err := http.Get(url)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	tb.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(tb testing.TB, resp *http.Response) string {
	tb.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	return string(b)
}

func decodeError(tb testing.TB, resp *http.Response) string {
	tb.Helper()
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	if e.Success {
		tb.Errorf("got success true in error response")
	}
	return e.Error
}
