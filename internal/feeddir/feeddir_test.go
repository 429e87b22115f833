package feeddir

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newDirectory(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/getLocations", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","results":{"locations":[]}}`))
	})
	mux.HandleFunc("GET /v1/getFeeds", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		_, _ = w.Write([]byte(`{"location":"` + q.Get("location") + `","limit":"` + q.Get("limit") + `"}`))
	})
	mux.HandleFunc("GET /v1/getFeedVersions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"feed":"` + r.URL.Query().Get("feed") + `"}`))
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestClient(t *testing.T) {
	s := newDirectory(t)
	c := &Client{BaseURL: s.URL + "/v1/", APIKey: "secret", HTTP: s.Client()}
	ctx := context.Background()

	t.Run("gets locations", func(t *testing.T) {
		got, err := c.Locations(ctx)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if want := `{"status":"OK","results":{"locations":[]}}`; string(got) != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})

	t.Run("passes feed query", func(t *testing.T) {
		got, err := c.Feeds(ctx, "67", 20)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if want := `{"location":"67","limit":"20"}`; string(got) != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})

	t.Run("passes feed id", func(t *testing.T) {
		got, err := c.FeedVersions(ctx, "sfmta/60")
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if want := `{"feed":"sfmta/60"}`; string(got) != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	})

	t.Run("reports status", func(t *testing.T) {
		bad := &Client{BaseURL: s.URL + "/v1/", APIKey: "wrong", HTTP: s.Client()}
		_, err := bad.Locations(ctx)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("got %v, want *StatusError", err)
		}
		if got, want := statusErr.StatusCode, http.StatusForbidden; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	})

	t.Run("requires a key", func(t *testing.T) {
		_, err := (&Client{BaseURL: s.URL + "/v1/"}).Locations(ctx)
		if !errors.Is(err, ErrNoAPIKey) {
			t.Fatalf("got %v, want %v", err, ErrNoAPIKey)
		}
	})
}
