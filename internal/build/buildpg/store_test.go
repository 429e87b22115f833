package buildpg

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/k11v/gtfshtml/internal/apppg"
	"github.com/k11v/gtfshtml/internal/build"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	t.Run("inserts and gets a record", func(t *testing.T) {
		ctx := context.Background()
		store := NewTestStore(t, ctx)
		r := testRecord("aaaaaaaa-0000-0000-0000-000000000000")

		inserted, err := store.Insert(ctx, r)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if !inserted {
			t.Fatalf("got not inserted, want inserted")
		}

		got, err := store.Get(ctx, r.BuildID)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if want := r; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	})

	t.Run("doesn't overwrite a record", func(t *testing.T) {
		ctx := context.Background()
		store := NewTestStore(t, ctx)
		r := testRecord("aaaaaaaa-0000-0000-0000-000000000000")
		if _, err := store.Insert(ctx, r); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		again := *r
		again.Outcome = build.OutcomeFailed
		inserted, err := store.Insert(ctx, &again)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if inserted {
			t.Fatalf("got inserted, want not inserted")
		}

		got, err := store.Get(ctx, r.BuildID)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := got.Outcome, build.OutcomeCompleted; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("doesn't get a missing record", func(t *testing.T) {
		ctx := context.Background()
		store := NewTestStore(t, ctx)

		_, err := store.Get(ctx, uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000000"))
		if got, want := err, build.ErrNotFound; !errors.Is(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
	})

	t.Run("lists the latest records first", func(t *testing.T) {
		ctx := context.Background()
		store := NewTestStore(t, ctx)
		older := testRecord("aaaaaaaa-0000-0000-0000-000000000000")
		newer := testRecord("bbbbbbbb-0000-0000-0000-000000000000")
		newer.FinishedAt = older.FinishedAt.Add(time.Minute)
		for _, r := range []*build.Record{older, newer} {
			if _, err := store.Insert(ctx, r); err != nil {
				t.Fatalf("didn't want %q", err)
			}
		}

		got, err := store.List(ctx, 10)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if want := []*build.Record{newer, older}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	})
}

func testRecord(id string) *build.Record {
	return &build.Record{
		BuildID:        uuid.MustParse(id),
		Source:         "https://example.com/feed.zip",
		Mode:           build.ModeObjectStorage,
		Outcome:        build.OutcomeCompleted,
		TimetableCount: 12,
		Agencies:       "Example Transit",
		Duration:       1500 * time.Millisecond,
		FinishedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func NewTestStore(tb testing.TB, ctx context.Context) *Store {
	tb.Helper()

	user := "postgres"
	password := "postgres"

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
				"POSTGRES_DB":       "postgres",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	}

	c, err := testcontainers.GenericContainer(ctx, req)
	testcontainers.CleanupContainer(tb, c)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	connectionString := fmt.Sprintf("postgres://%s:%s@%s:%s/postgres?sslmode=disable", user, password, host, port.Port())

	if err = apppg.Setup(connectionString); err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	pool, err := apppg.NewPool(ctx, connectionString)
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	tb.Cleanup(pool.Close)

	return NewStore(pool)
}
