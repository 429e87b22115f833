package buildpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/k11v/gtfshtml/internal/build"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store keeps build records in the builds table.
type Store struct {
	db Querier // required
}

func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// Track implements build.Tracker.
func (s *Store) Track(ctx context.Context, r *build.Record) error {
	_, err := s.Insert(ctx, r)
	return err
}

// Insert stores r. It reports false if a record with the same build ID
// already exists, in which case the stored record is left unchanged.
func (s *Store) Insert(ctx context.Context, r *build.Record) (bool, error) {
	query := `
		INSERT INTO builds (
			id, source, mode, outcome,
			error_kind, error_message,
			timetable_count, agencies,
			duration_ms, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	args := []any{
		r.BuildID, r.Source, string(r.Mode), r.Outcome,
		string(r.ErrorKind), r.ErrorMessage,
		r.TimetableCount, r.Agencies,
		r.Duration.Milliseconds(), r.FinishedAt,
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("buildpg.Store: insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns the record of build id or build.ErrNotFound.
func (s *Store) Get(ctx context.Context, id build.ID) (*build.Record, error) {
	query := `
		SELECT
			id, source, mode, outcome,
			error_kind, error_message,
			timetable_count, agencies,
			duration_ms, finished_at
		FROM builds
		WHERE id = $1
	`
	args := []any{id}

	rows, _ := s.db.Query(ctx, query, args...)
	r, err := pgx.CollectExactlyOneRow(rows, rowToRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, build.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("buildpg.Store: get: %w", err)
	}
	return r, nil
}

// List returns up to limit records, most recently finished first.
func (s *Store) List(ctx context.Context, limit int) ([]*build.Record, error) {
	query := `
		SELECT
			id, source, mode, outcome,
			error_kind, error_message,
			timetable_count, agencies,
			duration_ms, finished_at
		FROM builds
		ORDER BY finished_at DESC, id ASC
		LIMIT $1
	`
	args := []any{limit}

	rows, _ := s.db.Query(ctx, query, args...)
	records, err := pgx.CollectRows(rows, rowToRecord)
	if err != nil {
		return nil, fmt.Errorf("buildpg.Store: list: %w", err)
	}
	return records, nil
}

type row struct {
	ID             uuid.UUID `db:"id"`
	Source         string    `db:"source"`
	Mode           string    `db:"mode"`
	Outcome        string    `db:"outcome"`
	ErrorKind      string    `db:"error_kind"`
	ErrorMessage   string    `db:"error_message"`
	TimetableCount int       `db:"timetable_count"`
	Agencies       string    `db:"agencies"`
	DurationMS     int64     `db:"duration_ms"`
	FinishedAt     time.Time `db:"finished_at"`
}

func rowToRecord(collectableRow pgx.CollectableRow) (*build.Record, error) {
	collectedRow, err := pgx.RowToStructByName[row](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to record: %w", err)
	}

	return &build.Record{
		BuildID:        collectedRow.ID,
		Source:         collectedRow.Source,
		Mode:           build.Mode(collectedRow.Mode),
		Outcome:        collectedRow.Outcome,
		ErrorKind:      build.Kind(collectedRow.ErrorKind),
		ErrorMessage:   collectedRow.ErrorMessage,
		TimetableCount: collectedRow.TimetableCount,
		Agencies:       collectedRow.Agencies,
		Duration:       time.Duration(collectedRow.DurationMS) * time.Millisecond,
		FinishedAt:     collectedRow.FinishedAt.UTC(),
	}, nil
}
