package buildamqp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/k11v/gtfshtml/internal/build"
)

// Inserter stores build records.
type Inserter interface {
	Insert(ctx context.Context, r *build.Record) (bool, error)
}

// Handler stores the records of build.finished deliveries.
type Handler struct {
	Inserter Inserter // required
	Logger   zerolog.Logger
}

// Run handles m and acknowledges it. Malformed messages are dropped; a
// message that fails to store is requeued once.
func (h *Handler) Run(ctx context.Context, m amqp091.Delivery) {
	log := h.Logger.With().Uint64("delivery_tag", m.DeliveryTag).Logger()

	if err := m.Headers.Validate(); err != nil {
		log.Error().Err(fmt.Errorf("invalid header: %w", err)).Msg("dropping message")
		_ = m.Nack(false, false)
		return
	}

	r, err := decodeRecord(m.Body)
	if err != nil {
		log.Error().Err(fmt.Errorf("invalid body: %w", err)).Msg("dropping message")
		_ = m.Nack(false, false)
		return
	}
	log = log.With().Str("build_id", r.BuildID.String()).Logger()

	inserted, err := h.Inserter.Insert(ctx, r)
	if err != nil {
		log.Error().Err(err).Bool("redelivered", m.Redelivered).Msg("didn't store record")
		_ = m.Nack(false, !m.Redelivered)
		return
	}
	if !inserted {
		log.Info().Msg("record already stored")
	}

	_ = m.Ack(false)
}

func decodeRecord(body []byte) (*build.Record, error) {
	var r build.Record
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("multiple top-level values")
	}

	// Body field build_id.
	if r.BuildID == uuid.Nil {
		return nil, fmt.Errorf("missing %s body field", "build_id")
	}

	// Body field outcome.
	switch r.Outcome {
	case build.OutcomeCompleted, build.OutcomeFailed:
	case "":
		return nil, fmt.Errorf("missing %s body field", "outcome")
	default:
		return nil, fmt.Errorf("invalid %s body field: %q", "outcome", r.Outcome)
	}

	// Body field finished_at.
	if r.FinishedAt.IsZero() {
		return nil, fmt.Errorf("missing %s body field", "finished_at")
	}

	return &r, nil
}
