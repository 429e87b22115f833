package buildamqp

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/k11v/gtfshtml/internal/build"
)

type publisherSpy struct {
	key string
	msg amqp091.Publishing
	err error
}

func (p *publisherSpy) Publish(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	p.key, p.msg = key, msg
	return p.err
}

type inserterSpy struct {
	records []*build.Record
	err     error
}

func (i *inserterSpy) Insert(_ context.Context, r *build.Record) (bool, error) {
	if i.err != nil {
		return false, i.err
	}
	for _, existing := range i.records {
		if existing.BuildID == r.BuildID {
			return false, nil
		}
	}
	i.records = append(i.records, r)
	return true, nil
}

// acknowledgerSpy records how a delivery was settled.
type acknowledgerSpy struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *acknowledgerSpy) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *acknowledgerSpy) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *acknowledgerSpy) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func testRecord() *build.Record {
	return &build.Record{
		BuildID:        uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000000"),
		Source:         "https://example.com/feed.zip",
		Mode:           build.ModeDirectStream,
		Outcome:        build.OutcomeFailed,
		ErrorKind:      build.KindDownloadFailed,
		ErrorMessage:   "Feed not found",
		Duration:       2 * time.Second,
		FinishedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		TimetableCount: 0,
	}
}

func TestTracker(t *testing.T) {
	t.Run("publishes the record as JSON", func(t *testing.T) {
		spy := &publisherSpy{}
		r := testRecord()

		if err := NewTracker(spy).Track(context.Background(), r); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := spy.key, QueueBuildFinished; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := spy.msg.MessageId, r.BuildID.String(); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if got, want := spy.msg.DeliveryMode, amqp091.Persistent; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}

		var got build.Record
		if err := json.Unmarshal(spy.msg.Body, &got); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if !reflect.DeepEqual(&got, r) {
			t.Fatalf("got %+v, want %+v", &got, r)
		}
	})

	t.Run("returns publish errors", func(t *testing.T) {
		spy := &publisherSpy{err: errors.New("connection refused")}
		if err := NewTracker(spy).Track(context.Background(), testRecord()); err == nil {
			t.Fatalf("got nil, want error")
		}
	})
}

func TestHandler(t *testing.T) {
	body, err := json.Marshal(testRecord())
	if err != nil {
		t.Fatalf("didn't want %q", err)
	}

	tests := []struct {
		name        string
		body        []byte
		redelivered bool
		insertErr   error
		wantAck     bool
		wantRequeue bool
		wantStored  int
	}{
		{name: "stores and acks", body: body, wantAck: true, wantStored: 1},
		{name: "drops malformed JSON", body: []byte("{"), wantStored: 0},
		{name: "drops multiple values", body: append(append([]byte{}, body...), body...), wantStored: 0},
		{name: "drops missing build id", body: []byte(`{"outcome":"completed","finished_at":"2024-05-01T12:00:00Z"}`), wantStored: 0},
		{name: "drops unknown outcome", body: []byte(`{"build_id":"aaaaaaaa-0000-0000-0000-000000000000","outcome":"maybe","finished_at":"2024-05-01T12:00:00Z"}`), wantStored: 0},
		{name: "requeues a failed insert", body: body, insertErr: errors.New("db down"), wantRequeue: true},
		{name: "drops a failed redelivery", body: body, insertErr: errors.New("db down"), redelivered: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &acknowledgerSpy{}
			inserter := &inserterSpy{err: tt.insertErr}
			h := &Handler{Inserter: inserter, Logger: zerolog.Nop()}

			h.Run(context.Background(), amqp091.Delivery{
				Acknowledger: ack,
				DeliveryTag:  1,
				Redelivered:  tt.redelivered,
				Body:         tt.body,
			})

			if got, want := ack.acked, tt.wantAck; got != want {
				t.Fatalf("got acked %v, want %v", got, want)
			}
			if got, want := ack.nacked, !tt.wantAck; got != want {
				t.Fatalf("got nacked %v, want %v", got, want)
			}
			if got, want := ack.requeue, tt.wantRequeue; got != want {
				t.Fatalf("got requeue %v, want %v", got, want)
			}
			if got, want := len(inserter.records), tt.wantStored; got != want {
				t.Fatalf("got %d stored, want %d", got, want)
			}
		})
	}

	t.Run("acks a duplicate", func(t *testing.T) {
		inserter := &inserterSpy{records: []*build.Record{testRecord()}}
		ack := &acknowledgerSpy{}
		h := &Handler{Inserter: inserter, Logger: zerolog.Nop()}

		h.Run(context.Background(), amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body})

		if !ack.acked {
			t.Fatalf("got not acked, want acked")
		}
		if got, want := len(inserter.records), 1; got != want {
			t.Fatalf("got %d stored, want %d", got, want)
		}
	})
}
