package buildamqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/k11v/gtfshtml/internal/amqputil"
	"github.com/k11v/gtfshtml/internal/build"
)

// QueueBuildFinished receives a message per finished build.
const QueueBuildFinished = "build.finished"

// QueueDeclareParams returns the declaration of QueueBuildFinished shared by
// publishers and consumers.
func QueueDeclareParams() *amqputil.QueueDeclareParams {
	return &amqputil.QueueDeclareParams{Name: QueueBuildFinished, Durable: true}
}

type Publisher interface {
	Publish(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

var _ build.Tracker = (*Tracker)(nil)

// Tracker publishes build records for the worker to store.
type Tracker struct {
	publisher Publisher // required
	queue     string
}

func NewTracker(publisher Publisher) *Tracker {
	return &Tracker{publisher: publisher, queue: QueueBuildFinished}
}

// Track implements build.Tracker.
func (t *Tracker) Track(ctx context.Context, r *build.Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("buildamqp.Tracker: %w", err)
	}

	err = t.publisher.Publish(ctx, "", t.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    r.BuildID.String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("buildamqp.Tracker: %w", err)
	}
	return nil
}
