package main

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Consumer interface {
	Consume(ctx context.Context, prefetch int, onReady func(), handle func(amqp091.Delivery)) error
}

type DeliveryHandler interface {
	Run(ctx context.Context, m amqp091.Delivery)
}

type Worker struct {
	Consumer Consumer        // required
	Handler  DeliveryHandler // required
	Logger   zerolog.Logger

	// wait is time.After unless a test replaces it.
	wait func(time.Duration) <-chan time.Time
}

// Run consumes until ctx is done. A lost connection is retried with
// growing waits; the wait is reset once a delivery is handled again.
func (w *Worker) Run(ctx context.Context) error {
	wait := w.wait
	if wait == nil {
		wait = time.After
	}

	retries := 0
	for {
		consumeErr := w.Consumer.Consume(ctx, 1, func() {
			if retries > 0 {
				w.Logger.Info().Int("retries", retries).Msg("recovered")
				retries = 0
			}
		}, func(m amqp091.Delivery) {
			w.Logger.Debug().Uint64("delivery_tag", m.DeliveryTag).Msg("received message")
			w.Handler.Run(ctx, m)
		})
		if err := ctx.Err(); err != nil {
			return err
		}
		w.Logger.Error().Err(consumeErr).Msg("didn't consume")

		retries++
		select {
		case <-wait(retryWaitDuration(retries - 1)):
		case <-ctx.Done():
			return ctx.Err()
		}
		w.Logger.Info().Int("retries", retries).Msg("retrying")
	}
}

// retryWaitDuration calculates the wait duration for a retry.
// It is calculated using exponential backoff with jitter.
// It grows with each retry and stops growing after thirteenth retry
// where it is chosen from the the interval (32.4s, 97.4s).
// The first retry number is 0, the thirteenth is 12.
func retryWaitDuration(retry int) time.Duration {
	n := min(retry, 12)
	second := int(time.Second)

	// start with 0.5s
	duration := second / 2

	// multiply by 1.5 to the power of n
	for i := 0; i < n; i++ {
		duration /= 2
		duration *= 3
	}

	// add or subtract up to 50%
	jitter := rand.IntN(duration) - duration/2
	duration += jitter

	return time.Duration(duration)
}
