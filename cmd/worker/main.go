package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"github.com/k11v/gtfshtml/internal/amqputil"
	"github.com/k11v/gtfshtml/internal/apppg"
	"github.com/k11v/gtfshtml/internal/build/buildamqp"
	"github.com/k11v/gtfshtml/internal/build/buildpg"
	"github.com/k11v/gtfshtml/internal/logger"
)

// config holds the worker configuration.
type config struct {
	Log      logger.Config   `envPrefix:"GTFSHTML_LOG_"`
	Postgres apppg.Config    `envPrefix:"GTFSHTML_POSTGRES_"`
	AMQP     amqputil.Config `envPrefix:"GTFSHTML_AMQP_"`
}

func parseConfig(environ []string) (*config, error) {
	var cfg config
	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("GTFSHTML_POSTGRES_DSN is required")
	}
	if cfg.AMQP.ConnectionString == "" {
		return nil, errors.New("GTFSHTML_AMQP_CONNECTION_STRING is required")
	}
	return &cfg, nil
}

func main() {
	run := func() int {
		cfg, err := parseConfig(os.Environ())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		log := logger.Named(logger.New(&cfg.Log, nil), "worker")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := apppg.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error().Err(err).Msg("didn't connect to postgres")
			return 1
		}
		defer db.Close()

		mq := amqputil.NewClient(cfg.AMQP.ConnectionString, buildamqp.QueueDeclareParams())
		worker := &Worker{
			Consumer: mq,
			Handler:  &buildamqp.Handler{Inserter: buildpg.NewStore(db), Logger: log},
			Logger:   log,
		}

		log.Info().Str("queue", mq.Queue()).Msg("starting worker")
		if err = worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("worker failed")
			return 1
		}
		log.Info().Msg("stopped worker")
		return 0
	}
	os.Exit(run())
}
