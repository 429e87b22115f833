package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/k11v/gtfshtml/internal/apppg"
	"github.com/k11v/gtfshtml/internal/apps3"
	"github.com/k11v/gtfshtml/internal/logger"
)

// config holds the setup configuration. Only the configured stores are set up.
type config struct {
	Log      logger.Config `envPrefix:"GTFSHTML_LOG_"`
	S3       apps3.Config  `envPrefix:"GTFSHTML_S3_"`
	Postgres apppg.Config  `envPrefix:"GTFSHTML_POSTGRES_"`
}

func main() {
	run := func() int {
		var cfg config
		if err := env.Parse(&cfg); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		log := logger.Named(logger.New(&cfg.Log, nil), "setup")

		if cfg.Postgres.DSN == "" && cfg.S3.ConnectionString == "" {
			log.Error().Err(errors.New("nothing to set up")).Msg("neither postgres nor object storage is configured")
			return 1
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if cfg.Postgres.DSN != "" {
			if err := apppg.Setup(cfg.Postgres.DSN); err != nil {
				log.Error().Err(err).Msg("didn't set up postgres")
				return 1
			}
			log.Info().Msg("set up postgres")
		}

		if cfg.S3.ConnectionString != "" {
			client := apps3.NewClient(cfg.S3.ConnectionString, cfg.S3.Region)
			if err := apps3.Setup(ctx, client, cfg.S3.BucketName(), cfg.S3.ExpirationDuration()); err != nil {
				log.Error().Err(err).Msg("didn't set up object storage")
				return 1
			}
			log.Info().Str("bucket", cfg.S3.BucketName()).Msg("set up object storage")
		}

		return 0
	}
	os.Exit(run())
}
