package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/k11v/gtfshtml/internal/amqputil"
	"github.com/k11v/gtfshtml/internal/apppg"
	"github.com/k11v/gtfshtml/internal/apps3"
	"github.com/k11v/gtfshtml/internal/build"
	"github.com/k11v/gtfshtml/internal/build/buildamqp"
	"github.com/k11v/gtfshtml/internal/build/buildpg"
	"github.com/k11v/gtfshtml/internal/build/builds3"
	"github.com/k11v/gtfshtml/internal/feeddir"
	"github.com/k11v/gtfshtml/internal/logger"
	"github.com/k11v/gtfshtml/internal/metrics"
	"github.com/k11v/gtfshtml/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	run := func() int {
		cfg, err := parseConfig(os.Environ())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		log := logger.New(&cfg.Log, nil)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := metrics.NewRegistry()
		pipeline := &build.Pipeline{
			Stager: &build.Stager{
				Client:      &http.Client{Timeout: cfg.Build.DownloadTimeout},
				MaxFeedSize: cfg.Build.MaxFeedSize,
				TempDir:     cfg.Build.TempDir,
			},
			Converter: &build.ExecConverter{
				Command: cfg.Build.Command,
				Args:    cfg.Build.Args,
				Logger:  logger.Named(log, "converter"),
			},
			TemplateDir:   cfg.Server.TemplateDir,
			Timeout:       cfg.Build.Timeout,
			MaxConcurrent: cfg.Build.MaxConcurrent,
			Recorder:      metrics.NewRecorder(reg),
			Logger:        logger.Named(log, "build"),
		}
		deps := &server.Deps{
			Pipeline: pipeline,
			Mode:     cfg.Mode,
			Metrics:  metrics.Handler(reg),
		}

		if cfg.Mode == build.ModeObjectStorage {
			publicURL, err := cfg.S3.BucketURL()
			if err != nil {
				log.Error().Err(err).Msg("invalid object storage config")
				return 1
			}
			s3Client := apps3.NewClient(cfg.S3.ConnectionString, cfg.S3.Region)
			deps.Publisher = builds3.NewPublisher(s3Client, cfg.S3.BucketName(), cfg.S3.ExpirationDuration())
			deps.PublicURL = publicURL
		}

		if cfg.Postgres.DSN != "" {
			db, err := apppg.NewPool(ctx, cfg.Postgres.DSN)
			if err != nil {
				log.Error().Err(err).Msg("didn't connect to postgres")
				return 1
			}
			defer db.Close()
			store := buildpg.NewStore(db)
			deps.Records = store
			pipeline.Tracker = store
		}

		// With a broker, records go through the worker instead.
		if cfg.AMQP.ConnectionString != "" {
			mq := amqputil.NewClient(cfg.AMQP.ConnectionString, buildamqp.QueueDeclareParams())
			pipeline.Tracker = buildamqp.NewTracker(mq)
		}

		if cfg.FeedDirectory.APIKey != "" {
			deps.Feeds = &feeddir.Client{
				BaseURL: cfg.FeedDirectory.BaseURL,
				APIKey:  cfg.FeedDirectory.APIKey,
				HTTP:    &http.Client{Timeout: 30 * time.Second},
			}
		}

		srv := server.New(&cfg.Server, log, deps)

		shutdownErr := make(chan error, 1)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			shutdownErr <- srv.Shutdown(shutdownCtx)
		}()

		log.Info().Str("addr", srv.Addr).Str("mode", string(cfg.Mode)).Msg("starting server")
		err = srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			return 1
		}

		if err = <-shutdownErr; err != nil {
			log.Error().Err(err).Msg("didn't shut down cleanly")
			return 1
		}
		log.Info().Msg("stopped server")
		return 0
	}
	os.Exit(run())
}
