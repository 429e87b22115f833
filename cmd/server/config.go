package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/k11v/gtfshtml/internal/amqputil"
	"github.com/k11v/gtfshtml/internal/apppg"
	"github.com/k11v/gtfshtml/internal/apps3"
	"github.com/k11v/gtfshtml/internal/build"
	"github.com/k11v/gtfshtml/internal/logger"
	"github.com/k11v/gtfshtml/internal/server"
)

// config holds the application configuration.
type config struct {
	Mode          build.Mode          `env:"GTFSHTML_MODE" envDefault:"direct-stream"`
	Log           logger.Config       `envPrefix:"GTFSHTML_LOG_"`
	Server        server.Config       `envPrefix:"GTFSHTML_SERVER_"`
	Build         buildConfig         `envPrefix:"GTFSHTML_BUILD_"`
	S3            apps3.Config        `envPrefix:"GTFSHTML_S3_"`
	Postgres      apppg.Config        `envPrefix:"GTFSHTML_POSTGRES_"`
	AMQP          amqputil.Config     `envPrefix:"GTFSHTML_AMQP_"`
	FeedDirectory feedDirectoryConfig `envPrefix:"GTFSHTML_FEED_DIRECTORY_"`
}

type buildConfig struct {
	Timeout         time.Duration `env:"TIMEOUT"`        // default: build.DefaultTimeout
	MaxConcurrent   int64         `env:"MAX_CONCURRENT"` // default: build.DefaultMaxConcurrent
	MaxFeedSize     int64         `env:"MAX_FEED_SIZE"`  // default: build.DefaultMaxFeedSize
	TempDir         string        `env:"TEMP_DIR"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"2m"`
	Command         string        `env:"COMMAND"` // default: "gtfs-to-html"
	Args            []string      `env:"ARGS" envSeparator:" "`
}

type feedDirectoryConfig struct {
	BaseURL string `env:"BASE_URL"`
	APIKey  string `env:"API_KEY"`
}

// parseConfig parses the application configuration from the environment variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case build.ModeDirectStream:
	case build.ModeObjectStorage:
		if cfg.S3.ConnectionString == "" {
			return nil, fmt.Errorf("GTFSHTML_S3_CONNECTION_STRING is required in %s mode", cfg.Mode)
		}
	default:
		return nil, fmt.Errorf("unknown GTFSHTML_MODE %q", cfg.Mode)
	}

	return &cfg, nil
}
