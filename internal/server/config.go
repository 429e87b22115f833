package server

import (
	"time"
)

// DefaultMaxUploadSize is the largest archive accepted by the upload form.
const DefaultMaxUploadSize = 4 << 20

// Config holds the server configuration.
type Config struct {
	Host              string        `env:"HOST"` // default: "127.0.0.1"
	Port              int           `env:"PORT"` // default: 8080
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT"`
	MaxUploadSize     int64         `env:"MAX_UPLOAD_SIZE"` // default: DefaultMaxUploadSize
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	TemplateDir       string        `env:"TEMPLATE_DIR"`
	ConfigDir         string        `env:"CONFIG_DIR"`
	Swagger           bool          `env:"SWAGGER"`
}

func (c *Config) host() string {
	h := c.Host
	if h == "" {
		h = "127.0.0.1"
	}
	return h
}

func (c *Config) port() int {
	p := c.Port
	if p == 0 {
		p = 8080
	}
	return p
}

func (c *Config) maxUploadSize() int64 {
	n := c.MaxUploadSize
	if n <= 0 {
		n = DefaultMaxUploadSize
	}
	return n
}
