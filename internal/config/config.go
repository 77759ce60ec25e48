package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ovaphlow/pitchfork/service-dream-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-dream-go/pkg/utilities"
)

// Config contains server configuration parameters.
type Config struct {
	HTTPAddr      string           `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	SnowflakeNode int64            `env:"SNOWFLAKE_NODE" envDefault:"1"`
	Log           utilities.Config `envPrefix:"LOG_"`
	Database      database.Config  `envPrefix:"DATABASE_"`
	Redis         Redis            `envPrefix:"REDIS_"`
	Token         Token            `envPrefix:"TOKEN_"`
	CORS          CORS             `envPrefix:"CORS_"`
	Completion    Completion       `envPrefix:"COMPLETION_"`
	RateLimit     RateLimit        `envPrefix:"RATE_LIMIT_"`
}

// Redis contains credential store parameters. An empty Addr selects the
// in-memory store.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Token contains signing parameters. Secret has no default on purpose: an
// empty secret makes every request answer server_misconfigured.
type Token struct {
	Secret string        `env:"SECRET"`
	TTL    time.Duration `env:"TTL" envDefault:"168h"`
}

// CORS contains the browser origin allow-list.
type CORS struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// Completion contains the upstream language-completion endpoint parameters.
type Completion struct {
	URL     string        `env:"URL" envDefault:"https://api.openai.com/v1/chat/completions"`
	APIKey  string        `env:"API_KEY"`
	Model   string        `env:"MODEL" envDefault:"gpt-4o-mini"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// RateLimit configures the token bucket applied to /register and /login.
type RateLimit struct {
	RPS   float64 `env:"RPS" envDefault:"5"`
	Burst int     `env:"BURST" envDefault:"10"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.CORS.AllowedOrigins = trimOrigins(cfg.CORS.AllowedOrigins)
	return &cfg, nil
}

func trimOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
