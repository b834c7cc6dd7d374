package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBFile          string        `env:"TECHPAINT_DB" envDefault:"techpaint.db"`
	AdminAddr       string        `env:"ADMIN_ADDR" envDefault:"localhost:8081"`
	APIAddr         string        `env:"API_ADDR" envDefault:":8080"`
	BaseURL         string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	AuthSecret      string        `env:"AUTH_SECRET"`
	TokenExpiry     time.Duration `env:"TOKEN_EXPIRY" envDefault:"24h"`
	CorporateDomain string        `env:"CORPORATE_DOMAIN" envDefault:"techpaint.com"`
	RoomHistory     int           `env:"ROOM_HISTORY" envDefault:"100"`
	DefaultRoom     string        `env:"DEFAULT_ROOM" envDefault:"general"`

	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `env:"VAPID_SUBSCRIBER" envDefault:"admin@techpaint.com"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads the configuration from the environment. In CLI mode the
// server secret is not required.
func Load(cliMode bool) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.AuthSecret == "" && !cliMode {
		return errors.New("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return errors.New("TOKEN_EXPIRY must be greater than 0")
	}

	if c.RoomHistory < 0 {
		return errors.New("ROOM_HISTORY must not be negative")
	}

	if c.CorporateDomain == "" {
		return errors.New("CORPORATE_DOMAIN is required")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// PushEnabled reports whether web push keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
