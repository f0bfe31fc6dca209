// Package config loads cloister's runtime configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file checked against an embedded CUE schema, then CLOISTER_*
// environment variables. The CLI applies its flags on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/cloister/internal/auth"
	"github.com/roach88/cloister/internal/codegen"
	"github.com/roach88/cloister/internal/engine"
	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/transport/telegram"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CLOISTER_"

// EnvFile names the variable that points at the YAML file.
const EnvFile = EnvPrefix + "CONFIG"

// Config is the full runtime configuration.
type Config struct {
	Token           string        `yaml:"token" env:"TOKEN"`
	Database        string        `yaml:"database" env:"DATABASE"`
	AuditChat       int64         `yaml:"audit_chat" env:"AUDIT_CHAT"`
	Hermits         []int64       `yaml:"hermits" env:"HERMITS"`
	Initiates       []int64       `yaml:"initiates" env:"INITIATES"`
	WebhookURL      string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	MetricsAddr     string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	OTelEndpoint    string        `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`
	MaxCodeAttempts int           `yaml:"max_code_attempts" env:"MAX_CODE_ATTEMPTS"`
	SendRate        float64       `yaml:"send_rate" env:"SEND_RATE"`
	SendBurst       int           `yaml:"send_burst" env:"SEND_BURST"`
	AuditTimeout    time.Duration `yaml:"audit_timeout" env:"AUDIT_TIMEOUT"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Database:        "cloister.db",
		ListenAddr:      ":8443",
		MaxCodeAttempts: codegen.DefaultMaxAttempts,
		SendRate:        telegram.DefaultRate,
		SendBurst:       telegram.DefaultBurst,
		AuditTimeout:    engine.DefaultAuditTimeout,
	}
}

// Load builds a Config from defaults, the YAML file at path (or the file
// named by CLOISTER_CONFIG when path is empty; no file is fine) and the
// environment. It does not call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvFile)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays CLOISTER_* variables that are set. List variables are
// comma separated.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("token is required (CLOISTER_TOKEN)"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if len(c.Hermits) == 0 {
		errs = append(errs, errors.New("at least one hermit id is required"))
	}
	if _, err := c.Authorizer(); err != nil {
		errs = append(errs, err)
	}
	if c.WebhookURL != "" && c.ListenAddr == "" {
		errs = append(errs, errors.New("webhook mode needs a listen address"))
	}
	if c.MaxCodeAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max code attempts must be positive, got %d", c.MaxCodeAttempts))
	}
	if c.SendRate <= 0 || c.SendBurst <= 0 {
		errs = append(errs, fmt.Errorf("send rate and burst must be positive, got %g/%d", c.SendRate, c.SendBurst))
	}
	if c.AuditTimeout <= 0 {
		errs = append(errs, fmt.Errorf("audit timeout must be positive, got %s", c.AuditTimeout))
	}
	return errors.Join(errs...)
}

// Authorizer builds the static role gate from the hermit and initiate ids.
func (c Config) Authorizer() (*auth.Static, error) {
	a, err := auth.NewStatic(actorIDs(c.Hermits), actorIDs(c.Initiates))
	if err != nil {
		return nil, fmt.Errorf("build authorizer: %w", err)
	}
	return a, nil
}

// Webhook reports whether updates arrive by webhook rather than polling.
func (c Config) Webhook() bool {
	return c.WebhookURL != ""
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = "***"
	}
	return c
}

func actorIDs(ids []int64) []model.ActorID {
	out := make([]model.ActorID, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ActorID(id))
	}
	return out
}
