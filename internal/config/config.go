// Package config loads the kdcd server configuration from YAML.
//
// The file is decoded over Default, so settings it leaves out keep their
// defaults and explicit values, zero included, are taken as written. A few
// secrets and the listen address may then be overridden from the
// environment. Command-line flags are
// applied by the caller on top of the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Environment variables that override the file.
const (
	EnvVaultPassphrase = "CIPHERLINK_VAULT_PASSPHRASE"
	EnvTokenSecret     = "CIPHERLINK_TOKEN_SECRET"
	EnvListen          = "CIPHERLINK_LISTEN"
)

type Config struct {
	Listen    string    `yaml:"listen"`
	Log       Log       `yaml:"log"`
	Storage   Storage   `yaml:"storage"`
	Vault     Vault     `yaml:"vault"`
	Auth      Auth      `yaml:"auth"`
	KDC       KDC       `yaml:"kdc"`
	PFS       PFS       `yaml:"pfs"`
	Lifecycle Lifecycle `yaml:"lifecycle"`
	Ledger    Ledger    `yaml:"ledger"`
	Events    Events    `yaml:"events"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type Storage struct {
	Driver string `yaml:"driver"` // badger, sqlite or memory
	Path   string `yaml:"path"`
}

type Vault struct {
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`
}

type Auth struct {
	TokenSecret string        `yaml:"tokenSecret"`
	TokenTTL    time.Duration `yaml:"tokenTTL"`
}

type KDC struct {
	SessionTTL time.Duration `yaml:"sessionTTL"`
	RateLimit  RateLimit     `yaml:"rateLimit"`
}

// RateLimit allows Requests per Window per user.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type PFS struct {
	PendingTTL     time.Duration `yaml:"pendingTTL"`
	EstablishedTTL time.Duration `yaml:"establishedTTL"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`
}

type Lifecycle struct {
	RevokedRetention time.Duration `yaml:"revokedRetention"`
	SweepInterval    time.Duration `yaml:"sweepInterval"`
}

type Ledger struct {
	// Difficulty is the number of leading zero bits a block hash needs,
	// from 1 to 32.
	Difficulty int `yaml:"difficulty"`
}

type Events struct {
	MaxLimit     int `yaml:"maxLimit"`
	DefaultLimit int `yaml:"defaultLimit"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() Config {
	return Config{
		Listen:  ":8080",
		Log:     Log{Level: "info", Format: "text"},
		Storage: Storage{Driver: "badger", Path: "./data"},
		Vault:   Vault{Salt: "cipherlink-vault"},
		Auth:    Auth{TokenTTL: 24 * time.Hour},
		KDC: KDC{
			SessionTTL: 30 * time.Minute,
			RateLimit:  RateLimit{Requests: 5, Window: time.Minute},
		},
		PFS: PFS{
			PendingTTL:     120 * time.Second,
			EstablishedTTL: 10 * time.Minute,
			SweepInterval:  15 * time.Second,
		},
		Lifecycle: Lifecycle{
			RevokedRetention: 720 * time.Hour,
			SweepInterval:    30 * time.Second,
		},
		Ledger: Ledger{Difficulty: 16},
		Events: Events{MaxLimit: 500, DefaultLimit: 100},
	}
}

// Load reads path, applies defaults and environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.env(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) env(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvVaultPassphrase); ok && v != "" {
		c.Vault.Passphrase = v
	}
	if v, ok := lookup(EnvTokenSecret); ok && v != "" {
		c.Auth.TokenSecret = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Listen = v
	}
}

// Validate reports the first setting the server cannot run with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "badger", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Vault.Passphrase == "" {
		return fmt.Errorf("config: vault passphrase required (set %s)", EnvVaultPassphrase)
	}
	if len(c.Auth.TokenSecret) < 16 {
		return fmt.Errorf("config: token secret must be at least 16 bytes (set %s)", EnvTokenSecret)
	}
	if c.Listen == "" {
		return errors.New("config: listen address required")
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"auth.tokenTTL", c.Auth.TokenTTL},
		{"kdc.sessionTTL", c.KDC.SessionTTL},
		{"kdc.rateLimit.window", c.KDC.RateLimit.Window},
		{"pfs.pendingTTL", c.PFS.PendingTTL},
		{"pfs.establishedTTL", c.PFS.EstablishedTTL},
		{"pfs.sweepInterval", c.PFS.SweepInterval},
		{"lifecycle.revokedRetention", c.Lifecycle.RevokedRetention},
		{"lifecycle.sweepInterval", c.Lifecycle.SweepInterval},
	} {
		if d.v <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", d.name, d.v)
		}
	}
	if c.KDC.RateLimit.Requests <= 0 {
		return errors.New("config: kdc.rateLimit.requests must be positive")
	}
	if c.Events.DefaultLimit <= 0 {
		return errors.New("config: events.defaultLimit must be positive")
	}
	if c.Ledger.Difficulty < 1 || c.Ledger.Difficulty > 32 {
		return errors.New("config: ledger difficulty must be between 1 and 32 bits")
	}
	if c.Events.DefaultLimit > c.Events.MaxLimit {
		return errors.New("config: events.defaultLimit exceeds events.maxLimit")
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
