// Package config loads the cmdproxy process configuration from the
// environment, reading a local .env file first when one exists.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	RoleMain      = "main"
	RoleExtension = "extension"
)

type Config struct {
	ValkeyAddress  string        `env:"CMDPROXY_VALKEY_ADDRESS" envDefault:"localhost:6379"`
	Channel        string        `env:"CMDPROXY_CHANNEL" envDefault:"cmdproxy"`
	Role           string        `env:"CMDPROXY_ROLE" envDefault:"main"`
	RequestTimeout time.Duration `env:"CMDPROXY_REQUEST_TIMEOUT" envDefault:"30s"`
	MsgBufferSize  int           `env:"CMDPROXY_MSG_BUFFER_SIZE" envDefault:"100"`
	OTelEndpoint   string        `env:"CMDPROXY_OTEL_ENDPOINT"`
	OTelEnabled    bool          `env:"CMDPROXY_OTEL_ENABLED" envDefault:"true"`
}

// Load reads .env (if present) and parses the environment into a Config
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Role {
	case RoleMain, RoleExtension:
	default:
		return fmt.Errorf("CMDPROXY_ROLE must be %q or %q, got %q", RoleMain, RoleExtension, c.Role)
	}
	if c.ValkeyAddress == "" {
		return fmt.Errorf("CMDPROXY_VALKEY_ADDRESS is not set")
	}
	if c.Channel == "" {
		return fmt.Errorf("CMDPROXY_CHANNEL is not set")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("CMDPROXY_REQUEST_TIMEOUT must not be negative")
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
