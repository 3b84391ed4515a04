package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" envDefault:"development"`

	// Monitor endpoint (remotedev-server)
	Hostname     string `env:"DEVTOOLS_HOSTNAME" envDefault:"localhost"`
	Port         int    `env:"DEVTOOLS_PORT" envDefault:"8000"`
	Secure       bool   `env:"DEVTOOLS_SECURE" envDefault:"false"`
	InstanceName string `env:"DEVTOOLS_INSTANCE_NAME"`

	// Connection timings
	HandshakeTimeout time.Duration `env:"DEVTOOLS_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteWait        time.Duration `env:"DEVTOOLS_WRITE_WAIT" envDefault:"10s"`
	PongWait         time.Duration `env:"DEVTOOLS_PONG_WAIT" envDefault:"60s"` // no frame from the monitor within this window = dead connection

	// Status surface, disabled when empty
	StatusAddr string `env:"STATUS_ADDR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// LoadConfig loads configuration from a .env file (if any) and environment variables
func LoadConfig() (*Config, error) {
	// a missing .env is fine, system env vars still apply
	if err := godotenv.Load(".env"); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.Hostname == "" {
		errors = append(errors, "DEVTOOLS_HOSTNAME must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, "DEVTOOLS_PORT must be between 1 and 65535")
	}

	if c.HandshakeTimeout <= 0 {
		errors = append(errors, "DEVTOOLS_HANDSHAKE_TIMEOUT must be positive")
	}
	if c.WriteWait <= 0 {
		errors = append(errors, "DEVTOOLS_WRITE_WAIT must be positive")
	}
	if c.PongWait <= 0 {
		errors = append(errors, "DEVTOOLS_PONG_WAIT must be positive")
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// SocketURL returns the SocketCluster endpoint of the monitor
func (c *Config) SocketURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port)),
		Path:   "/socketcluster/",
	}
	return u.String()
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}
