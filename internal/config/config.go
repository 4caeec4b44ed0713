package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds all runtime configuration for the relay.
type Config struct {
	Host              string
	Port              int
	LogLevel          string
	SweepInterval     time.Duration
	IdleTTL           time.Duration
	SubscriberBuffer  int
	KeepaliveInterval time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	Healthcheck       bool
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from an optional .env file, environment variables
// and command-line flags, in increasing order of precedence. It applies
// defaults and returns an error for any invalid value. args excludes the
// program name. pflag.ErrHelp is returned unwrapped when -h is given.
func Load(args []string) (*Config, error) {
	// Optional: a missing .env file is fine.
	_ = godotenv.Load()

	port, err := getInt("PORT", 18686)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	sweepInterval, err := getDuration("SWEEP_INTERVAL", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	idleTTL, err := getDuration("IDLE_TTL", 300*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TTL: %w", err)
	}

	subscriberBuffer, err := getInt("SUBSCRIBER_BUFFER", 100)
	if err != nil {
		return nil, fmt.Errorf("invalid SUBSCRIBER_BUFFER: %w", err)
	}

	keepaliveInterval, err := getDuration("KEEPALIVE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid KEEPALIVE_INTERVAL: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Host:              getStr("HOST", "0.0.0.0"),
		Port:              port,
		LogLevel:          getStr("LOG_LEVEL", "info"),
		SweepInterval:     sweepInterval,
		IdleTTL:           idleTTL,
		SubscriberBuffer:  subscriberBuffer,
		KeepaliveInterval: keepaliveInterval,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ShutdownTimeout:   shutdownTimeout,
	}

	flagSet := newFlagSet(cfg)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, err
		}
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage returns the command-line flag help text.
func Usage() string {
	return newFlagSet(&Config{Host: "0.0.0.0", Port: 18686, LogLevel: "info"}).FlagUsages()
}

func newFlagSet(cfg *Config) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("hookrelay", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&cfg.Host, "host", cfg.Host, "host address to bind")
	flagSet.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	flagSet.BoolVar(&cfg.Healthcheck, "healthcheck", false, "run a health check against a running server and exit")
	return flagSet
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.SubscriberBuffer < 1 {
		return fmt.Errorf("invalid SUBSCRIBER_BUFFER: %d, must be at least 1", c.SubscriberBuffer)
	}
	for name, d := range map[string]time.Duration{
		"SWEEP_INTERVAL":     c.SweepInterval,
		"IDLE_TTL":           c.IdleTTL,
		"KEEPALIVE_INTERVAL": c.KeepaliveInterval,
		"READ_TIMEOUT":       c.ReadTimeout,
		"IDLE_TIMEOUT":       c.IdleTimeout,
		"SHUTDOWN_TIMEOUT":   c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %v, must be positive", name, d)
		}
	}
	return nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
