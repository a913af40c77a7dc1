// Package config loads gateway configuration from an optional .env file, an
// optional YAML file and the process environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Payments  PaymentsConfig  `yaml:"payments"`
	Relay     RelayConfig     `yaml:"relay"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// SupabaseConfig locates the hosted store and identity provider.
type SupabaseConfig struct {
	URL              string        `yaml:"url" env:"SUPABASE_URL"`
	Key              string        `yaml:"key" env:"SUPABASE_KEY"`
	ServiceRoleKey   string        `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret        string        `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	Timeout          time.Duration `yaml:"timeout" env:"SUPABASE_TIMEOUT"`
	BreakerThreshold int           `yaml:"breaker_threshold" env:"SUPABASE_BREAKER_THRESHOLD"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" env:"SUPABASE_BREAKER_COOLDOWN"`
}

// DatabaseConfig enables the direct Postgres path for transactional writes.
type DatabaseConfig struct {
	URL            string `yaml:"url" env:"DATABASE_URL"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE"`
	MaxOpenConns   int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
}

// AuthConfig controls bearer token enforcement.
type AuthConfig struct {
	Required bool `yaml:"required" env:"AUTH_REQUIRED"`
}

// CORSConfig lists allowed browser origins (comma separated in the environment).
type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// Origins splits AllowedOrigins.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// RateLimitConfig configures per-client throttling.
type RateLimitConfig struct {
	RequestsPerSecond int    `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int    `yaml:"burst" env:"RATE_LIMIT_BURST"`
	CleanupSchedule   string `yaml:"cleanup_schedule" env:"RATE_LIMIT_CLEANUP_SCHEDULE"`
}

// PaymentsConfig configures the payment webhook.
type PaymentsConfig struct {
	StripeWebhookSecret string        `yaml:"stripe_webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance    time.Duration `yaml:"webhook_tolerance" env:"STRIPE_WEBHOOK_TOLERANCE"`
}

// RelayConfig configures chat relay connections.
type RelayConfig struct {
	SendBuffer      int   `yaml:"send_buffer" env:"RELAY_SEND_BUFFER"`
	MaxMessageBytes int64 `yaml:"max_message_bytes" env:"RELAY_MAX_MESSAGE_BYTES"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Supabase: SupabaseConfig{
			Timeout:          30 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Database: DatabaseConfig{MaxOpenConns: 10},
		CORS: CORSConfig{
			AllowedOrigins: "http://localhost:3000,http://localhost:5173,https://zavolah.com",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			CleanupSchedule:   "@every 10m",
		},
		Payments: PaymentsConfig{WebhookTolerance: 5 * time.Minute},
		Relay:    RelayConfig{SendBuffer: 64, MaxMessageBytes: 64 << 10},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Options selects the optional sources.
type Options struct {
	// EnvFile is loaded with godotenv when present. Missing files are ignored.
	EnvFile string
	// ConfigFile is a YAML file. Missing files are an error when set explicitly.
	ConfigFile string
}

// Load builds the configuration from defaults, files and the environment.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	cfg := Default()

	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.Supabase.Key == "" {
		cfg.Supabase.Key = cfg.Supabase.ServiceRoleKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Supabase.Key == "" {
		return fmt.Errorf("SUPABASE_KEY or SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay send buffer must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
