package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	StoreBackend   string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string        `mapstructure:"DB_SCHEMA"`
	SnapshotDir    string        `mapstructure:"SNAPSHOT_DIR"`
	SeedFile       string        `mapstructure:"SEED_FILE"`
	Passphrase     string        `mapstructure:"WARD_PASSPHRASE"`
	PassphraseHash string        `mapstructure:"WARD_PASSPHRASE_HASH"`
	SessionSecret  string        `mapstructure:"SESSION_SECRET"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	EventStream    string        `mapstructure:"EVENT_STREAM"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	UploadLimit    string        `mapstructure:"UPLOAD_LIMIT"`
	Currency       string        `mapstructure:"CURRENCY"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_SCHEMA", "SNAPSHOT_DIR", "SEED_FILE", "WARD_PASSPHRASE", "WARD_PASSPHRASE_HASH",
	"SESSION_SECRET", "SESSION_TTL", "REDIS_URL", "EVENT_STREAM", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"UPLOAD_LIMIT", "CURRENCY", "TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", StoreMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "ward")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("EVENT_STREAM", "ward:events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "12M")
	v.SetDefault("CURRENCY", "GNF")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether a passphrase gate is configured. Without one
// the server only runs in development, with an open dev session.
func (c *Config) AuthEnabled() bool {
	return c.PassphraseHash != "" || c.Passphrase != ""
}

// Warnings lists settings that are accepted but unsafe outside development.
func (c *Config) Warnings() []string {
	var w []string
	if !c.AuthEnabled() {
		w = append(w, "no WARD_PASSPHRASE_HASH configured: every request gets an open development session")
	}
	if c.Passphrase != "" && c.PassphraseHash == "" {
		w = append(w, "WARD_PASSPHRASE is set in clear text: store WARD_PASSPHRASE_HASH instead (see `ward-server hash-passphrase`)")
	}
	if c.AuthEnabled() && c.SessionSecret == "" {
		w = append(w, "SESSION_SECRET is empty: a random secret is generated and sessions will not survive a restart")
	}
	if c.StoreBackend == StoreMemory && c.SnapshotDir == "" {
		w = append(w, "memory store without SNAPSHOT_DIR: ward data is lost on shutdown")
	}
	return w
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StorePostgres, c.StoreBackend)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 characters")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if c.IsProduction() {
		if c.PassphraseHash == "" {
			return fmt.Errorf("WARD_PASSPHRASE_HASH is required in production")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in production")
		}
	} else if !c.IsDev() && !c.AuthEnabled() {
		return fmt.Errorf("a passphrase is required outside development (ENV=%q)", c.Env)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}
