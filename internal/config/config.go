// Package config loads the gateway's process configuration from flags, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// DefaultAllowedOrigins are the front-ends the API is expected to serve.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:4173",
	"https://egarpxmaster.github.io",
}

// Config is the resolved process configuration.
type Config struct {
	Host string
	Port int

	StoreDriver    string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseSchema string
	SupabaseTable  string

	AllowedOrigins []string

	LogLevel  string
	LogFormat string
	LogFile   string

	MetricsEnabled    bool
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RegisterFlags adds the command-line overrides to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("host", "", "interface to listen on (empty for all)")
	flags.Int("port", 5000, "HTTP listen port")
	flags.String("store-driver", DriverSupabase, "record store: supabase or memory")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("log-file", "", "also write logs to this file, rotated")
	flags.Bool("metrics-enabled", true, "serve Prometheus metrics on /metrics")
	flags.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")
}

// Load resolves the configuration. Precedence is flag, environment, .env
// file, default. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("env-file", ".env")
	v.SetDefault("host", "")
	v.SetDefault("port", 5000)
	v.SetDefault("store-driver", DriverSupabase)
	v.SetDefault("supabase-table", "datos")
	v.SetDefault("allowed-origins", strings.Join(DefaultAllowedOrigins, ","))
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("metrics-enabled", true)
	v.SetDefault("shutdown-timeout", 10*time.Second)
	v.SetDefault("read-header-timeout", 5*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path := v.GetString("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		StoreDriver:       strings.ToLower(v.GetString("store-driver")),
		SupabaseURL:       v.GetString("supabase-url"),
		SupabaseKey:       v.GetString("supabase-key"),
		SupabaseSchema:    v.GetString("supabase-schema"),
		SupabaseTable:     v.GetString("supabase-table"),
		AllowedOrigins:    splitList(v.GetString("allowed-origins")),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         strings.ToLower(v.GetString("log-format")),
		LogFile:           v.GetString("log-file"),
		MetricsEnabled:    v.GetBool("metrics-enabled"),
		ShutdownTimeout:   v.GetDuration("shutdown-timeout"),
		ReadHeaderTimeout: v.GetDuration("read-header-timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSupabase:
		if c.SupabaseURL == "" {
			return errors.New("SUPABASE_URL is required")
		}
		if c.SupabaseKey == "" {
			return errors.New("SUPABASE_KEY is required")
		}
		u, err := url.Parse(c.SupabaseURL)
		if err != nil {
			return fmt.Errorf("SUPABASE_URL: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("SUPABASE_URL must be an absolute http(s) url, got %q", c.SupabaseURL)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
