// Package config reads the register service settings from the environment.
// Unset or unparsable variables fall back to their defaults; Load rejects
// values the service cannot run with.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Zone database for REGISTER_TIMEZONE on hosts without one.
	_ "time/tzdata"
)

type CORSConfig struct {
	AllowedOrigins []string
}

type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig controls trace export. Tracing is off unless Enabled.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string // OTLP/gRPC collector
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// RegisterConfig defines the inbound SMS channel and the register's
// housekeeping intervals.
type RegisterConfig struct {
	AccountSID    string        // REGISTER_ACCOUNT_SID: expected provider account
	Number        string        // REGISTER_NUMBER: expected destination number
	Timezone      string        // REGISTER_TIMEZONE: IANA zone of entry timestamps
	FragmentTTL   time.Duration // FRAGMENT_TTL: max age of an incomplete buffer
	SweepInterval time.Duration // FRAGMENT_SWEEP_INTERVAL: housekeeping period
	ReceiptTTL    time.Duration // RECEIPT_TTL: how long retries are recognized
	ExportLimit   int           // EXPORT_LIMIT: lines per export
}

// Location returns the register time zone. Load has already validated it, so
// an unknown zone only happens for hand-built configs and maps to UTC.
func (r RegisterConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Config is the full service configuration. The environment variable behind
// each field is listed in Load.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string

	LogLevel       string
	LogPretty      bool
	LogRedact      bool // mask senders and provider ids in access logs
	SwaggerEnabled bool
	APIBasePath    string

	DBPath    string
	BodyLimit int64 // webhook and bulk body cap, bytes
	Register  RegisterConfig

	// Shared by the webhook (keyed by sender) and the read routes (keyed by IP).
	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig
}

// MustLoad is Load for callers that cannot start without a config.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load builds a Config from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath:    getenv("DB_PATH", "register.db"),
		BodyLimit: int64(getint("BODY_LIMIT_BYTES", 1<<20)),
		Register: RegisterConfig{
			AccountSID:    strings.TrimSpace(getenv("REGISTER_ACCOUNT_SID", "")),
			Number:        strings.TrimSpace(getenv("REGISTER_NUMBER", "")),
			Timezone:      getenv("REGISTER_TIMEZONE", "Europe/Madrid"),
			FragmentTTL:   getdur("FRAGMENT_TTL", 24*time.Hour),
			SweepInterval: getdur("FRAGMENT_SWEEP_INTERVAL", time.Hour),
			ReceiptTTL:    getdur("RECEIPT_TTL", 48*time.Hour),
			ExportLimit:   getint("EXPORT_LIMIT", 100),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-travel-register"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL %q: want debug, info, warn, error, fatal or panic", c.LogLevel)
	}
	if _, err := time.LoadLocation(c.Register.Timezone); err != nil {
		return fmt.Errorf("REGISTER_TIMEZONE: %w", err)
	}
	r := c.Register
	checks := []struct {
		bad bool
		msg string
	}{
		{strings.TrimSpace(c.Port) == "", "PORT must not be empty"},
		{c.ReadTimeout <= 0 || c.ReadHeaderTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0, "timeouts must be positive durations"},
		{c.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{strings.TrimSpace(c.DBPath) == "", "DB_PATH must not be empty"},
		{c.BodyLimit <= 0, "BODY_LIMIT_BYTES must be > 0"},
		{r.FragmentTTL <= 0 || r.SweepInterval <= 0 || r.ReceiptTTL <= 0, "FRAGMENT_TTL, FRAGMENT_SWEEP_INTERVAL and RECEIPT_TTL must be positive durations"},
		{r.ExportLimit < 1, "EXPORT_LIMIT must be >= 1"},
		{c.RateRPS < 0, "RATE_RPS must be >= 0"},
		{c.RateBurst < 1, "RATE_BURST must be >= 1"},
		{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	for _, ck := range checks {
		if ck.bad {
			return errors.New(ck.msg)
		}
	}
	return nil
}

// lookup parses k with parse, returning def when k is unset, empty or invalid.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getbool(k string, def bool) bool {
	return lookup(k, def, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a bool: %q", v)
	})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing one.
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
