// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes board tuning (sync
// retry interval, timers, cache sizes), the status API server settings,
// logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the
// status API.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "rescue-board")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BoardConfig tunes the rescue board core.
type BoardConfig struct {
	Channel           string        // rescue channel notices are sent to
	SyncRetryInterval time.Duration // fixed backoff between failed uploads
	PrepTimeout       time.Duration // delay before the per-case prep warning
	PaperworkInterval time.Duration // period of the paperwork-reminder sweep
	RecentClosedSize  int           // recently-closed cache entries kept for reopen/undo
	IDRecencySize     int           // recently issued display IDs remembered by the allocator
	Blacklist         []string      // names barred from assignment
}

// Config holds all configuration values for the application.
type Config struct {
	// Status API server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for status API routes

	// App
	DBPath string // SQLite path for the closed-case archive
	Board  BoardConfig

	// Outbound notification rate limiting
	NotifyRPS   float64 // tokens per second (>= 0)
	NotifyBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Status API server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "board.db"),
		Board: BoardConfig{
			Channel:           getenv("RESCUE_CHANNEL", "#rescue"),
			SyncRetryInterval: getdur("SYNC_RETRY_INTERVAL", 30*time.Second),
			PrepTimeout:       getdur("PREP_TIMEOUT", 5*time.Minute),
			PaperworkInterval: getdur("PAPERWORK_INTERVAL", 30*time.Minute),
			RecentClosedSize:  getint("RECENT_CLOSED_SIZE", 10),
			IDRecencySize:     getint("ID_RECENCY_SIZE", 16),
			Blacklist:         splitCSV(getenv("ASSIGN_BLACKLIST", "")),
		},

		// Outbound notifications
		NotifyRPS:   getfloat("NOTIFY_RPS", 2.0),
		NotifyBurst: getint("NOTIFY_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "rescue-board"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Board.Channel) == "" {
		return cfg, errors.New("RESCUE_CHANNEL must not be empty")
	}
	if cfg.Board.SyncRetryInterval <= 0 {
		return cfg, errors.New("SYNC_RETRY_INTERVAL must be > 0")
	}
	if cfg.Board.PrepTimeout <= 0 || cfg.Board.PaperworkInterval <= 0 {
		return cfg, errors.New("board timer intervals must be > 0")
	}
	if cfg.Board.RecentClosedSize < 1 {
		return cfg, errors.New("RECENT_CLOSED_SIZE must be >= 1")
	}
	if cfg.Board.IDRecencySize < 0 {
		return cfg, errors.New("ID_RECENCY_SIZE must be >= 0")
	}
	if cfg.NotifyRPS < 0 {
		return cfg, errors.New("NOTIFY_RPS must be >= 0")
	}
	if cfg.NotifyBurst < 1 {
		return cfg, errors.New("NOTIFY_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
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
		if p == "" {
			p = "/"
		}
	}
	return p
}
