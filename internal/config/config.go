// Package config loads and validates the process configuration from a
// .env file (if present) overlaid with the real environment, following the
// same godotenv-then-struct-validate flow the rest of this codebase uses
// for every other process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	appvalidation "github.com/fntelecomllc/dnsguard/internal/validation"
)

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string `validate:"required"`
	Port string `validate:"required"`
}

// DatabaseConfig is the Postgres connection and pool configuration.
type DatabaseConfig struct {
	Host                string `validate:"required"`
	User                string `validate:"required"`
	Pass                string
	Name                string `validate:"required"`
	Port                string `validate:"required"`
	SSLMode             string
	PoolConnectionLimit int
	AcquireTimeoutMs    int
	ConnectTimeoutMs    int
	QueryRetryCount     int
	QueryRetryDelayMs   int
}

// DNSConfig bounds the resolver facade and the scheduler's polling cadence.
type DNSConfig struct {
	Servers             []string
	PollIntervalSeconds int
	JobMaxAgeHours      int
	TimeoutMs           int
	MaxRecords          int
	MaxTXTRecords       int
	MaxTXTLength        int
	MaxHostLength       int
}

// EmailConfig configures the outbound SMTP notifier.
type EmailConfig struct {
	AdminEmailTo  string `validate:"required,email"`
	SMTPHost      string `validate:"required"`
	SMTPPort      int
	SMTPSecure    bool
	SMTPUser      string
	SMTPPass      string
	SMTPFrom      string `validate:"required"`
	BodyMaxLength int
}

// SchedulerConfig governs the in-process admission control and debounce.
type SchedulerConfig struct {
	MaxActiveJobs           int
	ResumeStartupJitterMs   int
	TargetCooldownSeconds   int
	ResultJSONMaxBytes      int
	CheckDNSMinIntervalSecs int
}

// SecurityConfig holds the optional read-only API token.
type SecurityConfig struct {
	CheckDNSToken string
}

// ObservabilityConfig governs structured logging, metrics exposure, and
// optional distributed tracing export.
type ObservabilityConfig struct {
	LogLevel         string
	MetricsEnabled   bool
	TraceExporter    string
	TraceExporterURL string
}

// AppConfig aggregates every configuration group loaded at startup.
type AppConfig struct {
	Server        ServerConfig
	Database      DatabaseConfig
	DNS           DNSConfig
	Email         EmailConfig
	Scheduler     SchedulerConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Profile       appvalidation.Profile
}

// structValidator runs the `validate` struct tags declared on the config
// groups above, the same go-playground/validator instance this codebase
// uses for request-body validation.
var structValidator = validator.New()

// Load reads .env (if present; its absence is not an error), then builds
// AppConfig from the process environment, applying defaults and returning
// an error on any missing required value.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	l := &loader{}

	cfg := &AppConfig{
		Server: ServerConfig{
			Host: getEnvOrDefault("HOST", "0.0.0.0"),
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:                l.mustEnv("DB_HOST"),
			User:                l.mustEnv("DB_USER"),
			Pass:                os.Getenv("DB_PASS"),
			Name:                l.mustEnv("DB_NAME"),
			Port:                getEnvOrDefault("DB_PORT", "5432"),
			SSLMode:             getEnvOrDefault("DB_SSLMODE", "disable"),
			PoolConnectionLimit: getEnvAsInt("DB_POOL_CONNECTION_LIMIT", 10),
			AcquireTimeoutMs:    getEnvAsInt("DB_POOL_ACQUIRE_TIMEOUT_MS", 5000),
			ConnectTimeoutMs:    getEnvAsInt("DB_POOL_CONNECT_TIMEOUT_MS", 5000),
			QueryRetryCount:     getEnvAsInt("DB_QUERY_RETRY_COUNT", 3),
			QueryRetryDelayMs:   getEnvAsInt("DB_QUERY_RETRY_DELAY_MS", 200),
		},
		DNS: DNSConfig{
			Servers:             splitCSV(os.Getenv("DNS_SERVERS")),
			PollIntervalSeconds: getEnvAsInt("DNS_POLL_INTERVAL_SECONDS", 60),
			JobMaxAgeHours:      getEnvAsInt("DNS_JOB_MAX_AGE_HOURS", 72),
			TimeoutMs:           getEnvAsInt("DNS_TIMEOUT_MS", 5000),
			MaxRecords:          getEnvAsInt("DNS_MAX_RECORDS", 10),
			MaxTXTRecords:       getEnvAsInt("DNS_MAX_TXT_RECORDS", 10),
			MaxTXTLength:        getEnvAsInt("DNS_MAX_TXT_LENGTH", 512),
			MaxHostLength:       getEnvAsInt("DNS_MAX_HOST_LENGTH", 255),
		},
		Email: EmailConfig{
			AdminEmailTo:  l.mustEnv("ADMIN_EMAIL_TO"),
			SMTPHost:      l.mustEnv("SMTP_HOST"),
			SMTPPort:      getEnvAsInt("SMTP_PORT", 587),
			SMTPSecure:    getEnvAsBool("SMTP_SECURE", true),
			SMTPUser:      os.Getenv("SMTP_USER"),
			SMTPPass:      os.Getenv("SMTP_PASS"),
			SMTPFrom:      l.mustEnv("SMTP_FROM"),
			BodyMaxLength: getEnvAsInt("EMAIL_BODY_MAX_LENGTH", 4000),
		},
		Scheduler: SchedulerConfig{
			MaxActiveJobs:           getEnvAsInt("MAX_ACTIVE_JOBS", 10),
			ResumeStartupJitterMs:   getEnvAsInt("RESUME_STARTUP_JITTER_MS", 5000),
			TargetCooldownSeconds:   getEnvAsInt("TARGET_COOLDOWN_SECONDS", 60),
			ResultJSONMaxBytes:      getEnvAsInt("RESULT_JSON_MAX_BYTES", 20000),
			CheckDNSMinIntervalSecs: getEnvAsInt("CHECKDNS_MIN_INTERVAL_SECONDS", 30),
		},
		Security: SecurityConfig{
			CheckDNSToken: os.Getenv("CHECKDNS_TOKEN"),
		},
		Observability: ObservabilityConfig{
			LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
			MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
			TraceExporter:    os.Getenv("TRACE_EXPORTER"),
			TraceExporterURL: os.Getenv("TRACE_EXPORTER_URL"),
		},
		Profile: appvalidation.Profile{
			CNAMEExpected:      os.Getenv("UI_CNAME_EXPECTED"),
			CNAMEAuthorizedIPs: splitCSV(os.Getenv("UI_CNAME_AUTHORIZED_IPS")),
			CNAMEMaxChainDepth: getEnvAsInt("UI_CNAME_MAX_CHAIN_DEPTH", 10),
			MXExpectedHost:     os.Getenv("EMAIL_MX_EXPECTED_HOST"),
			MXExpectedPriority: getEnvAsInt("EMAIL_MX_EXPECTED_PRIORITY", 10),
			SPFExpected:        os.Getenv("EMAIL_SPF_EXPECTED"),
			DMARCExpected:      os.Getenv("EMAIL_DMARC_EXPECTED"),
			DKIMSelector:       getEnvOrDefault("EMAIL_DKIM_SELECTOR", "default"),
			DKIMCNAMEExpected:  os.Getenv("EMAIL_DKIM_CNAME_EXPECTED"),
			DNSMaxRecords:      getEnvAsInt("DNS_MAX_RECORDS", 10),
			DNSMaxTXTRecords:   getEnvAsInt("DNS_MAX_TXT_RECORDS", 10),
			DNSMaxHostLength:   getEnvAsInt("DNS_MAX_HOST_LENGTH", 255),
			DNSMaxTXTLength:    getEnvAsInt("DNS_MAX_TXT_LENGTH", 512),
		},
	}

	if l.err != nil {
		return nil, l.err
	}

	if err := structValidator.Struct(cfg.Server); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if err := structValidator.Struct(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if err := structValidator.Struct(cfg.Email); err != nil {
		return nil, fmt.Errorf("invalid email configuration: %w", err)
	}

	if cfg.Scheduler.MaxActiveJobs > cfg.Database.PoolConnectionLimit {
		cfg.Scheduler.MaxActiveJobs = cfg.Database.PoolConnectionLimit
	}

	return cfg, nil
}

// DatabaseDSNFromEnv builds a postgres DSN directly from DB_* environment
// variables, for callers (the migrate CLI) that run before the full
// AppConfig validation path is appropriate.
func DatabaseDSNFromEnv() (string, error) {
	host := os.Getenv("DB_HOST")
	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if host == "" || user == "" || name == "" {
		return "", fmt.Errorf("DB_HOST, DB_USER and DB_NAME must be set")
	}
	port := getEnvOrDefault("DB_PORT", "5432")
	pass := os.Getenv("DB_PASS")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")
	return (&DatabaseConfig{Host: host, User: user, Pass: pass, Name: name, Port: port, SSLMode: sslmode}).DSN(), nil
}

// DSN renders the postgres connection string lib/pq and sqlx expect.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Pass, d.Host, d.Port, d.Name, d.SSLMode)
}

// PollInterval is the configured DNS polling cadence as a duration.
func (d DNSConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalSeconds) * time.Second
}

// Timeout is the per-lookup DNS bound as a duration.
func (d DNSConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// loader accumulates the first missing-required-variable error encountered
// across a single Load call, so the caller gets one clear failure instead
// of a panic or a silently empty field.
type loader struct {
	err error
}

func (l *loader) mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" && l.err == nil {
		l.err = fmt.Errorf("required environment variable %s is not set", key)
	}
	return v
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvAsBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
