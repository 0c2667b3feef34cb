package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers accepted by ORGDESK_STORAGE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config captures environment driven configuration values for the API server.
type Config struct {
	HTTPPort int

	StorageDriver string
	SQLiteDSN     string
	MongoURI      string
	MongoDatabase string

	SessionSecret  string
	SessionTTL     time.Duration
	SecureCookies  bool
	DeviceSecret   string
	AllowedOrigins []string
	TrustProxy     bool

	// Argon2id cost for stored passwords. Hashes made with other costs are
	// upgraded on the next successful login.
	PasswordMemoryKiB   int
	PasswordIterations  int
	PasswordParallelism int

	WorkdayStart    string
	LateGrace       time.Duration
	Timezone        *time.Location
	AssetCodePrefix string

	OutboxInterval    time.Duration
	OutboxBatch       int
	OutboxMaxAttempts int

	RateLimitRPS   float64
	RateLimitBurst int

	OTelEndpoint string
	LogLevel     string
	LogFormat    string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// DeviceSyncConfig configures the biometric terminal sync CLI.
type DeviceSyncConfig struct {
	DeviceURL    string
	ServerURL    string
	DeviceID     string
	DeviceSecret string
	PollInterval time.Duration
	Timeout      time.Duration
	BatchSize    int
	LogLevel     string
	LogFormat    string
}

// env collects missing and invalid keys so every problem is reported at once.
type env struct {
	missing []string
	invalid []string
}

func (e *env) lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (e *env) required(key string) string {
	value := e.lookup(key)
	if value == "" {
		e.missing = append(e.missing, key)
	}
	return value
}

func (e *env) positiveInt(key string, fallback int) int {
	raw := e.lookup(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return value
}

func (e *env) positiveFloat(key string, fallback float64) float64 {
	raw := e.lookup(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return value
}

func (e *env) boolean(key string, fallback bool) bool {
	raw := e.lookup(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return value
}

// list splits a comma separated value, dropping empty items.
func (e *env) list(key string) []string {
	var out []string
	for _, item := range strings.Split(e.lookup(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (e *env) duration(key string, fallback time.Duration, allowZero bool) time.Duration {
	raw := e.lookup(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 || (value == 0 && !allowZero) {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return value
}

func (e *env) url(key string) string {
	value := e.required(key)
	if value == "" {
		return ""
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		e.invalid = append(e.invalid, key)
		return ""
	}
	return strings.TrimRight(value, "/")
}

func (e *env) err() error {
	if len(e.missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(e.missing, ", "))
	}
	if len(e.invalid) > 0 {
		return fmt.Errorf("invalid environment variable values: %s", strings.Join(e.invalid, ", "))
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Required values that are missing are
// reported before values that failed to parse.
func Load() (Config, error) {
	e := &env{}
	cfg := Config{
		HTTPPort:        e.positiveInt("ORGDESK_HTTP_PORT", 8080),
		StorageDriver:   DriverSQLite,
		SQLiteDSN:       "file:orgdesk.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		MongoURI:        e.lookup("ORGDESK_MONGO_URI"),
		MongoDatabase:   "orgdesk",
		SessionSecret:   e.required("ORGDESK_SESSION_SECRET"),
		SessionTTL:      e.duration("ORGDESK_SESSION_TTL", 24*time.Hour, false),
		SecureCookies:   e.boolean("ORGDESK_SECURE_COOKIES", false),
		DeviceSecret:    e.required("ORGDESK_DEVICE_SECRET"),
		AllowedOrigins:  e.list("ORGDESK_ALLOWED_ORIGINS"),
		TrustProxy:      e.boolean("ORGDESK_TRUST_PROXY", false),

		PasswordMemoryKiB:   e.positiveInt("ORGDESK_PASSWORD_MEMORY_KIB", 64*1024),
		PasswordIterations:  e.positiveInt("ORGDESK_PASSWORD_ITERATIONS", 3),
		PasswordParallelism: e.positiveInt("ORGDESK_PASSWORD_PARALLELISM", 2),

		WorkdayStart:    "09:00",
		LateGrace:       e.duration("ORGDESK_LATE_GRACE", 15*time.Minute, true),
		Timezone:        time.UTC,
		AssetCodePrefix: "AST",

		OutboxInterval:    e.duration("ORGDESK_OUTBOX_INTERVAL", 2*time.Second, false),
		OutboxBatch:       e.positiveInt("ORGDESK_OUTBOX_BATCH", 50),
		OutboxMaxAttempts: e.positiveInt("ORGDESK_OUTBOX_MAX_ATTEMPTS", 5),

		RateLimitRPS:   e.positiveFloat("ORGDESK_RATE_LIMIT_RPS", 20),
		RateLimitBurst: e.positiveInt("ORGDESK_RATE_LIMIT_BURST", 40),

		OTelEndpoint: e.lookup("ORGDESK_OTEL_ENDPOINT"),
		LogLevel:     e.lookup("ORGDESK_LOG_LEVEL"),
		LogFormat:    e.lookup("ORGDESK_LOG_FORMAT"),

		BootstrapAdminEmail:    e.lookup("ORGDESK_BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: e.lookup("ORGDESK_BOOTSTRAP_ADMIN_PASSWORD"),
	}

	if driver := strings.ToLower(e.lookup("ORGDESK_STORAGE_DRIVER")); driver != "" {
		switch driver {
		case DriverSQLite, DriverMongo, DriverMemory:
			cfg.StorageDriver = driver
		default:
			e.invalid = append(e.invalid, "ORGDESK_STORAGE_DRIVER")
		}
	}
	if dsn := e.lookup("ORGDESK_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if db := e.lookup("ORGDESK_MONGO_DATABASE"); db != "" {
		cfg.MongoDatabase = db
	}
	if cfg.StorageDriver == DriverMongo && cfg.MongoURI == "" {
		e.missing = append(e.missing, "ORGDESK_MONGO_URI")
	}

	if start := e.lookup("ORGDESK_WORKDAY_START"); start != "" {
		if _, err := time.Parse("15:04", start); err != nil {
			e.invalid = append(e.invalid, "ORGDESK_WORKDAY_START")
		} else {
			cfg.WorkdayStart = start
		}
	}
	if tz := e.lookup("ORGDESK_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			e.invalid = append(e.invalid, "ORGDESK_TIMEZONE")
		} else {
			cfg.Timezone = loc
		}
	}
	if prefix := e.lookup("ORGDESK_ASSET_CODE_PREFIX"); prefix != "" {
		cfg.AssetCodePrefix = strings.ToUpper(prefix)
	}
	if format := strings.ToLower(cfg.LogFormat); format != "" && format != "json" && format != "text" {
		e.invalid = append(e.invalid, "ORGDESK_LOG_FORMAT")
	}
	if cfg.PasswordParallelism > 255 {
		e.invalid = append(e.invalid, "ORGDESK_PASSWORD_PARALLELISM")
	}
	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword == "" {
		e.missing = append(e.missing, "ORGDESK_BOOTSTRAP_ADMIN_PASSWORD")
	}

	if err := e.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDeviceSync parses the device-sync CLI configuration from the environment.
func LoadDeviceSync() (DeviceSyncConfig, error) {
	e := &env{}
	cfg := DeviceSyncConfig{
		DeviceURL:    e.url("ORGDESK_DEVICE_URL"),
		ServerURL:    e.url("ORGDESK_SERVER_URL"),
		DeviceID:     e.required("ORGDESK_DEVICE_ID"),
		DeviceSecret: e.required("ORGDESK_DEVICE_SECRET"),
		PollInterval: e.duration("ORGDESK_DEVICE_POLL_INTERVAL", 30*time.Second, false),
		Timeout:      e.duration("ORGDESK_DEVICE_TIMEOUT", 10*time.Second, false),
		BatchSize:    e.positiveInt("ORGDESK_DEVICE_BATCH_SIZE", 200),
		LogLevel:     e.lookup("ORGDESK_LOG_LEVEL"),
		LogFormat:    e.lookup("ORGDESK_LOG_FORMAT"),
	}
	if err := e.err(); err != nil {
		return DeviceSyncConfig{}, err
	}
	return cfg, nil
}
