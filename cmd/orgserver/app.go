package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/config"
	httptransport "github.com/example/orgdesk/internal/http"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/persistence/memory"
	"github.com/example/orgdesk/internal/persistence/mongostore"
	"github.com/example/orgdesk/internal/persistence/sqlite"
	"github.com/example/orgdesk/internal/persistence/sqlite/migration"
)

// app holds the wired services and the HTTP handler built over one store.
type app struct {
	hub        *httptransport.NotificationHub
	auth       *application.AuthService
	dispatcher *application.Dispatcher
	handler    http.Handler
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.Open(), nil
	case config.DriverMongo:
		store, err := mongostore.Open(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			return nil, fmt.Errorf("open mongodb: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	}
}

func newApp(ctx context.Context, cfg config.Config, store persistence.Store, logger *slog.Logger) (*app, error) {
	repos := store.Repositories()
	now := time.Now
	newID := uuid.NewString

	policy, err := attendancePolicy(cfg)
	if err != nil {
		return nil, err
	}

	hub := httptransport.NewNotificationHub(originChecker(cfg.AllowedOrigins), logger)

	settings := application.NewSettingsService(repos.Settings, repos.Outbox, application.SettingsDefaults{
		Policy:          policy,
		AssetCodePrefix: cfg.AssetCodePrefix,
	}, newID, now, logger)
	passwords := application.NewPasswordPolicy(cfg.PasswordMemoryKiB, cfg.PasswordIterations, cfg.PasswordParallelism)
	employees := application.NewEmployeeServiceWithLogger(repos.Employees, repos.Outbox, passwords.Hash, newID, now, logger)
	auth := application.NewAuthService(repos.Employees, repos.Sessions, application.AuthConfig{
		Passwords:  passwords,
		SessionTTL: cfg.SessionTTL,
		NewToken:   sessionTokenGenerator([]byte(cfg.SessionSecret)),
		Now:        now,
		Logger:     logger,
	})
	assets := application.NewAssetServiceWithLogger(repos.Assets, repos.Employees, repos.Outbox, settings, newID, now, logger)
	leaves := application.NewLeaveServiceWithLogger(repos.Leaves, repos.Employees, repos.Outbox, newID, now, logger)
	attendance := application.NewAttendanceServiceWithLogger(repos.Attendance, repos.Employees, repos.Outbox, settings, newID, now, logger)
	notifications := application.NewNotificationServiceWithLogger(repos.Notifications, hub, now, logger)
	dispatcher := application.NewDispatcher(repos.Outbox, repos.Audit, notifications, now, application.DispatcherOptions{
		BatchSize:   cfg.OutboxBatch,
		MaxAttempts: cfg.OutboxMaxAttempts,
	}, logger)
	todos := application.NewTodoServiceWithLogger(repos.Todos, newID, now, logger)
	feedback := application.NewFeedbackServiceWithLogger(repos.Feedback, repos.Employees, repos.Outbox, newID, now, logger)
	audit := application.NewAuditService(repos.Audit, logger)

	if _, err := employees.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		hub.Close()
		return nil, fmt.Errorf("bootstrap administrator: %w", err)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:           httptransport.NewAuthHandler(auth, employees, cfg.SecureCookies, logger),
		Employees:      httptransport.NewEmployeeHandler(employees, logger),
		Assets:         httptransport.NewAssetHandler(assets, logger),
		Leaves:         httptransport.NewLeaveHandler(leaves, logger),
		Attendance:     httptransport.NewAttendanceHandler(attendance, logger),
		Notifications:  httptransport.NewNotificationHandler(notifications, logger),
		Hub:            hub,
		Todos:          httptransport.NewTodoHandler(todos, logger),
		Feedback:       httptransport.NewFeedbackHandler(feedback, logger),
		Admin:          httptransport.NewAdminHandler(audit, settings, dispatcher, logger),
		Sessions:       auth,
		DeviceSecret:   []byte(cfg.DeviceSecret),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		TrustProxy:     cfg.TrustProxy,
		Logger:         logger,
	})

	return &app{hub: hub, auth: auth, dispatcher: dispatcher, handler: router}, nil
}

func attendancePolicy(cfg config.Config) (application.AttendancePolicy, error) {
	policy := application.DefaultAttendancePolicy()
	if cfg.WorkdayStart != "" {
		clock, err := time.Parse("15:04", cfg.WorkdayStart)
		if err != nil {
			return policy, fmt.Errorf("parse workday start %q: %w", cfg.WorkdayStart, err)
		}
		policy.WorkdayStart = time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute
	}
	policy.LateGrace = cfg.LateGrace
	if cfg.Timezone != nil {
		policy.Location = cfg.Timezone
	}
	return policy, nil
}

// sessionTokenGenerator returns opaque bearer tokens: a random id followed by
// its HMAC-SHA256 under secret.
func sessionTokenGenerator(secret []byte) func() string {
	return func() string {
		id := uuid.New()
		mac := hmac.New(sha256.New, secret)
		mac.Write(id[:])
		return base64.RawURLEncoding.EncodeToString(mac.Sum(id[:]))
	}
}

// originChecker allows websocket upgrades from the listed origins. An empty
// list accepts every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
