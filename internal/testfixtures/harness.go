package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/persistence/memory"
)

// FastPasswords keeps password hashing cheap in tests.
var FastPasswords = application.PasswordPolicy{
	MemoryKiB:   1024,
	Iterations:  1,
	Parallelism: 1,
	SaltBytes:   8,
	KeyBytes:    16,
}

// Harness wires every application service over one store with a
// deterministic clock and id generator. The store is in-memory unless
// WithStore supplies another backend.
type Harness struct {
	Store  persistence.Store
	Repos  persistence.Repositories
	Clock  *Clock
	IDs    *IDGenerator
	Logger *slog.Logger

	Employees     *application.EmployeeService
	Auth          *application.AuthService
	Settings      *application.SettingsService
	Assets        *application.AssetService
	Leaves        *application.LeaveService
	Attendance    *application.AttendanceService
	Notifications *application.NotificationService
	Dispatcher    *application.Dispatcher
	Todos         *application.TodoService
	Feedback      *application.FeedbackService
	Audit         *application.AuditService
}

// HarnessOption configures a Harness before its services are built.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	store     persistence.Store
	clock     *Clock
	publisher application.NotificationPublisher
	defaults  application.SettingsDefaults
}

// WithStore runs the services over store instead of a fresh in-memory one.
func WithStore(store persistence.Store) HarnessOption {
	return func(c *harnessConfig) { c.store = store }
}

// WithHarnessClock injects a clock.
func WithHarnessClock(clock *Clock) HarnessOption {
	return func(c *harnessConfig) { c.clock = clock }
}

// WithPublisher attaches a live notification publisher.
func WithPublisher(publisher application.NotificationPublisher) HarnessOption {
	return func(c *harnessConfig) { c.publisher = publisher }
}

// WithSettingsDefaults overrides the attendance policy and code prefix defaults.
func WithSettingsDefaults(defaults application.SettingsDefaults) HarnessOption {
	return func(c *harnessConfig) { c.defaults = defaults }
}

// NewHarness builds a fresh harness. Services log to io.Discard.
func NewHarness(tb testing.TB, opts ...HarnessOption) *Harness {
	tb.Helper()

	cfg := harnessConfig{
		clock:    NewClock(time.Time{}),
		defaults: application.SettingsDefaults{Policy: application.DefaultAttendancePolicy(), AssetCodePrefix: "AST"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := cfg.store
	if store == nil {
		store = memory.Open()
	}
	repos := store.Repositories()
	ids := NewIDGenerator("id")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := cfg.clock.NowFunc()
	nextID := ids.NextFunc()

	h := &Harness{Store: store, Repos: repos, Clock: cfg.clock, IDs: ids, Logger: logger}

	h.Employees = application.NewEmployeeServiceWithLogger(repos.Employees, repos.Outbox, FastPasswords.Hash, nextID, now, logger)
	h.Auth = application.NewAuthService(repos.Employees, repos.Sessions, application.AuthConfig{
		Passwords:  FastPasswords,
		SessionTTL: 8 * time.Hour,
		NewToken:   nextID,
		Now:        now,
		Logger:     logger,
	})
	h.Settings = application.NewSettingsService(repos.Settings, repos.Outbox, cfg.defaults, nextID, now, logger)
	h.Assets = application.NewAssetServiceWithLogger(repos.Assets, repos.Employees, repos.Outbox, h.Settings, nextID, now, logger)
	h.Leaves = application.NewLeaveServiceWithLogger(repos.Leaves, repos.Employees, repos.Outbox, nextID, now, logger)
	h.Attendance = application.NewAttendanceServiceWithLogger(repos.Attendance, repos.Employees, repos.Outbox, h.Settings, nextID, now, logger)
	h.Notifications = application.NewNotificationServiceWithLogger(repos.Notifications, cfg.publisher, now, logger)
	h.Dispatcher = application.NewDispatcher(repos.Outbox, repos.Audit, h.Notifications, now, application.DispatcherOptions{Backoff: time.Second}, logger)
	h.Todos = application.NewTodoServiceWithLogger(repos.Todos, nextID, now, logger)
	h.Feedback = application.NewFeedbackServiceWithLogger(repos.Feedback, repos.Employees, repos.Outbox, nextID, now, logger)
	h.Audit = application.NewAuditService(repos.Audit, logger)
	return h
}

// SeedEmployee stores an employee built from opts.
func (h *Harness) SeedEmployee(tb testing.TB, opts ...EmployeeOption) persistence.Employee {
	tb.Helper()
	employee := NewEmployeeFixture(opts...).Persistence()
	if err := h.Repos.Employees.CreateEmployee(context.Background(), employee); err != nil {
		tb.Fatalf("seed employee: %v", err)
	}
	return employee
}

// SeedAsset stores an asset built from opts.
func (h *Harness) SeedAsset(tb testing.TB, opts ...AssetOption) persistence.Asset {
	tb.Helper()
	asset := NewAssetFixture(opts...).Persistence()
	if err := h.Repos.Assets.CreateAsset(context.Background(), asset); err != nil {
		tb.Fatalf("seed asset: %v", err)
	}
	return asset
}

// Asset reloads an asset from the store.
func (h *Harness) Asset(tb testing.TB, id string) persistence.Asset {
	tb.Helper()
	asset, err := h.Repos.Assets.GetAsset(context.Background(), id)
	if err != nil {
		tb.Fatalf("load asset %s: %v", id, err)
	}
	return asset
}

// Drain runs the outbox dispatcher until nothing due is left.
func (h *Harness) Drain(tb testing.TB) application.DrainResult {
	tb.Helper()
	var total application.DrainResult
	for i := 0; i < 20; i++ {
		result, err := h.Dispatcher.DrainOnce(context.Background())
		if err != nil {
			tb.Fatalf("drain outbox: %v", err)
		}
		total.Dispatched += result.Dispatched
		total.Retried += result.Retried
		total.Failed += result.Failed
		if result.Dispatched+result.Retried+result.Failed == 0 {
			break
		}
	}
	return total
}

// NotificationsFor returns every notification stored for recipientID, newest first.
func (h *Harness) NotificationsFor(tb testing.TB, recipientID string) []persistence.Notification {
	tb.Helper()
	items, err := h.Repos.Notifications.ListNotifications(context.Background(), persistence.NotificationFilter{RecipientID: recipientID})
	if err != nil {
		tb.Fatalf("list notifications: %v", err)
	}
	return items
}
