package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig wires handlers and middleware into the API router. Nil
// handlers leave their route group unmounted.
type RouterConfig struct {
	Auth          *AuthHandler
	Employees     *EmployeeHandler
	Assets        *AssetHandler
	Leaves        *LeaveHandler
	Attendance    *AttendanceHandler
	Notifications *NotificationHandler
	Hub           *NotificationHub
	Todos         *TodoHandler
	Feedback      *FeedbackHandler
	Admin         *AdminHandler

	Sessions     SessionValidator
	DeviceSecret []byte

	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Leave it off unless a reverse proxy overwrites those headers.
	TrustProxy bool

	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	respond := newResponder(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respond.writeError(req.Context(), w, http.StatusNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respond.writeError(req.Context(), w, http.StatusMethodNotAllowed, nil)
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.Auth != nil {
			api.Post("/auth/login", cfg.Auth.Login)
			api.Post("/auth/refresh", cfg.Auth.Refresh)
		}

		if cfg.Attendance != nil {
			api.Group(func(device chi.Router) {
				device.Use(RequireDevice(cfg.DeviceSecret, logger))
				device.Post("/attendance/device-checkin", cfg.Attendance.DeviceCheckIn)
				device.Get("/attendance/devices/{deviceId}/watermark", cfg.Attendance.DeviceWatermark)
			})
		}

		api.Group(func(secured chi.Router) {
			secured.Use(tokenFromQuery)
			secured.Use(RequireSession(cfg.Sessions, logger))
			mountSessionRoutes(secured, cfg)
		})
	})

	return r
}

func mountSessionRoutes(r chi.Router, cfg RouterConfig) {
	if cfg.Auth != nil {
		r.Post("/auth/logout", cfg.Auth.Logout)
		r.Get("/auth/me", cfg.Auth.Me)
	}

	if h := cfg.Employees; h != nil {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	}

	if h := cfg.Assets; h != nil {
		r.Route("/assets", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/stats", h.Stats)
			r.Get("/analytics/detailed", h.DetailedAnalytics)
			r.Post("/assign", h.Assign)
			r.Post("/return", h.Return)
			r.Get("/employee/{employeeId}", h.EmployeeAssets)
			r.Get("/{id}/history", h.History)
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	}

	if h := cfg.Leaves; h != nil {
		r.Route("/leaves", func(r chi.Router) {
			r.Post("/apply", h.Apply)
			r.Get("/my", h.Mine)
			r.Get("/my-leaves", h.Mine)
			r.Get("/", h.All)
			r.Get("/all", h.All)
			r.Put("/{id}/status", h.UpdateStatus)
			r.Delete("/{id}", h.Cancel)
		})
	}

	if h := cfg.Attendance; h != nil {
		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", h.List)
			r.Get("/my", h.Mine)
			r.Get("/stats", h.Stats)
			r.Put("/manual", h.Mark)
			r.Post("/{id}/justification", h.SubmitJustification)
			r.Put("/{id}/justification", h.ReviewJustification)
		})
	}

	if h := cfg.Notifications; h != nil {
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.List)
			r.Get("/unread-count", h.UnreadCount)
			r.Put("/mark-all-read", h.MarkAllRead)
			r.Delete("/read", h.DeleteRead)
			r.Put("/{id}/read", h.MarkRead)
			r.Delete("/{id}", h.Delete)
			if cfg.Hub != nil {
				r.Get("/stream", cfg.Hub.ServeWS)
			}
		})
	}

	if h := cfg.Todos; h != nil {
		r.Route("/todos", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Patch("/{id}/toggle", h.Toggle)
			r.Delete("/{id}", h.Delete)
		})
	}

	if h := cfg.Feedback; h != nil {
		r.Route("/feedback", func(r chi.Router) {
			r.Post("/", h.Create)
			r.Get("/my", h.Mine)
			r.Get("/", h.List)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	}

	if h := cfg.Admin; h != nil {
		r.Get("/audit-logs", h.AuditLogs)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
		r.Get("/system/outbox", h.Outbox)
	}
}
