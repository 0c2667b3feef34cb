package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/devicetoken"
	apphttp "github.com/example/orgdesk/internal/http"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/testfixtures"
)

var testDeviceSecret = []byte("device-secret-for-tests")

type apiFixture struct {
	h      *testfixtures.Harness
	hub    *apphttp.NotificationHub
	router http.Handler
}

func newAPI(t *testing.T, configure ...func(*apphttp.RouterConfig)) *apiFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := apphttp.NewNotificationHub(nil, logger)
	t.Cleanup(hub.Close)

	h := testfixtures.NewHarness(t, testfixtures.WithPublisher(hub))
	cfg := apphttp.RouterConfig{
		Auth:          apphttp.NewAuthHandler(h.Auth, h.Employees, false, logger),
		Employees:     apphttp.NewEmployeeHandler(h.Employees, logger),
		Assets:        apphttp.NewAssetHandler(h.Assets, logger),
		Leaves:        apphttp.NewLeaveHandler(h.Leaves, logger),
		Attendance:    apphttp.NewAttendanceHandler(h.Attendance, logger),
		Notifications: apphttp.NewNotificationHandler(h.Notifications, logger),
		Hub:           hub,
		Todos:         apphttp.NewTodoHandler(h.Todos, logger),
		Feedback:      apphttp.NewFeedbackHandler(h.Feedback, logger),
		Admin:         apphttp.NewAdminHandler(h.Audit, h.Settings, h.Dispatcher, logger),
		Sessions:      h.Auth,
		DeviceSecret:  testDeviceSecret,
		Logger:        logger,
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	return &apiFixture{h: h, hub: hub, router: apphttp.NewRouter(cfg)}
}

// sessionFor stores a fresh session for employee and returns its token.
func (a *apiFixture) sessionFor(t *testing.T, employee persistence.Employee) string {
	t.Helper()
	session, err := a.h.Repos.Sessions.CreateSession(context.Background(), testfixtures.NewSession(employee.ID, 8*time.Hour))
	require.NoError(t, err)
	return session.Token
}

type apiEnvelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message"`
	Count   *int              `json:"count"`
	Errors  map[string]string `json:"errors"`
}

type apiResponse struct {
	Status int
	Header http.Header
	Body   apiEnvelope
}

func (r apiResponse) decode(t *testing.T, dst any) {
	t.Helper()
	require.NotEmpty(t, r.Body.Data, "response has no data")
	require.NoError(t, json.Unmarshal(r.Body.Data, dst))
}

func (a *apiFixture) do(t *testing.T, method, path, token string, body any) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	resp := apiResponse{Status: rec.Code, Header: rec.Header()}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp.Body), "body: %s", rec.Body.String())
	}
	return resp
}

func TestAuthEndpoints(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	hash, err := testfixtures.FastPasswords.Hash("correct horse")
	require.NoError(t, err)
	employee := api.h.SeedEmployee(t, testfixtures.WithEmail("ana@example.com"), testfixtures.WithPasswordHash(hash))

	t.Run("rejects a wrong password", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
		assert.False(t, resp.Body.Success)
		assert.Equal(t, "Invalid email or password.", resp.Body.Message)
	})

	t.Run("validates the body", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "not-an-email"})
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "Validation failed.", resp.Body.Message)
		assert.Contains(t, resp.Body.Errors, "email")
		assert.Contains(t, resp.Body.Errors, "password")
	})

	t.Run("login, me and logout", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ANA@example.com", "password": "correct horse"})
		require.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "Login successful.", resp.Body.Message)

		var session struct {
			Token     string `json:"token"`
			ExpiresAt string `json:"expiresAt"`
			Employee  struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"employee"`
		}
		resp.decode(t, &session)
		require.NotEmpty(t, session.Token)
		assert.Equal(t, session.Token, resp.Header.Get("X-Session-Token"))
		assert.Contains(t, resp.Header.Get("Set-Cookie"), "session_token="+session.Token)
		assert.Equal(t, employee.ID, session.Employee.ID)

		me := api.do(t, http.MethodGet, "/api/auth/me", session.Token, nil)
		require.Equal(t, http.StatusOK, me.Status)
		var profile struct {
			Email string `json:"email"`
		}
		me.decode(t, &profile)
		assert.Equal(t, "ana@example.com", profile.Email)

		out := api.do(t, http.MethodPost, "/api/auth/logout", session.Token, nil)
		assert.Equal(t, http.StatusOK, out.Status)
		assert.Equal(t, "Logged out.", out.Body.Message)

		after := api.do(t, http.MethodGet, "/api/auth/me", session.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, after.Status)
	})
}

func TestSessionMiddleware(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	active := api.h.SeedEmployee(t)
	disabled := api.h.SeedEmployee(t, testfixtures.Inactive())

	cases := []struct {
		name        string
		token       string
		wantStatus  int
		wantMessage string
	}{
		{name: "missing token", token: "", wantStatus: http.StatusUnauthorized, wantMessage: "Authentication token is required."},
		{name: "unknown token", token: "no-such-token", wantStatus: http.StatusUnauthorized, wantMessage: "Session is invalid. Please sign in again."},
		{name: "deactivated account", token: api.sessionFor(t, disabled), wantStatus: http.StatusForbidden, wantMessage: "This account has been deactivated."},
		{name: "valid session", token: api.sessionFor(t, active), wantStatus: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.do(t, http.MethodGet, "/api/todos", tc.token, nil)
			assert.Equal(t, tc.wantStatus, resp.Status)
			if tc.wantMessage != "" {
				assert.Equal(t, tc.wantMessage, resp.Body.Message)
			}
		})
	}

	t.Run("accepts the session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: "session_token", Value: api.sessionFor(t, active)})
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("device tokens are not sessions", func(t *testing.T) {
		token, err := devicetoken.Sign(testDeviceSecret, "front-door", time.Now(), time.Minute)
		require.NoError(t, err)
		resp := api.do(t, http.MethodGet, "/api/assets", token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
	})
}

func TestAssetAssignmentEndpoints(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	manager := api.h.SeedEmployee(t, testfixtures.AsManager())
	worker := api.h.SeedEmployee(t)
	asset := api.h.SeedAsset(t, testfixtures.WithQuantity(5), testfixtures.WithAssetName("Monitor"))
	managerToken := api.sessionFor(t, manager)

	resp := api.do(t, http.MethodPost, "/api/assets/assign", managerToken, map[string]any{
		"assetId":          asset.ID,
		"employeeId":       worker.ID,
		"quantityToAssign": 3,
	})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Assigned 3 unit(s) of Monitor. 2 unit(s) remaining.", resp.Body.Message)

	var assigned struct {
		Assignment struct {
			ID       string `json:"id"`
			Quantity int    `json:"quantity"`
			Status   string `json:"status"`
		} `json:"assignment"`
		Asset struct {
			QuantityAssigned  int    `json:"quantityAssigned"`
			QuantityAvailable int    `json:"quantityAvailable"`
			Status            string `json:"status"`
		} `json:"asset"`
	}
	resp.decode(t, &assigned)
	assert.Equal(t, 3, assigned.Assignment.Quantity)
	assert.Equal(t, "Active", assigned.Assignment.Status)
	assert.Equal(t, 3, assigned.Asset.QuantityAssigned)
	assert.Equal(t, 2, assigned.Asset.QuantityAvailable)
	assert.Equal(t, "Assigned", assigned.Asset.Status)

	rejections := []struct {
		name    string
		token   string
		body    map[string]any
		status  int
		message string
	}{
		{
			name:    "over-assignment",
			token:   managerToken,
			body:    map[string]any{"assetId": asset.ID, "employeeId": worker.ID, "quantityToAssign": 3},
			status:  http.StatusBadRequest,
			message: "Only 2 unit(s) available. Cannot assign 3 unit(s).",
		},
		{
			name:    "zero quantity",
			token:   managerToken,
			body:    map[string]any{"assetId": asset.ID, "employeeId": worker.ID, "quantityToAssign": 0},
			status:  http.StatusBadRequest,
			message: "Quantity to assign must be at least 1.",
		},
		{
			name:    "no holder",
			token:   managerToken,
			body:    map[string]any{"assetId": asset.ID},
			status:  http.StatusBadRequest,
			message: "Assign to an employee or provide a room.",
		},
		{
			name:    "unknown asset",
			token:   managerToken,
			body:    map[string]any{"assetId": "asset-missing", "employeeId": worker.ID},
			status:  http.StatusNotFound,
			message: "Asset not found.",
		},
		{
			name:    "employee role",
			token:   api.sessionFor(t, worker),
			body:    map[string]any{"assetId": asset.ID, "employeeId": worker.ID},
			status:  http.StatusForbidden,
			message: "You do not have permission to perform this action.",
		},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.do(t, http.MethodPost, "/api/assets/assign", tc.token, tc.body)
			assert.Equal(t, tc.status, resp.Status)
			assert.Equal(t, tc.message, resp.Body.Message)
		})
	}
	assert.Equal(t, 3, api.h.Asset(t, asset.ID).QuantityAssigned, "rejections leave the asset unchanged")

	t.Run("return restores availability once", func(t *testing.T) {
		body := map[string]any{"assignmentId": assigned.Assignment.ID, "conditionAtReturn": "Good"}
		resp := api.do(t, http.MethodPost, "/api/assets/return", managerToken, body)
		require.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "Returned 3 unit(s) of Monitor. 5 unit(s) available.", resp.Body.Message)

		again := api.do(t, http.MethodPost, "/api/assets/return", managerToken, body)
		assert.Equal(t, http.StatusBadRequest, again.Status)
		assert.Equal(t, "Assignment is not active.", again.Body.Message)

		stored := api.h.Asset(t, asset.ID)
		assert.Equal(t, 0, stored.QuantityAssigned)
		assert.Equal(t, persistence.AssetAvailable, stored.Status)
	})

	t.Run("history lists the closed assignment", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/api/assets/"+asset.ID+"/history", managerToken, nil)
		require.Equal(t, http.StatusOK, resp.Status)
		require.NotNil(t, resp.Body.Count)
		assert.Equal(t, 1, *resp.Body.Count)

		denied := api.do(t, http.MethodGet, "/api/assets/"+asset.ID+"/history", api.sessionFor(t, worker), nil)
		assert.Equal(t, http.StatusForbidden, denied.Status)
		assert.False(t, denied.Body.Success)
	})

	t.Run("stats reflect the returned units", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/api/assets/stats", managerToken, nil)
		require.Equal(t, http.StatusOK, resp.Status)
		var stats struct {
			TotalUnits    int `json:"totalUnits"`
			AssignedUnits int `json:"assignedUnits"`
		}
		resp.decode(t, &stats)
		assert.Equal(t, 5, stats.TotalUnits)
		assert.Zero(t, stats.AssignedUnits)
	})
}

func TestLeaveApprovalEndpoints(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	manager := api.h.SeedEmployee(t, testfixtures.AsManager())
	employee := api.h.SeedEmployee(t)
	managerToken := api.sessionFor(t, manager)
	employeeToken := api.sessionFor(t, employee)

	applied := api.do(t, http.MethodPost, "/api/leaves/apply", employeeToken, map[string]string{
		"leaveType": "annual",
		"startDate": "2025-06-10",
		"endDate":   "2025-06-12",
		"reason":    "Family trip",
	})
	require.Equal(t, http.StatusCreated, applied.Status)
	var leave struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	applied.decode(t, &leave)
	assert.Equal(t, "pending", leave.Status)

	t.Run("rejects an unknown decision", func(t *testing.T) {
		resp := api.do(t, http.MethodPut, "/api/leaves/"+leave.ID+"/status", managerToken, map[string]string{"status": "maybe"})
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Contains(t, resp.Body.Errors, "status")
	})

	t.Run("employees cannot decide", func(t *testing.T) {
		resp := api.do(t, http.MethodPut, "/api/leaves/"+leave.ID+"/status", employeeToken, map[string]string{"status": "approved"})
		assert.Equal(t, http.StatusForbidden, resp.Status)
	})

	approved := api.do(t, http.MethodPut, "/api/leaves/"+leave.ID+"/status", managerToken, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, approved.Status)
	assert.Equal(t, "Leave request approved.", approved.Body.Message)

	again := api.do(t, http.MethodPut, "/api/leaves/"+leave.ID+"/status", managerToken, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, again.Status)
	assert.Equal(t, "Leave request has already been processed.", again.Body.Message)

	days := api.do(t, http.MethodGet, "/api/attendance/my?from=2025-06-10&to=2025-06-12", employeeToken, nil)
	require.Equal(t, http.StatusOK, days.Status)
	var rows []struct {
		WorkDate string `json:"workDate"`
		Status   string `json:"status"`
	}
	days.decode(t, &rows)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "leave", row.Status, row.WorkDate)
	}

	t.Run("list aliases", func(t *testing.T) {
		mine := api.do(t, http.MethodGet, "/api/leaves/my-leaves", employeeToken, nil)
		require.Equal(t, http.StatusOK, mine.Status)
		require.NotNil(t, mine.Body.Count)
		assert.Equal(t, 1, *mine.Body.Count)

		all := api.do(t, http.MethodGet, "/api/leaves/all?status=approved", managerToken, nil)
		require.Equal(t, http.StatusOK, all.Status)
		require.NotNil(t, all.Body.Count)
		assert.Equal(t, 1, *all.Body.Count)
	})

	t.Run("bad date filter", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/api/attendance/my?from=June", employeeToken, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Contains(t, resp.Body.Errors, "from")
	})
}

func TestDeviceEndpoints(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	employee := api.h.SeedEmployee(t, testfixtures.WithDeviceUserID("17"))
	token, err := devicetoken.Sign(testDeviceSecret, "front-door", time.Now(), time.Minute)
	require.NoError(t, err)

	body := map[string]any{
		"deviceId": "front-door",
		"records": []map[string]any{
			{"deviceUserId": "17", "timestamp": "2025-06-02T09:05:00Z"},
			{"deviceUserId": "17", "timestamp": "2025-06-02T17:30:00Z"},
			{"deviceUserId": "404", "timestamp": "2025-06-02T09:00:00Z"},
		},
	}

	resp := api.do(t, http.MethodPost, "/api/attendance/device-checkin", token, body)
	require.Equal(t, http.StatusOK, resp.Status)
	var result struct {
		Processed int    `json:"processed"`
		Skipped   int    `json:"skipped"`
		Unmatched int    `json:"unmatched"`
		Watermark string `json:"watermark"`
	}
	resp.decode(t, &result)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Unmatched)
	assert.Equal(t, "2025-06-02T17:30:00Z", result.Watermark)

	row, err := api.h.Repos.Attendance.GetAttendanceByDay(context.Background(), employee.ID, testfixtures.Date(2025, time.June, 2))
	require.NoError(t, err)
	assert.Equal(t, persistence.AttendancePresent, row.Status)

	t.Run("watermark", func(t *testing.T) {
		resp := api.do(t, http.MethodGet, "/api/attendance/devices/front-door/watermark", token, nil)
		require.Equal(t, http.StatusOK, resp.Status)
		var mark struct {
			DeviceID  string `json:"deviceId"`
			Watermark string `json:"watermark"`
		}
		resp.decode(t, &mark)
		assert.Equal(t, "2025-06-02T17:30:00Z", mark.Watermark)

		other := api.do(t, http.MethodGet, "/api/attendance/devices/back-door/watermark", token, nil)
		assert.Equal(t, http.StatusForbidden, other.Status)
	})

	t.Run("replaying is skipped", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/api/attendance/device-checkin", token, body)
		require.Equal(t, http.StatusOK, resp.Status)
		resp.decode(t, &result)
		assert.Zero(t, result.Processed)
		assert.Equal(t, 3, result.Skipped)
	})

	t.Run("device id must match the token", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/api/attendance/device-checkin", token, map[string]any{"deviceId": "back-door"})
		assert.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("bad timestamps are reported", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/api/attendance/device-checkin", token, map[string]any{
			"deviceId": "front-door",
			"records":  []map[string]any{{"deviceUserId": "17", "timestamp": "yesterday"}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Contains(t, resp.Body.Errors, "records")
	})

	t.Run("token checks", func(t *testing.T) {
		missing := api.do(t, http.MethodPost, "/api/attendance/device-checkin", "", body)
		assert.Equal(t, http.StatusUnauthorized, missing.Status)
		assert.Equal(t, "Device token is required.", missing.Body.Message)

		forged, err := devicetoken.Sign([]byte("other-secret"), "front-door", time.Now(), time.Minute)
		require.NoError(t, err)
		bad := api.do(t, http.MethodPost, "/api/attendance/device-checkin", forged, body)
		assert.Equal(t, http.StatusUnauthorized, bad.Status)
		assert.Equal(t, "Device token is invalid or expired.", bad.Body.Message)

		session := api.do(t, http.MethodPost, "/api/attendance/device-checkin", api.sessionFor(t, employee), body)
		assert.Equal(t, http.StatusUnauthorized, session.Status)
	})
}

func TestNotificationEndpoints(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	manager := api.h.SeedEmployee(t, testfixtures.AsManager())
	worker := api.h.SeedEmployee(t)
	asset := api.h.SeedAsset(t, testfixtures.WithQuantity(2))
	workerToken := api.sessionFor(t, worker)

	resp := api.do(t, http.MethodPost, "/api/assets/assign", api.sessionFor(t, manager), map[string]any{"assetId": asset.ID, "employeeId": worker.ID})
	require.Equal(t, http.StatusOK, resp.Status)

	count := func(t *testing.T) int {
		t.Helper()
		resp := api.do(t, http.MethodGet, "/api/notifications/unread-count", workerToken, nil)
		require.Equal(t, http.StatusOK, resp.Status)
		var body struct {
			Count int `json:"count"`
		}
		resp.decode(t, &body)
		return body.Count
	}

	assert.Zero(t, count(t), "nothing is visible before the outbox drains")
	api.h.Drain(t)
	assert.Equal(t, 1, count(t))

	list := api.do(t, http.MethodGet, "/api/notifications?unread=true", workerToken, nil)
	require.Equal(t, http.StatusOK, list.Status)
	var items []struct {
		ID     string `json:"id"`
		IsRead bool   `json:"isRead"`
	}
	list.decode(t, &items)
	require.Len(t, items, 1)
	assert.False(t, items[0].IsRead)

	read := api.do(t, http.MethodPut, "/api/notifications/"+items[0].ID+"/read", workerToken, nil)
	assert.Equal(t, http.StatusOK, read.Status)
	assert.Zero(t, count(t))

	purge := api.do(t, http.MethodDelete, "/api/notifications/read", workerToken, nil)
	assert.Equal(t, http.StatusOK, purge.Status)
	assert.Equal(t, "1 read notification(s) deleted.", purge.Body.Message)

	missing := api.do(t, http.MethodPut, "/api/notifications/"+items[0].ID+"/read", workerToken, nil)
	assert.Equal(t, http.StatusNotFound, missing.Status)
}

func TestTodoAndFeedbackEndpoints(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	admin := api.h.SeedEmployee(t, testfixtures.AsAdmin())
	employee := api.h.SeedEmployee(t)
	token := api.sessionFor(t, employee)

	created := api.do(t, http.MethodPost, "/api/todos", token, map[string]string{"title": "File expenses", "priority": "high", "dueDate": "2025-06-05"})
	require.Equal(t, http.StatusCreated, created.Status)
	var todo struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		DueDate string `json:"dueDate"`
	}
	created.decode(t, &todo)
	assert.Equal(t, "pending", todo.Status)
	assert.Equal(t, "2025-06-05", todo.DueDate)

	toggled := api.do(t, http.MethodPatch, "/api/todos/"+todo.ID+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, toggled.Status)
	toggled.decode(t, &todo)
	assert.Equal(t, "completed", todo.Status)

	list := api.do(t, http.MethodGet, "/api/todos?status=completed", token, nil)
	require.Equal(t, http.StatusOK, list.Status)
	assert.True(t, list.Body.Success)
	require.NotNil(t, list.Body.Count)
	assert.Equal(t, 1, *list.Body.Count)

	other := api.do(t, http.MethodDelete, "/api/todos/"+todo.ID, api.sessionFor(t, admin), nil)
	assert.NotEqual(t, http.StatusOK, other.Status, "todos are owner only")

	badDate := api.do(t, http.MethodPost, "/api/todos", token, map[string]string{"title": "x", "dueDate": "05/06/2025"})
	assert.Equal(t, http.StatusBadRequest, badDate.Status)
	assert.Contains(t, badDate.Body.Errors, "dueDate")

	feedback := api.do(t, http.MethodPost, "/api/feedback", token, map[string]any{
		"category":    "suggestion",
		"subject":     "Standing desks",
		"message":     "Could we trial a few?",
		"isAnonymous": true,
	})
	require.Equal(t, http.StatusCreated, feedback.Status)

	forbidden := api.do(t, http.MethodGet, "/api/feedback", token, nil)
	assert.Equal(t, http.StatusForbidden, forbidden.Status)

	all := api.do(t, http.MethodGet, "/api/feedback?status=open", api.sessionFor(t, admin), nil)
	require.Equal(t, http.StatusOK, all.Status)
	require.NotNil(t, all.Body.Count)
	assert.Equal(t, 1, *all.Body.Count)

	mine := api.do(t, http.MethodGet, "/api/feedback/my", token, nil)
	require.Equal(t, http.StatusOK, mine.Status)
	assert.Equal(t, 1, *mine.Body.Count)
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	admin := api.h.SeedEmployee(t, testfixtures.AsAdmin())
	employee := api.h.SeedEmployee(t)
	adminToken := api.sessionFor(t, admin)
	employeeToken := api.sessionFor(t, employee)

	settings := api.do(t, http.MethodGet, "/api/settings", employeeToken, nil)
	require.Equal(t, http.StatusOK, settings.Status)
	var values map[string]string
	settings.decode(t, &values)
	assert.Equal(t, "AST", values[application.SettingAssetCodePrefix])

	denied := api.do(t, http.MethodPut, "/api/settings", employeeToken, map[string]string{application.SettingAssetCodePrefix: "EQ"})
	assert.Equal(t, http.StatusForbidden, denied.Status)

	invalid := api.do(t, http.MethodPut, "/api/settings", adminToken, map[string]string{"bogus": "1"})
	assert.Equal(t, http.StatusBadRequest, invalid.Status)
	assert.Equal(t, "unknown setting", invalid.Body.Errors["bogus"])

	updated := api.do(t, http.MethodPut, "/api/settings", adminToken, map[string]string{application.SettingAssetCodePrefix: "EQ"})
	require.Equal(t, http.StatusOK, updated.Status)
	updated.decode(t, &values)
	assert.Equal(t, "EQ", values[application.SettingAssetCodePrefix])

	outbox := api.do(t, http.MethodGet, "/api/system/outbox?status=pending", adminToken, nil)
	require.Equal(t, http.StatusOK, outbox.Status)
	var overview struct {
		Counts   map[string]int    `json:"counts"`
		Messages []json.RawMessage `json:"messages"`
	}
	outbox.decode(t, &overview)
	assert.Equal(t, 1, overview.Counts["pending"], "the settings audit waits in the outbox")

	api.h.Drain(t)
	audit := api.do(t, http.MethodGet, "/api/audit-logs?actorId="+admin.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, audit.Status)
	var entries []struct {
		Action string `json:"action"`
	}
	audit.decode(t, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "settings.update", entries[0].Action)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/audit-logs", employeeToken, nil).Status)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/system/outbox", employeeToken, nil).Status)
}

func TestRouterFallbacksAndRateLimit(t *testing.T) {
	t.Parallel()

	api := newAPI(t, func(cfg *apphttp.RouterConfig) {
		cfg.RateLimitRPS = 0.001
		cfg.RateLimitBurst = 2
	})

	first := api.do(t, http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, first.Status)
	assert.False(t, first.Body.Success)
	assert.Equal(t, "Resource not found.", first.Body.Message)

	second := api.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, second.Status)

	limited := api.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, limited.Status)
	assert.Equal(t, "1", limited.Header.Get("Retry-After"))
	assert.Equal(t, "Too many requests. Please slow down.", limited.Body.Message)
}

func TestRateLimitKeysOnForwardedAddressOnlyBehindProxy(t *testing.T) {
	t.Parallel()

	hit := func(router http.Handler, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	limited := func(trust bool) *apiFixture {
		return newAPI(t, func(cfg *apphttp.RouterConfig) {
			cfg.RateLimitRPS = 0.001
			cfg.RateLimitBurst = 1
			cfg.TrustProxy = trust
		})
	}

	direct := limited(false)
	assert.Equal(t, http.StatusNotFound, hit(direct.router, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(direct.router, "203.0.113.2"), "a spoofed header does not earn a fresh bucket")

	proxied := limited(true)
	assert.Equal(t, http.StatusNotFound, hit(proxied.router, "203.0.113.1"))
	assert.Equal(t, http.StatusNotFound, hit(proxied.router, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, hit(proxied.router, "203.0.113.1"))
}
