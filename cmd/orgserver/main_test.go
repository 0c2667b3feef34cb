package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/config"
	"github.com/example/orgdesk/internal/persistence/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionTokenGenerator(t *testing.T) {
	t.Parallel()

	secret := []byte("session-secret")
	next := sessionTokenGenerator(secret)
	first, second := next(), next()
	assert.NotEqual(t, first, second)

	raw, err := base64.RawURLEncoding.DecodeString(first)
	require.NoError(t, err)
	require.Len(t, raw, 16+sha256.Size)

	mac := hmac.New(sha256.New, secret)
	mac.Write(raw[:16])
	assert.True(t, hmac.Equal(mac.Sum(nil), raw[16:]))
}

func TestAttendancePolicy(t *testing.T) {
	t.Parallel()

	dhaka, err := time.LoadLocation("Asia/Dhaka")
	if err != nil {
		dhaka = time.FixedZone("UTC+6", 6*60*60)
	}
	policy, err := attendancePolicy(config.Config{WorkdayStart: "08:30", LateGrace: 10 * time.Minute, Timezone: dhaka})
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+30*time.Minute, policy.WorkdayStart)
	assert.Equal(t, 10*time.Minute, policy.LateGrace)
	assert.Equal(t, dhaka, policy.Location)

	_, err = attendancePolicy(config.Config{WorkdayStart: "half past eight"})
	assert.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	assert.Nil(t, originChecker(nil))

	check := originChecker([]string{"https://desk.example.com/"})
	req := httptest.NewRequest(http.MethodGet, "/api/notifications/stream", nil)
	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://DESK.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}

func TestNewApp_ServesBootstrapAdmin(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := discardLogger()

	cfg := config.Config{
		StorageDriver:          config.DriverMemory,
		SessionSecret:          "session-secret",
		SessionTTL:             time.Hour,
		DeviceSecret:           "device-secret",
		WorkdayStart:           "09:00",
		LateGrace:              15 * time.Minute,
		Timezone:               time.UTC,
		AssetCodePrefix:        "AST",
		OutboxInterval:         time.Second,
		BootstrapAdminEmail:    "root@example.com",
		BootstrapAdminPassword: "change-me-now",
	}
	store, err := openStore(ctx, cfg, logger)
	require.NoError(t, err)
	require.IsType(t, &memory.Storage{}, store)
	require.NoError(t, store.Migrate(ctx))

	a, err := newApp(ctx, cfg, store, logger)
	require.NoError(t, err)
	defer a.hub.Close()

	jobs, err := startJobs(ctx, a, cfg.OutboxInterval, logger)
	require.NoError(t, err)
	assert.Len(t, jobs.Entries(), 2)
	defer func() { <-jobs.Stop().Done() }()

	server := httptest.NewServer(a.handler)
	defer server.Close()

	body, err := json.Marshal(map[string]string{"email": "root@example.com", "password": "change-me-now"})
	require.NoError(t, err)
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		Data struct {
			Token    string `json:"token"`
			Employee struct {
				Role string `json:"role"`
			} `json:"employee"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.Data.Token)
	assert.Equal(t, "admin", login.Data.Employee.Role)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/settings", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	settings, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer settings.Body.Close()
	assert.Equal(t, http.StatusOK, settings.StatusCode)

	again, err := newApp(ctx, cfg, store, logger)
	require.NoError(t, err, "a second start keeps the existing administrator")
	again.hub.Close()
}
