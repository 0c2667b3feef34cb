package devicesync_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/devicesync"
	apphttp "github.com/example/orgdesk/internal/http"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/testfixtures"
)

var secret = []byte("sync-secret")

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTerminal serves a fixed record set and remembers the last since query.
type fakeTerminal struct {
	mu      sync.Mutex
	punches []devicesync.Punch
	since   []string
}

func (f *fakeTerminal) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(devicesync.TerminalInfo{SerialNumber: "SN-1", Model: "F18", Firmware: "6.60", UserCount: 2, RecordCount: len(f.punches)})
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]devicesync.TerminalUser{{UserID: "17", Name: "Ana"}, {UserID: "18", Name: "Ben", Role: 14}})
	})
	mux.HandleFunc("/attendance", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.since = append(f.since, r.URL.Query().Get("since"))
		punches := append([]devicesync.Punch(nil), f.punches...)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(punches)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (f *fakeTerminal) add(p ...devicesync.Punch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.punches = append(f.punches, p...)
}

func (f *fakeTerminal) sinceQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.since...)
}

func orgdeskServer(t *testing.T) (*testfixtures.Harness, *httptest.Server) {
	t.Helper()
	h := testfixtures.NewHarness(t)
	router := apphttp.NewRouter(apphttp.RouterConfig{
		Attendance:   apphttp.NewAttendanceHandler(h.Attendance, h.Logger),
		Sessions:     h.Auth,
		DeviceSecret: secret,
		Logger:       h.Logger,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return h, server
}

func punchAt(userID string, hour, minute int) devicesync.Punch {
	day := testfixtures.Date(2025, time.June, 2)
	return devicesync.Punch{UserID: userID, Timestamp: day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)}
}

func TestSession_SyncOnceAgainstServer(t *testing.T) {
	t.Parallel()

	h, api := orgdeskServer(t)
	employee := h.SeedEmployee(t, testfixtures.WithDeviceUserID("17"))

	terminal := &fakeTerminal{}
	terminal.add(punchAt("17", 17, 30), punchAt("17", 9, 5), punchAt("99", 9, 0))
	termServer := terminal.server(t)

	session := &devicesync.Session{
		Terminal:  devicesync.NewTerminalClient(termServer.URL, nil, time.Second),
		Server:    devicesync.NewServerClient(api.URL, "front-door", secret, 5*time.Second, devicesync.WithUploadRate(0, 0)),
		BatchSize: 2,
		Logger:    discard(),
	}

	result, err := session.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Unmatched)
	assert.Equal(t, punchAt("17", 17, 30).Timestamp, result.Watermark.UTC())

	row, err := h.Repos.Attendance.GetAttendanceByDay(context.Background(), employee.ID, testfixtures.Date(2025, time.June, 2))
	require.NoError(t, err)
	assert.Equal(t, persistence.AttendancePresent, row.Status)
	require.NotNil(t, row.CheckOut)

	t.Run("resumes from the server watermark", func(t *testing.T) {
		terminal.add(punchAt("17", 18, 0))

		next, err := session.SyncOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, next.Fetched, "records at or before the watermark are not re-sent")
		assert.Equal(t, 1, next.Processed)

		queries := terminal.sinceQueries()
		require.Len(t, queries, 2)
		assert.Empty(t, queries[0])
		assert.Equal(t, "2025-06-02T17:30:00Z", queries[1])
	})

	t.Run("a restarted session loses nothing", func(t *testing.T) {
		fresh := &devicesync.Session{
			Terminal: devicesync.NewTerminalClient(termServer.URL, nil, time.Second),
			Server:   devicesync.NewServerClient(api.URL, "front-door", secret, 5*time.Second, devicesync.WithUploadRate(0, 0)),
			Logger:   discard(),
		}
		again, err := fresh.SyncOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, again.Fetched)
		assert.Zero(t, again.Batches)
	})
}

func TestSession_TestAndInfo(t *testing.T) {
	t.Parallel()

	_, api := orgdeskServer(t)
	terminal := &fakeTerminal{}
	termServer := terminal.server(t)

	session := &devicesync.Session{
		Terminal: devicesync.NewTerminalClient(termServer.URL, nil, time.Second),
		Server:   devicesync.NewServerClient(api.URL, "front-door", secret, 5*time.Second),
		Logger:   discard(),
	}
	require.NoError(t, session.Test(context.Background()))

	var out bytes.Buffer
	require.NoError(t, session.Info(context.Background(), &out))
	assert.Contains(t, out.String(), "SN-1")
	assert.Contains(t, out.String(), "USER ID")
	assert.Contains(t, out.String(), "Ben")

	t.Run("reports a wrong secret", func(t *testing.T) {
		bad := &devicesync.Session{
			Terminal: session.Terminal,
			Server:   devicesync.NewServerClient(api.URL, "front-door", []byte("wrong"), 5*time.Second),
			Logger:   discard(),
		}
		err := bad.Test(context.Background())
		require.Error(t, err)

		var apiErr *devicesync.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
		assert.Equal(t, "Device token is invalid or expired.", apiErr.Message)
	})

	t.Run("reports an unreachable terminal", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		down.Close()
		bad := &devicesync.Session{
			Terminal: devicesync.NewTerminalClient(down.URL, nil, time.Second),
			Server:   session.Server,
			Logger:   discard(),
		}
		err := bad.Test(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "terminal unreachable")
	})
}

func TestSession_SyncOnceKeepsSameSecondPunchesTogether(t *testing.T) {
	t.Parallel()

	h, api := orgdeskServer(t)
	ana := h.SeedEmployee(t, testfixtures.WithDeviceUserID("17"))
	ben := h.SeedEmployee(t, testfixtures.WithDeviceUserID("18"))

	terminal := &fakeTerminal{}
	terminal.add(punchAt("17", 9, 0), punchAt("18", 9, 0))
	termServer := terminal.server(t)

	session := &devicesync.Session{
		Terminal:  devicesync.NewTerminalClient(termServer.URL, nil, time.Second),
		Server:    devicesync.NewServerClient(api.URL, "front-door", secret, 5*time.Second, devicesync.WithUploadRate(0, 0)),
		BatchSize: 1,
		Logger:    discard(),
	}

	result, err := session.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Batches, "both punches share a timestamp")
	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Skipped)

	for _, employee := range []persistence.Employee{ana, ben} {
		row, err := h.Repos.Attendance.GetAttendanceByDay(context.Background(), employee.ID, testfixtures.Date(2025, time.June, 2))
		require.NoError(t, err, employee.ID)
		require.NotNil(t, row.CheckIn, employee.ID)
		assert.Equal(t, punchAt("17", 9, 0).Timestamp, row.CheckIn.UTC())
	}
}

// stubServer records uploads without a network.
type stubServer struct {
	mu        sync.Mutex
	watermark time.Time
	batches   [][]devicesync.Punch
	failAfter int
}

func (s *stubServer) Watermark(context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark, nil
}

func (s *stubServer) Upload(_ context.Context, punches []devicesync.Punch) (devicesync.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.batches) >= s.failAfter {
		return devicesync.UploadResult{}, errors.New("server down")
	}
	s.batches = append(s.batches, append([]devicesync.Punch(nil), punches...))
	return devicesync.UploadResult{Processed: len(punches), Watermark: punches[len(punches)-1].Timestamp}, nil
}

type stubTerminal struct {
	punches []devicesync.Punch
}

func (s stubTerminal) Info(context.Context) (devicesync.TerminalInfo, error) {
	return devicesync.TerminalInfo{}, nil
}

func (s stubTerminal) Users(context.Context) ([]devicesync.TerminalUser, error) { return nil, nil }

func (s stubTerminal) Attendance(context.Context, time.Time) ([]devicesync.Punch, error) {
	return s.punches, nil
}

func TestSession_SyncOnceBatchesInOrder(t *testing.T) {
	t.Parallel()

	server := &stubServer{watermark: punchAt("1", 8, 0).Timestamp}
	session := &devicesync.Session{
		Terminal: stubTerminal{punches: []devicesync.Punch{
			punchAt("1", 12, 0),
			punchAt("1", 7, 0),
			punchAt("2", 9, 0),
			{UserID: "3"},
			punchAt("2", 8, 0),
			punchAt("3", 10, 0),
		}},
		Server:    server,
		BatchSize: 2,
		Logger:    discard(),
	}

	result, err := session.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched, "old and zero-time records are dropped")
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, punchAt("1", 12, 0).Timestamp, result.Watermark)

	require.Len(t, server.batches, 2)
	assert.Equal(t, []devicesync.Punch{punchAt("2", 9, 0), punchAt("3", 10, 0)}, server.batches[0])
	assert.Equal(t, []devicesync.Punch{punchAt("1", 12, 0)}, server.batches[1])

	t.Run("a shared timestamp extends the batch", func(t *testing.T) {
		server := &stubServer{}
		session := &devicesync.Session{
			Terminal: stubTerminal{punches: []devicesync.Punch{
				punchAt("1", 9, 0),
				punchAt("2", 9, 0),
				punchAt("3", 9, 0),
				punchAt("4", 9, 1),
				punchAt("5", 9, 2),
			}},
			Server:    server,
			BatchSize: 2,
			Logger:    discard(),
		}
		result, err := session.SyncOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, result.Processed)
		require.Len(t, server.batches, 2)
		assert.Len(t, server.batches[0], 3)
		assert.Equal(t, []devicesync.Punch{punchAt("4", 9, 1), punchAt("5", 9, 2)}, server.batches[1])
	})

	t.Run("upload failure stops the poll", func(t *testing.T) {
		failing := &stubServer{failAfter: 1}
		session := &devicesync.Session{Terminal: session.Terminal, Server: failing, BatchSize: 1, Logger: discard()}
		result, err := session.SyncOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upload batch 2")
		assert.Equal(t, 1, result.Batches)
	})
}

func TestSession_Run(t *testing.T) {
	t.Parallel()

	server := &stubServer{}
	session := &devicesync.Session{
		Terminal: stubTerminal{punches: []devicesync.Punch{punchAt("1", 9, 0)}},
		Server:   server,
		Logger:   discard(),
	}

	require.Error(t, session.Run(context.Background(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, session.Run(ctx, time.Hour))

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Len(t, server.batches, 1, "the first poll runs immediately")
}
