package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/testfixtures"
)

type streamFrame struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	Notification *struct {
		ID          string `json:"id"`
		RecipientID string `json:"recipientId"`
		Title       string `json:"title"`
	} `json:"notification"`
}

func dialStream(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/notifications/stream?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame streamFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestNotificationHub_StreamsToRecipient(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	alice := api.h.SeedEmployee(t)
	bob := api.h.SeedEmployee(t)
	aliceConn := dialStream(t, server, api.sessionFor(t, alice))
	bobConn := dialStream(t, server, api.sessionFor(t, bob))

	assert.Equal(t, "welcome", readFrame(t, aliceConn).Type)
	assert.Equal(t, "welcome", readFrame(t, bobConn).Type)
	assert.Equal(t, 1, api.hub.Subscribers(alice.ID))

	api.hub.Publish(context.Background(), persistence.Notification{
		ID:          "n-1",
		RecipientID: alice.ID,
		Kind:        persistence.NotifyAssetAssigned,
		Title:       "Asset assigned",
		CreatedAt:   testfixtures.ReferenceTime(),
	})
	api.hub.Publish(context.Background(), persistence.Notification{
		ID:          "n-2",
		RecipientID: bob.ID,
		Title:       "For Bob",
		CreatedAt:   testfixtures.ReferenceTime(),
	})

	frame := readFrame(t, aliceConn)
	assert.Equal(t, "notification", frame.Type)
	require.NotNil(t, frame.Notification)
	assert.Equal(t, "n-1", frame.Notification.ID)
	assert.Equal(t, "Asset assigned", frame.Notification.Title)

	frame = readFrame(t, bobConn)
	require.NotNil(t, frame.Notification)
	assert.Equal(t, "n-2", frame.Notification.ID, "each subscriber only sees their own notifications")
}

func TestNotificationHub_RequiresSession(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/notifications/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotificationHub_CloseDisconnectsSubscribers(t *testing.T) {
	t.Parallel()

	api := newAPI(t)
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	employee := api.h.SeedEmployee(t)
	conn := dialStream(t, server, api.sessionFor(t, employee))
	assert.Equal(t, "welcome", readFrame(t, conn).Type)

	api.hub.Close()
	assert.Zero(t, api.hub.Subscribers(employee.ID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
