package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/orgdesk/internal/persistence"
)

const (
	hubWriteWait      = 10 * time.Second
	hubPongWait       = 60 * time.Second
	hubPingPeriod     = 30 * time.Second
	hubMaxMessageSize = 512
	hubSendBuffer     = 256
)

// streamMessage is the frame written to websocket subscribers.
type streamMessage struct {
	Type         string           `json:"type"`
	Message      string           `json:"message,omitempty"`
	Notification *notificationDTO `json:"notification,omitempty"`
	Timestamp    string           `json:"timestamp"`
}

type hubClient struct {
	recipientID string
	conn        *websocket.Conn
	send        chan []byte
}

// NotificationHub fans delivered notifications out to the websocket
// connections of their recipients. It satisfies application.NotificationPublisher.
type NotificationHub struct {
	mu       sync.Mutex
	clients  map[string]map[*hubClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
	now      func() time.Time
	logger   *slog.Logger
}

// NewNotificationHub constructs an empty hub. A nil checkOrigin accepts every origin.
func NewNotificationHub(checkOrigin func(*http.Request) bool, logger *slog.Logger) *NotificationHub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &NotificationHub{
		clients: make(map[string]map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		now:    time.Now,
		logger: defaultLogger(logger),
	}
}

// Publish pushes a notification to every open connection of its recipient.
// Slow connections whose buffer is full are dropped.
func (h *NotificationHub) Publish(ctx context.Context, notification persistence.Notification) {
	dto := toNotificationDTO(notification)
	payload, err := json.Marshal(streamMessage{
		Type:         "notification",
		Notification: &dto,
		Timestamp:    formatTime(h.now()),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode notification frame", "error", err, "notification_id", notification.ID)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[notification.RecipientID] {
		select {
		case client.send <- payload:
		default:
			h.removeLocked(client)
			h.logger.WarnContext(ctx, "dropping slow notification subscriber", "recipient_id", client.recipientID)
		}
	}
}

// Subscribers reports how many connections are open for a recipient.
func (h *NotificationHub) Subscribers(recipientID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[recipientID])
}

// Close disconnects every subscriber and rejects new ones.
func (h *NotificationHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.clients {
		for client := range set {
			h.removeLocked(client)
		}
	}
}

// ServeWS upgrades an authenticated request and streams the principal's notifications.
func (h *NotificationHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		newResponder(h.logger).writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	logger := handlerLogger(r.Context(), h.logger, "NotificationHub", "ServeWS")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	welcome, _ := json.Marshal(streamMessage{
		Type:      "welcome",
		Message:   "Connected to notification stream",
		Timestamp: formatTime(h.now()),
	})
	client := &hubClient{recipientID: principal.UserID, conn: conn, send: make(chan []byte, hubSendBuffer)}
	if !h.attach(client, welcome) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}
	logger.InfoContext(r.Context(), "notification subscriber connected")

	go h.writePump(client)
	go h.readPump(client)
}

// attach queues welcome on the client's private buffer and then registers it.
// Once registered, send belongs to the hub and may be closed at any time.
func (h *NotificationHub) attach(client *hubClient, welcome []byte) bool {
	client.send <- welcome
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[client.recipientID]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[client.recipientID] = set
	}
	set[client] = struct{}{}
	return true
}

func (h *NotificationHub) unregister(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked requires h.mu.
func (h *NotificationHub) removeLocked(client *hubClient) {
	set, ok := h.clients[client.recipientID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.recipientID)
	}
}

func (h *NotificationHub) writePump(client *hubClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.unregister(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(client)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process pongs and notice disconnects.
func (h *NotificationHub) readPump(client *hubClient) {
	defer h.unregister(client)

	client.conn.SetReadLimit(hubMaxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
