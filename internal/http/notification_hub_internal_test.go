package http

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/persistence"
)

func drain(send chan []byte) (frames []string, closed bool) {
	for {
		select {
		case frame, ok := <-send:
			if !ok {
				return frames, true
			}
			frames = append(frames, string(frame))
		default:
			return frames, false
		}
	}
}

func TestNotificationHub_AttachQueuesWelcomeFirst(t *testing.T) {
	t.Parallel()

	t.Run("close right after attach", func(t *testing.T) {
		hub := NewNotificationHub(nil, nil)
		client := &hubClient{recipientID: "emp-1", send: make(chan []byte, hubSendBuffer)}
		require.True(t, hub.attach(client, []byte("welcome")))
		require.NotPanics(t, hub.Close)

		frames, closed := drain(client.send)
		assert.Equal(t, []string{"welcome"}, frames)
		assert.True(t, closed)
	})

	t.Run("dropped as a slow subscriber", func(t *testing.T) {
		hub := NewNotificationHub(nil, nil)
		client := &hubClient{recipientID: "emp-1", send: make(chan []byte, hubSendBuffer)}
		require.True(t, hub.attach(client, []byte("welcome")))

		for i := 0; i < hubSendBuffer; i++ {
			hub.Publish(context.Background(), persistence.Notification{ID: "n", RecipientID: "emp-1"})
		}
		assert.Zero(t, hub.Subscribers("emp-1"))

		frames, closed := drain(client.send)
		require.Len(t, frames, hubSendBuffer)
		assert.Equal(t, "welcome", frames[0])
		assert.True(t, closed)
	})

	t.Run("closed hub refuses", func(t *testing.T) {
		hub := NewNotificationHub(nil, nil)
		hub.Close()
		client := &hubClient{recipientID: "emp-1", send: make(chan []byte, hubSendBuffer)}
		assert.False(t, hub.attach(client, []byte("welcome")))
		assert.Zero(t, hub.Subscribers("emp-1"))
	})
}
