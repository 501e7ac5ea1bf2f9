package notify

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a beat to register the client before publishing.
	time.Sleep(50 * time.Millisecond)

	hub.Publish("dataUpdate", map[string]any{
		"action":     "insert",
		"collection": "Product",
		"id":         "p1",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "dataUpdate", event.Event)
	payload, ok := event.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "insert", payload["action"])
	assert.Equal(t, "Product", payload["collection"])
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("dataUpdate", map[string]any{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without subscribers")
	}
}
