package kds

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
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/models"
)

func serveHub(t *testing.T, hub *Hub, client Client) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn, client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversTargetedEventsToOwnerOnly(t *testing.T) {
	hub := NewHub()
	owner := serveHub(t, hub, Client{AccountID: 1, Roles: models.RoleDiner})
	other := serveHub(t, hub, Client{AccountID: 2, Roles: models.RoleDiner})
	admin := serveHub(t, hub, Client{AccountID: 3, Roles: models.RoleAdmin})

	require.Eventually(t, func() bool { return hub.Len() == 3 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.New(events.AccountSuspended, 1, nil)))

	var got events.Event
	owner.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, owner.ReadJSON(&got))
	assert.Equal(t, events.AccountSuspended, got.Type)

	admin.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, admin.ReadJSON(&got))
	assert.Equal(t, uint(1), got.AccountID)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	assert.Error(t, other.ReadJSON(&got))
}

func TestHubPublishDoesNotWaitForClientThatNeverReads(t *testing.T) {
	hub := NewHub()
	hub.writeWait = 200 * time.Millisecond
	hub.sendBuffer = 4

	// koneksi ini tidak pernah dibaca oleh client
	serveHub(t, hub, Client{AccountID: 1, Roles: models.RoleDiner})
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	payload := strings.Repeat("x", 1<<20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			hub.Publish(context.Background(), events.New(events.BidPlaced, 0, payload))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a client that never reads")
	}
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	// client baru tetap menerima event
	fresh := serveHub(t, hub, Client{AccountID: 2, Roles: models.RoleDiner})
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), events.New(events.AccountSuspended, 2, nil)))

	var got events.Event
	fresh.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, fresh.ReadJSON(&got))
	assert.Equal(t, events.AccountSuspended, got.Type)
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	serveHub(t, hub, Client{AccountID: 1, Roles: models.RoleDiner})
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	var conn *websocket.Conn
	hub.mutex.Lock()
	for c := range hub.clients {
		conn = c
	}
	hub.mutex.Unlock()

	hub.Unregister(conn)
	hub.Unregister(conn)
	assert.Equal(t, 0, hub.Len())
}
