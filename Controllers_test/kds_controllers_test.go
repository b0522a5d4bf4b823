package Controllers_test

import (
	"encoding/json"
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

func TestEventStreamReceivesBidPlaced(t *testing.T) {
	h := newHarness(t)
	_, chefToken := h.account("chef", models.RoleChef)
	diner, dinerToken := h.account("diner", models.RoleDiner)
	h.fund(diner.ID, "100")
	postID := h.createPost(chefToken, "10", 4)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?token=" + chefToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.placeBid(dinerToken, postID, "11", 1)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var e events.Event
	require.NoError(t, json.Unmarshal(msg, &e))
	assert.Equal(t, events.BidPlaced, e.Type)
}

func TestEventStreamRejectsMissingToken(t *testing.T) {
	h := newHarness(t)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/events", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPingAndMetrics(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grub_http_request_duration_seconds")
}
