package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendsense/internal/models"
	"github.com/your-org/attendsense/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestBroadcastPresence(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastPresence(models.PresenceChange{Kind: models.ChangeArrived, PersonID: "p1", Name: "Alice", Present: true})

	evt := readEvent(t, conn)
	assert.Equal(t, "presence", evt.Type)
	assert.Equal(t, models.ChangeArrived, evt.Data.Kind)
	assert.Equal(t, "p1", evt.Data.PersonID)
}

func TestPersonFilter(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?person_id=p2")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastPresence(models.PresenceChange{Kind: models.ChangeSeen, PersonID: "p1"})
	hub.BroadcastPresence(models.PresenceChange{Kind: models.ChangeLeft, PersonID: "p2"})

	evt := readEvent(t, conn)
	assert.Equal(t, "p2", evt.Data.PersonID)
	assert.Equal(t, models.ChangeLeft, evt.Data.Kind)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
