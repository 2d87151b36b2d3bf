package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickup-map-api-server/internal/models"
	"pickup-map-api-server/internal/socket"
)

func TestServeWs(t *testing.T) {
	hub := socket.NewHub()
	r := gin.New()
	r.GET("/ws", (&WebSocketHandler{Hub: hub}).ServeWs)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// pings from the viewer are answered
	pong := make(chan string, 1)
	conn.SetPongHandler(func(data string) error { pong <- data; return nil })
	require.NoError(t, conn.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second)))

	// a viewport over Paris
	require.NoError(t, conn.WriteJSON(socket.ClientMessage{Type: socket.MessageTypeViewport, BBox: []float64{2.2, 48.8, 2.5, 48.95}}))

	// the pong is delivered while reading; give the server time to apply the viewport first
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(models.PickupEvent{Event: models.EventPickupApproved, Pickup: models.Pickup{Latitude: 40.7, Longitude: -74}})
	hub.Broadcast(models.PickupEvent{Event: models.EventPickupApproved, Pickup: models.Pickup{Latitude: 48.8566, Longitude: 2.3522, Description: "paris"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.PickupEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "paris", ev.Pickup.Description)

	select {
	case data := <-pong:
		assert.Equal(t, "hi", data)
	default:
		t.Fatal("expected a pong")
	}

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
