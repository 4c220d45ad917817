package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are already filtered by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// Stream handles GET /v1/track/:orderID/ws
//
// Snapshots are pushed as JSON whenever the session state changes; the
// connection closes once the session reaches a terminal state.
func (h *TrackingHandler) Stream(c *gin.Context) {
	sess, err := h.manager.Get(c.Param("orderID"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice a closed connection.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case snap := <-snapshots:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-sess.Done():
			// Deliver the final snapshot before closing.
			select {
			case snap := <-snapshots:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
			default:
			}
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "tracking ended")
			if err := conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Printf("track %s: websocket close failed: %v", sess.OrderID, err)
			}
			return
		}
	}
}
