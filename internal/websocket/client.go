package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"docrag-be/pkg/rag/broadcast"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client relays one status subscription over a websocket connection.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	UserID uuid.UUID

	sub *broadcast.Subscription

	// done is closed by the hub on unregister or shutdown.
	done chan struct{}
}

// readPump only watches for the peer going away; status streams are one-way.
func (c *Client) readPump() {
	defer func() {
		c.sub.Close()
		c.Hub.remove(c)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Debug("Hub", "Status stream closed unexpectedly", map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				})
			}
			return
		}
	}
}

// writePump sends each status event as a JSON text frame and pings the peer.
// A subscriber dropped for falling behind gets a close frame asking it to
// reconnect, which brings a fresh snapshot.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, closeFrame(c.sub.Err()))
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func closeFrame(reason error) []byte {
	if errors.Is(reason, broadcast.ErrSlowSubscriber) {
		return websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason.Error())
	}
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}
