package websocket

import (
	"context"

	"docrag-be/internal/pkg/logger"
)

// Hub tracks the status stream connections open on this instance. Events
// reach each client through its own broker subscription; cross-instance
// delivery is the broker relay's job.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	count      chan chan int
	stopped    chan struct{}

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		stopped:    make(chan struct{}),
		logger:     log,
	}
}

// Run owns the client set until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"user_id": client.UserID,
				"topic":   client.sub.Topic(),
			})

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.done)
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{
					"user_id": client.UserID,
					"topic":   client.sub.Topic(),
				})
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case <-ctx.Done():
			close(h.stopped)
			for client := range h.clients {
				delete(h.clients, client)
				close(client.done)
			}
			return nil
		}
	}
}

// Count reports the number of open connections, or 0 once the hub stopped.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

// add returns false when the hub already stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}
