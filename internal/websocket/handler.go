package websocket

import (
	"context"

	"docrag-be/internal/pkg/serverutils"
	"docrag-be/internal/service"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/rag/broadcast"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const subscriptionKey = "status_subscription"

// StatusHandler serves GET /ws/status?workspace_id=… or ?document_id=….
// The subscription is opened before the upgrade so that a bad id or a
// foreign workspace is answered with a plain HTTP error.
type StatusHandler struct {
	hub     *Hub
	service service.IStatusService
}

func NewStatusHandler(hub *Hub, service service.IStatusService) *StatusHandler {
	return &StatusHandler{hub: hub, service: service}
}

func (h *StatusHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/ws")
	g.Use(serverutils.JwtMiddleware)
	g.Get("/status", h.subscribe, websocket.New(h.serve))
}

func (h *StatusHandler) subscribe(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}

	workspaceId, err := optionalUUID(ctx.Query("workspace_id"))
	if err != nil {
		return err
	}
	documentId, err := optionalUUID(ctx.Query("document_id"))
	if err != nil {
		return err
	}

	sub, err := h.service.Subscribe(context.Background(), userId, workspaceId, documentId)
	if err != nil {
		return err
	}
	ctx.Locals("user_uuid", userId)
	ctx.Locals(subscriptionKey, sub)
	return ctx.Next()
}

func (h *StatusHandler) serve(c *websocket.Conn) {
	sub, ok := c.Locals(subscriptionKey).(*broadcast.Subscription)
	if !ok {
		c.Close()
		return
	}
	userId, _ := c.Locals("user_uuid").(uuid.UUID)
	ServeWs(h.hub, c, userId, sub)
}

// ServeWs runs the client pumps; it returns when the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, userID uuid.UUID, sub *broadcast.Subscription) {
	client := &Client{Hub: hub, Conn: c, UserID: userID, sub: sub, done: make(chan struct{})}
	if !hub.add(client) {
		sub.Close()
		c.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperror.Input("invalid id %q", raw)
	}
	return &id, nil
}
