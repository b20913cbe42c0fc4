package controller

import (
	"bufio"
	"context"

	"docrag-be/internal/dto"
	"docrag-be/internal/pkg/logger"
	"docrag-be/internal/pkg/serverutils"
	"docrag-be/internal/service"
	"docrag-be/pkg/apperror"
	"docrag-be/pkg/rag/chat"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetSessions(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	GetMessages(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	Continue(ctx *fiber.Ctx) error
	CurrentTurn(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	log     logger.ILogger
}

func NewChatController(service service.IChatService, log logger.ILogger) IChatController {
	return &chatController{service: service, log: log}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("sessions", c.CreateSession)
	h.Get("sessions", c.GetSessions)
	h.Delete("sessions/:id", c.DeleteSession)
	h.Get("sessions/:id/messages", c.GetMessages)
	h.Post("sessions/:id/messages", c.SendMessage)
	h.Get("sessions/:id/turn", c.CurrentTurn)
	h.Post("sessions/:id/turns/:turnId/continue", c.Continue)
	h.Post("sessions/:id/turns/:turnId/cancel", c.Cancel)
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}

	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CreateSession(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create chat session", res))
}

func (c *chatController) GetSessions(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	workspaceId, err := uuid.Parse(ctx.Query("workspace_id"))
	if err != nil {
		return apperror.Input("query parameter workspace_id must be a uuid")
	}

	res, err := c.service.GetSessions(ctx.UserContext(), userId, workspaceId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all chat session", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.DeleteSession(ctx.UserContext(), userId, sessionId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete chat session", nil))
}

func (c *chatController) GetMessages(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetMessages(ctx.UserContext(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get chat messages", res))
}

// SendMessage starts a turn and streams it back as server-sent events.
func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	run, err := c.service.StartTurn(ctx.UserContext(), userId, sessionId, req.Content)
	if err != nil {
		return err
	}
	return c.stream(ctx, run)
}

// Continue resolves a turn waiting in the no-context state and streams the rest of it.
func (c *chatController) Continue(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	turnId, err := serverutils.ParamUUID(ctx, "turnId")
	if err != nil {
		return err
	}

	var req dto.ContinueTurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	run, err := c.service.ResumeTurn(ctx.UserContext(), userId, sessionId, turnId, chat.Continuation(req.Choice))
	if err != nil {
		return err
	}
	return c.stream(ctx, run)
}

func (c *chatController) CurrentTurn(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.CurrentTurn(ctx.UserContext(), userId, sessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get current turn", res))
}

func (c *chatController) Cancel(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	sessionId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}
	turnId, err := serverutils.ParamUUID(ctx, "turnId")
	if err != nil {
		return err
	}

	if err := c.service.Cancel(ctx.UserContext(), userId, sessionId, turnId); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Turn cancelled", nil))
}

// stream drives an already claimed turn into the response body. The body
// writer runs after the handler returns, so the turn gets its own context;
// a client disconnect cancels it.
func (c *chatController) stream(ctx *fiber.Ctx, run *chat.Run) error {
	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		turnCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := newSSEWriter(w, cancel)
		if _, err := run.Stream(turnCtx, out.Sink); err != nil {
			c.log.Debug("CHAT", "Turn ended with error", map[string]interface{}{"error": err.Error()})
			out.Fail(err)
		}
	}))
	return nil
}
