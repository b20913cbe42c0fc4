package controller

import (
	"io"

	"docrag-be/internal/dto"
	"docrag-be/internal/pkg/serverutils"
	"docrag-be/internal/service"
	"docrag-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router)
	Upload(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	Reprocess(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type documentController struct {
	service        service.IDocumentService
	maxUploadBytes int64
}

func NewDocumentController(service service.IDocumentService, maxUploadBytes int64) IDocumentController {
	return &documentController{service: service, maxUploadBytes: maxUploadBytes}
}

func (c *documentController) RegisterRoutes(r fiber.Router) {
	ws := r.Group("/workspace/v1")
	ws.Use(serverutils.JwtMiddleware)
	ws.Post(":id/documents", c.Upload)
	ws.Get(":id/documents", c.GetAll)

	h := r.Group("/document/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get(":id", c.Show)
	h.Get(":id/status", c.Status)
	h.Post(":id/reprocess", c.Reprocess)
	h.Delete(":id", c.Delete)
}

// Upload accepts a multipart "file" field and answers 202 with the pending document.
func (c *documentController) Upload(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	workspaceId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return apperror.Input("multipart field \"file\" is required")
	}
	if c.maxUploadBytes > 0 && fh.Size > c.maxUploadBytes {
		return apperror.WithMessage(apperror.ErrFileTooLarge, "%s exceeds the %d byte limit", fh.Filename, c.maxUploadBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	limit := fh.Size + 1
	if c.maxUploadBytes > 0 {
		limit = c.maxUploadBytes + 1
	}
	content, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return err
	}

	res, err := c.service.Upload(ctx.UserContext(), userId, &dto.UploadDocumentRequest{
		WorkspaceId: workspaceId,
		Filename:    fh.Filename,
		Content:     content,
	})
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Document accepted", res))
}

func (c *documentController) GetAll(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	workspaceId, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetAll(ctx.UserContext(), userId, workspaceId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all document", res))
}

func (c *documentController) Show(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Show(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show document", res))
}

func (c *documentController) Status(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Status(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get document status", res))
}

func (c *documentController) Reprocess(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.Reprocess(ctx.UserContext(), userId, id)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Document queued for reprocessing", res))
}

func (c *documentController) Delete(ctx *fiber.Ctx) error {
	userId, err := serverutils.CurrentUserId(ctx)
	if err != nil {
		return err
	}
	id, err := serverutils.ParamUUID(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.Delete(ctx.UserContext(), userId, id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete document", nil))
}
