package serverutils

import (
	"errors"
	"net/http"

	"docrag-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// StatusFor maps an application error kind to its HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	switch apperror.KindOf(err) {
	case apperror.KindInput:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindPolicy, apperror.KindTenantIsolation:
		return http.StatusForbidden
	case apperror.KindTransient:
		return http.StatusServiceUnavailable
	case apperror.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
}

// ErrorHandlerMiddleware turns errors returned by handlers into BaseResponse bodies.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := StatusFor(err)
		message := err.Error()
		body := errorBody{Retryable: apperror.IsRetryable(err)}

		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			body.Code = appErr.Code
			message = appErr.Message
		}
		if status == http.StatusInternalServerError {
			message = "internal server error"
		}

		return ctx.Status(status).JSON(ErrorResponseWithData(status, message, body))
	}
}

// CurrentUserId reads the user id placed in Locals by JwtMiddleware.
func CurrentUserId(ctx *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := ctx.Locals("user_id").(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "invalid user id in token")
	}
	return id, nil
}

// ParamUUID parses a path parameter as a UUID.
func ParamUUID(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, apperror.Input("%s must be a valid id", name)
	}
	return id, nil
}
