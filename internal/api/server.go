// Package api exposes the document processing core over HTTP with fiber
package api

import (
	stderrors "errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
)

// errorHandler renders every error as {error, message, details}. Domain
// errors keep their code; fiber errors keep their status.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: "HTTP_ERROR", Message: fe.Message})
	}

	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Error:   apperrors.CodeInternal,
			Message: "internal error",
		})
	}

	status := apperrors.HTTPStatus(appErr)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	return c.Status(status).JSON(errorResponse{
		Error:   appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// parseBody decodes a JSON body, rejecting malformed input as a validation error
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.Validation("invalid request body: %v", err)
	}
	return nil
}
