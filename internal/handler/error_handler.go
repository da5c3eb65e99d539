package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collab-engine/internal/response"
)

// handleServiceError maps engine errors to HTTP responses.
func handleServiceError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *response.AppError
	if errors.As(err, &appErr) {
		response.SendError(c, response.HTTPStatus(appErr.Code), appErr.Code, appErr.Message)
		return
	}

	logger.Error("unhandled service error", zap.Error(err),
		zap.String("path", c.Request.URL.Path))
	response.SendError(c, response.HTTPStatus(response.ErrCodeInternal), response.ErrCodeInternal, "Internal server error")
}
