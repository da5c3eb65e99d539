package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-engine/internal/engine"
	"collab-engine/internal/middleware"
	"collab-engine/internal/response"
)

// OperationHandler exposes operation submission and conflict resolution.
type OperationHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

func NewOperationHandler(eng *engine.Engine, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{engine: eng, logger: logger}
}

// Submit handles POST /sessions/:sessionId/operations.
func (h *OperationHandler) Submit(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid session ID")
		return
	}

	var req SubmitOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, err.Error())
		return
	}

	result, err := h.engine.Submit(c.Request.Context(), sessionID, engine.OperationRequest{
		Type: req.Type,
		Data: req.Data,
	})
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Status == engine.StatusPending {
		status = http.StatusAccepted
	}
	response.SendSuccess(c, status, result)
}

// Resolve handles POST /workspaces/:id/conflicts/:operationId/resolve.
func (h *OperationHandler) Resolve(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authentication required")
		return
	}
	workspaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid workspace ID")
		return
	}
	operationID, err := uuid.Parse(c.Param("operationId"))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid operation ID")
		return
	}

	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, err.Error())
		return
	}

	result, err := h.engine.ResolveManual(c.Request.Context(), workspaceID, operationID, userID, req.Data)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, result)
}

// Analytics handles GET /analytics.
func (h *OperationHandler) Analytics(c *gin.Context) {
	response.SendSuccess(c, http.StatusOK, h.engine.GetAnalytics())
}
