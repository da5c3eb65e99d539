package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-engine/internal/middleware"
	"collab-engine/internal/registry"
	"collab-engine/internal/response"
)

// WorkspaceHandler exposes workspace lifecycle over HTTP.
type WorkspaceHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

func NewWorkspaceHandler(reg *registry.Registry, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{registry: reg, logger: logger}
}

// Create handles POST /workspaces.
func (h *WorkspaceHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authentication required")
		return
	}

	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, err.Error())
		return
	}

	ws, err := h.registry.Create(c.Request.Context(), req.Name, userID, registry.CreateOptions{
		IsPublic:         req.IsPublic,
		AllowGuests:      req.AllowGuests,
		MaxUsers:         req.MaxUsers,
		ConflictStrategy: req.ConflictStrategy,
		AutoSave:         req.AutoSave,
	})
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusCreated, CreateWorkspaceResponse{WorkspaceID: ws.ID})
}

// Join handles POST /workspaces/:id/join.
func (h *WorkspaceHandler) Join(c *gin.Context) {
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

	var req JoinWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, err.Error())
		return
	}

	sess, err := h.registry.Join(c.Request.Context(), workspaceID, userID, registry.JoinInfo{
		InviteToken:    req.InviteToken,
		ActiveDocument: req.ActiveDocument,
	})
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	response.SendSuccess(c, http.StatusOK, JoinWorkspaceResponse{
		SessionID:   sess.ID,
		WorkspaceID: sess.WorkspaceID,
	})
}

// Leave handles POST /sessions/:sessionId/leave.
func (h *WorkspaceHandler) Leave(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid session ID")
		return
	}

	if err := h.registry.Leave(c.Request.Context(), sessionID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, gin.H{"left": true})
}

// Delete handles DELETE /workspaces/:id.
func (h *WorkspaceHandler) Delete(c *gin.Context) {
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

	if err := h.registry.Delete(c.Request.Context(), workspaceID, userID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, gin.H{"deleted": true})
}

// Snapshot handles GET /workspaces/:id/snapshot.
func (h *WorkspaceHandler) Snapshot(c *gin.Context) {
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

	view, err := h.registry.Snapshot(workspaceID, userID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, view)
}

// CreateInvite handles POST /workspaces/:id/invites.
func (h *WorkspaceHandler) CreateInvite(c *gin.Context) {
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

	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, err.Error())
		return
	}

	token, err := h.registry.CreateInvite(c.Request.Context(), workspaceID, userID, req.Role,
		time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusCreated, CreateInviteResponse{InviteToken: token})
}
