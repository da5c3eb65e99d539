package handler

import (
	"github.com/google/uuid"

	"collab-engine/internal/domain"
)

type CreateWorkspaceRequest struct {
	Name             string                  `json:"name" binding:"required,max=100"`
	IsPublic         bool                    `json:"is_public"`
	AllowGuests      bool                    `json:"allow_guests"`
	MaxUsers         int                     `json:"max_users"`
	ConflictStrategy domain.ConflictStrategy `json:"conflict_strategy"`
	AutoSave         *bool                   `json:"auto_save"`
}

type CreateWorkspaceResponse struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
}

type JoinWorkspaceRequest struct {
	InviteToken    string     `json:"invite_token"`
	ActiveDocument *uuid.UUID `json:"active_document"`
}

type JoinWorkspaceResponse struct {
	SessionID   uuid.UUID `json:"session_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
}

type CreateInviteRequest struct {
	Role       domain.Role `json:"role"`
	TTLSeconds int         `json:"ttl_seconds"`
}

type CreateInviteResponse struct {
	InviteToken string `json:"invite_token"`
}

type SubmitOperationRequest struct {
	Type domain.OperationType `json:"type" binding:"required"`
	Data map[string]any       `json:"data"`
}

type ResolveConflictRequest struct {
	Data map[string]any `json:"data"`
}
