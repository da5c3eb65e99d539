package registry

import (
	"github.com/google/uuid"

	"collab-engine/internal/domain"
	"collab-engine/internal/response"
)

// MemberView is one member entry of a snapshot.
type MemberView struct {
	UserID         uuid.UUID             `json:"user_id"`
	Status         domain.PresenceStatus `json:"status"`
	Role           domain.Role           `json:"role"`
	Cursor         *domain.Cursor        `json:"cursor,omitempty"`
	ActiveDocument *uuid.UUID            `json:"active_document,omitempty"`
}

// SnapshotView is the permission-filtered projection of a workspace used for
// client hydration. Invite tokens are never included; the pending manual
// queue is admin-only.
type SnapshotView struct {
	WorkspaceID uuid.UUID                          `json:"workspace_id"`
	Name        string                             `json:"name"`
	Settings    domain.Settings                    `json:"settings"`
	Role        domain.Role                        `json:"role"`
	Members     []MemberView                       `json:"members"`
	RecentChat  []domain.ChatMessage               `json:"recent_chat"`
	Projects    map[uuid.UUID]*domain.SharedEntity `json:"projects"`
	Documents   map[uuid.UUID]*domain.SharedEntity `json:"documents"`
	AISessions  map[uuid.UUID]*domain.SharedEntity `json:"ai_sessions"`
	Annotations map[uuid.UUID]*domain.SharedEntity `json:"annotations"`
	PendingOps  []domain.Operation                 `json:"pending_ops,omitempty"`
}

// Snapshot builds the hydration view for one member. Non-members are denied.
func (r *Registry) Snapshot(workspaceID, forUserID uuid.UUID) (*SnapshotView, error) {
	var view *SnapshotView
	err := r.WithWorkspace(workspaceID, func(ws *domain.Workspace) error {
		role, ok := ws.Permissions[forUserID]
		if !ok {
			return response.NewAppError(response.ErrCodePermissionDenied, "not a member of this workspace", "")
		}

		members := make([]MemberView, 0, len(ws.Members))
		for _, p := range ws.Members {
			members = append(members, MemberView{
				UserID:         p.UserID,
				Status:         p.Status,
				Role:           p.Role,
				Cursor:         p.Cursor,
				ActiveDocument: p.ActiveDocument,
			})
		}

		chat := ws.SharedState.ChatHistory
		if len(chat) > snapshotChatSize {
			chat = chat[len(chat)-snapshotChatSize:]
		}
		recentChat := make([]domain.ChatMessage, len(chat))
		copy(recentChat, chat)

		view = &SnapshotView{
			WorkspaceID: ws.ID,
			Name:        ws.Name,
			Settings:    ws.Settings,
			Role:        role,
			Members:     members,
			RecentChat:  recentChat,
			Projects:    cloneEntities(ws.SharedState.Projects),
			Documents:   cloneEntities(ws.SharedState.Documents),
			AISessions:  cloneEntities(ws.SharedState.AISessions),
			Annotations: cloneEntities(ws.SharedState.Annotations),
		}
		if role == domain.RoleAdmin {
			view.PendingOps = append([]domain.Operation(nil), ws.PendingOps...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// cloneEntities copies the entity map, payloads included, so the view stays
// stable after the workspace lock is released. Handlers marshal the view
// outside the lock; sharing the live payload maps would race with the next
// applied operation.
func cloneEntities(in map[uuid.UUID]*domain.SharedEntity) map[uuid.UUID]*domain.SharedEntity {
	out := make(map[uuid.UUID]*domain.SharedEntity, len(in))
	for id, e := range in {
		copied := *e
		copied.Data = domain.CloneData(e.Data)
		out[id] = &copied
	}
	return out
}
