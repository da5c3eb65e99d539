package broadcast

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-engine/internal/domain"
)

// Event names delivered to clients.
const (
	EventWorkspaceCreated  = "workspace:created"
	EventWorkspaceDeleted  = "workspace:deleted"
	EventUserJoined        = "user:joined"
	EventUserLeft          = "user:left"
	EventUserDisconnected  = "user:disconnected"
	EventUserStatusChanged = "user:status_changed"
	EventOperationApplied  = "operation:applied"
	EventConflictMerged    = "conflict:merged"
	EventManualResolution  = "conflict:manual_resolution_required"
)

// Event is one notification fanned out to workspace members.
type Event struct {
	Type        string         `json:"type"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Channel is the external transport delivering events to one user. Delivery
// is fire-and-forget; the engine assumes no acknowledgment.
type Channel interface {
	Send(userID uuid.UUID, event Event) error
}

// Hub fans events out to all online members of a workspace except the
// originator. A failed send to one recipient never aborts the rest and never
// rolls back the state mutation that triggered it.
type Hub struct {
	channel Channel
	logger  *zap.Logger
}

func NewHub(channel Channel, logger *zap.Logger) *Hub {
	return &Hub{channel: channel, logger: logger}
}

// Publish delivers the event to every online member of ws except exclude.
// Pass uuid.Nil as exclude to reach everyone.
func (h *Hub) Publish(ws *domain.Workspace, eventType string, payload map[string]any, exclude uuid.UUID) {
	event := Event{
		Type:        eventType,
		WorkspaceID: ws.ID,
		Payload:     payload,
		Timestamp:   time.Now(),
	}

	for userID, presence := range ws.Members {
		if userID == exclude || presence.Status != domain.PresenceOnline {
			continue
		}
		if err := h.channel.Send(userID, event); err != nil {
			h.logger.Warn("broadcast delivery failed",
				zap.String("event", eventType),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
}
