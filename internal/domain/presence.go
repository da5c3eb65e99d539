package domain

import (
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceOffline PresenceStatus = "OFFLINE"
)

// Cursor is a member's pointer position inside a document.
type Cursor struct {
	Position   int       `json:"position"`
	DocumentID uuid.UUID `json:"document_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Presence is a member's live connectivity state within one workspace.
type Presence struct {
	UserID         uuid.UUID      `json:"user_id"`
	Status         PresenceStatus `json:"status"`
	LastSeen       time.Time      `json:"last_seen"`
	Cursor         *Cursor        `json:"cursor,omitempty"`
	ActiveDocument *uuid.UUID     `json:"active_document,omitempty"`
	Role           Role           `json:"role"`
	JoinedAt       time.Time      `json:"joined_at"`
}

// NewPresence creates an online presence entry for a member joining now.
func NewPresence(userID uuid.UUID, role Role) *Presence {
	now := time.Now()
	return &Presence{
		UserID:   userID,
		Status:   PresenceOnline,
		LastSeen: now,
		Role:     role,
		JoinedAt: now,
	}
}

// SetOffline transitions the presence to offline and stamps last seen.
func (p *Presence) SetOffline() {
	p.Status = PresenceOffline
	p.LastSeen = time.Now()
}

// SetOnline transitions the presence back to online.
func (p *Presence) SetOnline() {
	p.Status = PresenceOnline
	p.LastSeen = time.Now()
}
