package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConflictStrategy is the workspace-configured policy for settling concurrent edits.
type ConflictStrategy string

const (
	StrategyLastWriteWins  ConflictStrategy = "LAST_WRITE_WINS"
	StrategyFirstWriteWins ConflictStrategy = "FIRST_WRITE_WINS"
	StrategyMerge          ConflictStrategy = "MERGE"
	StrategyManual         ConflictStrategy = "MANUAL"
)

// Valid reports whether s is one of the known strategies.
func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyLastWriteWins, StrategyFirstWriteWins, StrategyMerge, StrategyManual:
		return true
	}
	return false
}

// Role represents a member's permission level within a workspace.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleGuest  Role = "GUEST"
)

const (
	// MaxOperationHistory bounds the per-workspace operation log.
	MaxOperationHistory = 1000
	// MaxChatHistory bounds the shared chat log.
	MaxChatHistory = 500
)

// Settings holds per-workspace behavior flags.
type Settings struct {
	IsPublic         bool             `json:"is_public"`
	AllowGuests      bool             `json:"allow_guests"`
	MaxUsers         int              `json:"max_users"`
	ConflictStrategy ConflictStrategy `json:"conflict_strategy"`
	AutoSave         bool             `json:"auto_save"`
}

// InviteToken grants a user access to a non-public workspace. Single use.
type InviteToken struct {
	Token     string     `json:"token"`
	Role      Role       `json:"role"`
	CreatedBy uuid.UUID  `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
}

// Workspace is the root shared-state aggregate for one collaborative context.
// All mutation happens under the registry's per-workspace lock.
type Workspace struct {
	ID           uuid.UUID                `json:"id"`
	Name         string                   `json:"name"`
	CreatorID    uuid.UUID                `json:"creator_id"`
	CreatedAt    time.Time                `json:"created_at"`
	LastActivity time.Time                `json:"last_activity"`
	Settings     Settings                 `json:"settings"`
	Members      map[uuid.UUID]*Presence  `json:"members"`
	Permissions  map[uuid.UUID]Role       `json:"permissions"`
	SharedState  SharedState              `json:"shared_state"`
	Operations   []Operation              `json:"operations"`
	InviteTokens map[string]*InviteToken  `json:"invite_tokens"`
	PendingOps   []Operation              `json:"pending_ops"`
	AppliedOps   map[uuid.UUID]struct{}   `json:"-"`
}

// NewWorkspace allocates a workspace with the creator as its single admin member.
func NewWorkspace(name string, creatorID uuid.UUID, settings Settings) *Workspace {
	now := time.Now()
	ws := &Workspace{
		ID:           uuid.New(),
		Name:         name,
		CreatorID:    creatorID,
		CreatedAt:    now,
		LastActivity: now,
		Settings:     settings,
		Members:      make(map[uuid.UUID]*Presence),
		Permissions:  make(map[uuid.UUID]Role),
		InviteTokens: make(map[string]*InviteToken),
		AppliedOps:   make(map[uuid.UUID]struct{}),
		SharedState:  NewSharedState(),
	}
	ws.Permissions[creatorID] = RoleAdmin
	// Creation is not a join: the creator has no session yet and stays
	// offline until their first join.
	creator := NewPresence(creatorID, RoleAdmin)
	creator.SetOffline()
	ws.Members[creatorID] = creator
	return ws
}

// Touch marks workspace activity.
func (w *Workspace) Touch() {
	w.LastActivity = time.Now()
}

// RecordOperation appends op to the bounded history and remembers its id for
// idempotent re-apply detection. The oldest entry is evicted past the cap.
func (w *Workspace) RecordOperation(op Operation) {
	if w.AppliedOps == nil {
		w.AppliedOps = make(map[uuid.UUID]struct{})
	}
	w.Operations = append(w.Operations, op)
	w.AppliedOps[op.ID] = struct{}{}
	if len(w.Operations) > MaxOperationHistory {
		evicted := w.Operations[0]
		delete(w.AppliedOps, evicted.ID)
		w.Operations = w.Operations[1:]
	}
}

// HasApplied reports whether an operation id has already mutated shared state.
func (w *Workspace) HasApplied(opID uuid.UUID) bool {
	_, ok := w.AppliedOps[opID]
	return ok
}

// RebuildAppliedIndex restores the applied-id set after loading a snapshot,
// since the index itself is not serialized.
func (w *Workspace) RebuildAppliedIndex() {
	w.AppliedOps = make(map[uuid.UUID]struct{}, len(w.Operations))
	for _, op := range w.Operations {
		w.AppliedOps[op.ID] = struct{}{}
	}
}

// OnlineMembers returns the user ids of members currently online.
func (w *Workspace) OnlineMembers() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(w.Members))
	for id, p := range w.Members {
		if p.Status == PresenceOnline {
			out = append(out, id)
		}
	}
	return out
}
