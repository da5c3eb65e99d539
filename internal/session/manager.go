package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-engine/internal/domain"
	"collab-engine/internal/response"
)

// Manager owns session identity and heartbeat-driven liveness. Presence side
// effects of expiry (offline transitions, broadcasts) are handled by the
// registry, which consumes the sessions returned from Sweep.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	timeout  time.Duration
	logger   *zap.Logger
}

func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*domain.Session),
		timeout:  timeout,
		logger:   logger,
	}
}

// Create allocates a new active session binding userID to workspaceID.
func (m *Manager) Create(userID, workspaceID uuid.UUID) *domain.Session {
	now := time.Now()
	s := &domain.Session{
		ID:           uuid.New(),
		UserID:       userID,
		WorkspaceID:  workspaceID,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("workspace_id", workspaceID.String()))
	return s
}

// Get returns the session if it exists and is active, otherwise SESSION_INVALID.
func (m *Manager) Get(id uuid.UUID) (*domain.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || !s.IsActive {
		return nil, response.NewAppError(response.ErrCodeSessionInvalid, "session not found or expired", "")
	}
	copied := *s
	return &copied, nil
}

// Touch resets the session's liveness timestamp. Called on every successful
// operation submission and on websocket frames.
func (m *Manager) Touch(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.IsActive {
		s.LastActivity = time.Now()
	}
}

// Expire marks a session inactive and removes it. Idempotent: expiring an
// unknown or already-expired session is a no-op returning false.
func (m *Manager) Expire(id uuid.UUID) (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	s.IsActive = false
	delete(m.sessions, id)
	copied := *s
	return &copied, true
}

// ExpireByWorkspace expires every session bound to the workspace and returns them.
func (m *Manager) ExpireByWorkspace(workspaceID uuid.UUID) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*domain.Session
	for id, s := range m.sessions {
		if s.WorkspaceID == workspaceID {
			s.IsActive = false
			delete(m.sessions, id)
			copied := *s
			expired = append(expired, &copied)
		}
	}
	return expired
}

// Sweep expires every session idle longer than the timeout and returns them.
// Run periodically by the heartbeat job.
func (m *Manager) Sweep(now time.Time) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*domain.Session
	for id, s := range m.sessions {
		if s.Expired(now, m.timeout) {
			s.IsActive = false
			delete(m.sessions, id)
			copied := *s
			expired = append(expired, &copied)
		}
	}
	if len(expired) > 0 {
		m.logger.Info("sessions expired by sweep", zap.Int("count", len(expired)))
	}
	return expired
}

// HasActiveSession reports whether the user still holds any active session
// in the workspace.
func (m *Manager) HasActiveSession(userID, workspaceID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.IsActive && s.UserID == userID && s.WorkspaceID == workspaceID {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of active sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
