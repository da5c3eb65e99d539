package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-engine/internal/broadcast"
	"collab-engine/internal/domain"
	"collab-engine/internal/metrics"
	"collab-engine/internal/response"
	"collab-engine/internal/session"
	"collab-engine/internal/storage"
)

const (
	defaultMaxUsers  = 50
	defaultInviteTTL = 24 * time.Hour
	snapshotChatSize = 50
)

// CreateOptions are the caller-tunable workspace settings. Zero values fall
// back to defaults (last-write-wins, autosave on, 50 users).
type CreateOptions struct {
	IsPublic         bool
	AllowGuests      bool
	MaxUsers         int
	ConflictStrategy domain.ConflictStrategy
	AutoSave         *bool
}

// JoinInfo carries optional context for a join attempt.
type JoinInfo struct {
	InviteToken    string
	ActiveDocument *uuid.UUID
}

// Registry owns every workspace aggregate and its in-memory lifecycle.
// All state inside a workspace is mutated under that workspace's lock;
// operations against different workspaces proceed in parallel.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[uuid.UUID]*domain.Workspace
	locks      map[uuid.UUID]*sync.Mutex

	store    storage.Store
	sessions *session.Manager
	hub      *broadcast.Hub
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func New(store storage.Store, sessions *session.Manager, hub *broadcast.Hub, m *metrics.Metrics, logger *zap.Logger) *Registry {
	return &Registry{
		workspaces: make(map[uuid.UUID]*domain.Workspace),
		locks:      make(map[uuid.UUID]*sync.Mutex),
		store:      store,
		sessions:   sessions,
		hub:        hub,
		metrics:    m,
		logger:     logger,
	}
}

// Init hydrates the registry from the persistence store. A cold start with no
// prior data yields an empty registry.
func (r *Registry) Init(ctx context.Context) error {
	loaded, err := r.store.Load(ctx)
	if err != nil {
		return response.NewAppError(response.ErrCodeStorageFailure, "failed to load workspaces", err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ws := range loaded {
		// Nobody is connected yet after a restart.
		for _, p := range ws.Members {
			p.SetOffline()
		}
		r.workspaces[id] = ws
		r.locks[id] = &sync.Mutex{}
	}
	r.metrics.WorkspacesTotal.Set(float64(len(r.workspaces)))
	r.logger.Info("registry initialized", zap.Int("workspaces", len(r.workspaces)))
	return nil
}

// WithWorkspace runs fn with the workspace's lock held. This is the single
// serialization point: everything that mutates a workspace goes through here.
func (r *Registry) WithWorkspace(id uuid.UUID, fn func(ws *domain.Workspace) error) error {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return response.NewAppError(response.ErrCodeNotFound, "workspace not found", id.String())
	}

	lock.Lock()
	defer lock.Unlock()

	// The workspace may have been deleted while waiting for the lock.
	r.mu.RLock()
	ws, ok := r.workspaces[id]
	r.mu.RUnlock()
	if !ok {
		return response.NewAppError(response.ErrCodeNotFound, "workspace not found", id.String())
	}
	return fn(ws)
}

// Create allocates a workspace with the creator granted admin and membership,
// and persists it unconditionally.
func (r *Registry) Create(ctx context.Context, name string, creatorID uuid.UUID, opts CreateOptions) (*domain.Workspace, error) {
	settings := domain.Settings{
		IsPublic:         opts.IsPublic,
		AllowGuests:      opts.AllowGuests,
		MaxUsers:         opts.MaxUsers,
		ConflictStrategy: opts.ConflictStrategy,
		AutoSave:         true,
	}
	if settings.MaxUsers <= 0 {
		settings.MaxUsers = defaultMaxUsers
	}
	if !settings.ConflictStrategy.Valid() {
		settings.ConflictStrategy = domain.StrategyLastWriteWins
	}
	if opts.AutoSave != nil {
		settings.AutoSave = *opts.AutoSave
	}

	ws := domain.NewWorkspace(name, creatorID, settings)

	r.mu.Lock()
	r.workspaces[ws.ID] = ws
	r.locks[ws.ID] = &sync.Mutex{}
	r.metrics.WorkspacesTotal.Set(float64(len(r.workspaces)))
	r.mu.Unlock()

	if err := r.store.Save(ctx, ws); err != nil {
		r.metrics.StorageFailuresTotal.Inc()
		return nil, response.NewAppError(response.ErrCodeStorageFailure, "failed to persist workspace", err.Error())
	}

	r.hub.Publish(ws, broadcast.EventWorkspaceCreated, map[string]any{
		"workspace_id": ws.ID.String(),
		"name":         ws.Name,
	}, uuid.Nil)

	r.logger.Info("workspace created",
		zap.String("workspace_id", ws.ID.String()),
		zap.String("creator_id", creatorID.String()))
	return ws, nil
}

// Join admits userID into the workspace, creating a session on success and
// notifying existing online members.
func (r *Registry) Join(ctx context.Context, workspaceID, userID uuid.UUID, info JoinInfo) (*domain.Session, error) {
	var created *domain.Session

	err := r.WithWorkspace(workspaceID, func(ws *domain.Workspace) error {
		_, alreadyMember := ws.Members[userID]
		if !alreadyMember && len(ws.Members) >= ws.Settings.MaxUsers {
			return response.NewAppError(response.ErrCodeCapacityExceeded, "workspace is full", "")
		}

		role, err := r.admissionRole(ws, userID, info.InviteToken)
		if err != nil {
			return err
		}

		ws.Permissions[userID] = role
		if p, ok := ws.Members[userID]; ok {
			p.SetOnline()
			p.Role = role
			p.ActiveDocument = info.ActiveDocument
		} else {
			p := domain.NewPresence(userID, role)
			p.ActiveDocument = info.ActiveDocument
			ws.Members[userID] = p
		}

		created = r.sessions.Create(userID, workspaceID)
		r.metrics.SessionsActive.Set(float64(r.sessions.ActiveCount()))
		ws.Touch()
		r.autosave(ctx, ws)

		r.hub.Publish(ws, broadcast.EventUserJoined, map[string]any{
			"user_id": userID.String(),
			"role":    string(role),
		}, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("user joined workspace",
		zap.String("workspace_id", workspaceID.String()),
		zap.String("user_id", userID.String()),
		zap.String("session_id", created.ID.String()))
	return created, nil
}

// admissionRole decides the role a joining user receives, or denies access.
// Called under the workspace lock.
func (r *Registry) admissionRole(ws *domain.Workspace, userID uuid.UUID, token string) (domain.Role, error) {
	if existing, ok := ws.Permissions[userID]; ok {
		return existing, nil
	}
	if token != "" {
		invite, ok := ws.InviteTokens[token]
		if ok && invite.UsedBy == nil && time.Now().Before(invite.ExpiresAt) {
			used := userID
			invite.UsedBy = &used
			return invite.Role, nil
		}
		return "", response.NewAppError(response.ErrCodePermissionDenied, "invalid or expired invite token", "")
	}
	if ws.Settings.IsPublic {
		return domain.RoleMember, nil
	}
	if ws.Settings.AllowGuests {
		return domain.RoleGuest, nil
	}
	return "", response.NewAppError(response.ErrCodePermissionDenied, "workspace is private", "")
}

// CreateInvite mints a single-use invite token. Admin only.
func (r *Registry) CreateInvite(ctx context.Context, workspaceID, requesterID uuid.UUID, role domain.Role, ttl time.Duration) (string, error) {
	if role != domain.RoleMember && role != domain.RoleGuest {
		role = domain.RoleMember
	}
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}

	var token string
	err := r.WithWorkspace(workspaceID, func(ws *domain.Workspace) error {
		if ws.Permissions[requesterID] != domain.RoleAdmin {
			return response.NewAppError(response.ErrCodePermissionDenied, "only admins can create invites", "")
		}
		token = uuid.NewString()
		ws.InviteTokens[token] = &domain.InviteToken{
			Token:     token,
			Role:      role,
			CreatedBy: requesterID,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(ttl),
		}
		ws.Touch()
		r.autosave(ctx, ws)
		return nil
	})
	return token, err
}

// Leave expires the session and transitions presence to offline, notifying
// remaining members.
func (r *Registry) Leave(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	r.sessions.Expire(sessionID)
	r.metrics.SessionsActive.Set(float64(r.sessions.ActiveCount()))

	return r.WithWorkspace(sess.WorkspaceID, func(ws *domain.Workspace) error {
		if p, ok := ws.Members[sess.UserID]; ok && !r.sessions.HasActiveSession(sess.UserID, sess.WorkspaceID) {
			p.SetOffline()
		}
		ws.Touch()
		r.autosave(ctx, ws)
		r.hub.Publish(ws, broadcast.EventUserLeft, map[string]any{
			"user_id": sess.UserID.String(),
		}, sess.UserID)
		return nil
	})
}

// Delete removes the workspace from memory and storage, expiring every
// session bound to it. Only admins or the original creator may delete.
func (r *Registry) Delete(ctx context.Context, workspaceID, requesterID uuid.UUID) error {
	err := r.WithWorkspace(workspaceID, func(ws *domain.Workspace) error {
		if ws.Permissions[requesterID] != domain.RoleAdmin && ws.CreatorID != requesterID {
			return response.NewAppError(response.ErrCodePermissionDenied, "only admins or the creator can delete a workspace", "")
		}

		r.hub.Publish(ws, broadcast.EventWorkspaceDeleted, map[string]any{
			"workspace_id": ws.ID.String(),
		}, uuid.Nil)

		expired := r.sessions.ExpireByWorkspace(workspaceID)
		r.metrics.SessionsActive.Set(float64(r.sessions.ActiveCount()))

		// Removing the entry while holding the workspace lock means no new
		// operation can be admitted against this id afterwards.
		r.mu.Lock()
		delete(r.workspaces, workspaceID)
		delete(r.locks, workspaceID)
		r.metrics.WorkspacesTotal.Set(float64(len(r.workspaces)))
		r.mu.Unlock()

		r.logger.Info("workspace deleted",
			zap.String("workspace_id", workspaceID.String()),
			zap.String("requester_id", requesterID.String()),
			zap.Int("sessions_expired", len(expired)))
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, workspaceID); err != nil {
		r.metrics.StorageFailuresTotal.Inc()
		r.logger.Error("failed to delete workspace snapshot", zap.Error(err),
			zap.String("workspace_id", workspaceID.String()))
	}
	return nil
}

// autosave persists the workspace when its autosave flag is set. Failures are
// logged and counted but never propagate: in-memory state is authoritative.
func (r *Registry) autosave(ctx context.Context, ws *domain.Workspace) {
	if !ws.Settings.AutoSave {
		return
	}
	if err := r.store.Save(ctx, ws); err != nil {
		r.metrics.StorageFailuresTotal.Inc()
		r.logger.Error("autosave failed", zap.Error(err),
			zap.String("workspace_id", ws.ID.String()))
	}
}

// Autosave persists ws if its autosave flag is set. Same failure policy as
// autosave from registry-level operations.
func (r *Registry) Autosave(ctx context.Context, ws *domain.Workspace) {
	r.autosave(ctx, ws)
}

// Persist force-saves one workspace regardless of its autosave flag.
func (r *Registry) Persist(ctx context.Context, ws *domain.Workspace) {
	if err := r.store.Save(ctx, ws); err != nil {
		r.metrics.StorageFailuresTotal.Inc()
		r.logger.Error("persist failed", zap.Error(err),
			zap.String("workspace_id", ws.ID.String()))
	}
}

// Flush saves every workspace. Called on shutdown.
func (r *Registry) Flush(ctx context.Context) {
	for _, id := range r.ids() {
		_ = r.WithWorkspace(id, func(ws *domain.Workspace) error {
			r.Persist(ctx, ws)
			return nil
		})
	}
}

func (r *Registry) ids() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.workspaces))
	for id := range r.workspaces {
		out = append(out, id)
	}
	return out
}

// Count returns the number of workspaces in memory.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}

// OnlineUserCount returns the number of distinct online users across all
// workspaces.
func (r *Registry) OnlineUserCount() int {
	seen := make(map[uuid.UUID]struct{})
	for _, id := range r.ids() {
		_ = r.WithWorkspace(id, func(ws *domain.Workspace) error {
			for _, userID := range ws.OnlineMembers() {
				seen[userID] = struct{}{}
			}
			return nil
		})
	}
	return len(seen)
}

// PendingOpCount returns the number of operations queued for manual
// resolution across all workspaces.
func (r *Registry) PendingOpCount() int {
	total := 0
	for _, id := range r.ids() {
		_ = r.WithWorkspace(id, func(ws *domain.Workspace) error {
			total += len(ws.PendingOps)
			return nil
		})
	}
	return total
}

// HandleExpiredSessions applies the presence side effects of session expiry:
// members whose sessions all expired go offline and peers are notified.
func (r *Registry) HandleExpiredSessions(ctx context.Context, expired []*domain.Session) {
	r.metrics.SessionsActive.Set(float64(r.sessions.ActiveCount()))
	for _, sess := range expired {
		sess := sess
		_ = r.WithWorkspace(sess.WorkspaceID, func(ws *domain.Workspace) error {
			p, ok := ws.Members[sess.UserID]
			if !ok || r.sessions.HasActiveSession(sess.UserID, sess.WorkspaceID) {
				return nil
			}
			if p.Status == domain.PresenceOnline {
				p.SetOffline()
				r.hub.Publish(ws, broadcast.EventUserDisconnected, map[string]any{
					"user_id": sess.UserID.String(),
				}, sess.UserID)
			}
			r.autosave(ctx, ws)
			return nil
		})
	}
}

// ReconcilePresence walks every workspace and flips presences still marked
// online without any active session. Catches transitions the expiry path
// missed (e.g. sessions dropped by workspace deletion racing a sweep).
func (r *Registry) ReconcilePresence(ctx context.Context) {
	for _, id := range r.ids() {
		_ = r.WithWorkspace(id, func(ws *domain.Workspace) error {
			for userID, p := range ws.Members {
				if p.Status != domain.PresenceOnline {
					continue
				}
				if r.sessions.HasActiveSession(userID, ws.ID) {
					continue
				}
				p.SetOffline()
				r.hub.Publish(ws, broadcast.EventUserStatusChanged, map[string]any{
					"user_id": userID.String(),
					"status":  string(domain.PresenceOffline),
				}, userID)
			}
			return nil
		})
	}
}
