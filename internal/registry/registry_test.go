package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collab-engine/internal/broadcast"
	"collab-engine/internal/domain"
	"collab-engine/internal/metrics"
	"collab-engine/internal/response"
	"collab-engine/internal/session"
)

type testEnv struct {
	reg      *Registry
	store    *mockStore
	channel  *mockChannel
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := newMockStore()
	channel := newMockChannel()
	sessions := session.NewManager(30*time.Minute, logger)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	hub := broadcast.NewHub(channel, logger)
	return &testEnv{
		reg:      New(store, sessions, hub, m, logger),
		store:    store,
		channel:  channel,
		sessions: sessions,
	}
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *response.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestCreate_CreatorIsAdminMember(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()

	ws, err := env.reg.Create(context.Background(), "design review", creatorID, CreateOptions{})
	require.NoError(t, err)

	assert.Len(t, ws.Members, 1)
	assert.Equal(t, domain.RoleAdmin, ws.Permissions[creatorID])
	assert.Equal(t, domain.StrategyLastWriteWins, ws.Settings.ConflictStrategy)
	assert.Equal(t, 50, ws.Settings.MaxUsers)
	assert.True(t, ws.Settings.AutoSave)

	// Creation persists unconditionally.
	assert.True(t, env.store.has(ws.ID))
	assert.Equal(t, 1, env.reg.Count())
}

func TestCreate_CreatorOfflineUntilJoin(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()

	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{})
	require.NoError(t, err)

	// No session exists yet, so creation alone puts nobody online.
	assert.Equal(t, domain.PresenceOffline, ws.Members[creatorID].Status)
	assert.Equal(t, 0, env.reg.OnlineUserCount())

	_, err = env.reg.Join(context.Background(), ws.ID, creatorID, JoinInfo{})
	require.NoError(t, err)

	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Equal(t, domain.PresenceOnline, ws.Members[creatorID].Status)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.reg.OnlineUserCount())
}

func TestCreate_InvalidStrategyFallsBack(t *testing.T) {
	env := newTestEnv(t)

	ws, err := env.reg.Create(context.Background(), "w", uuid.New(), CreateOptions{
		ConflictStrategy: domain.ConflictStrategy("VOODOO"),
		MaxUsers:         -3,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyLastWriteWins, ws.Settings.ConflictStrategy)
	assert.Equal(t, 50, ws.Settings.MaxUsers)
}

func TestCreate_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.saveErr = errors.New("disk full")

	_, err := env.reg.Create(context.Background(), "w", uuid.New(), CreateOptions{})
	require.Error(t, err)
	assert.Equal(t, response.ErrCodeStorageFailure, appErrCode(t, err))
}

func TestJoin_PublicWorkspace(t *testing.T) {
	env := newTestEnv(t)
	creatorID, joinerID := uuid.New(), uuid.New()

	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	_, err = env.reg.Join(context.Background(), ws.ID, creatorID, JoinInfo{})
	require.NoError(t, err)

	sess, err := env.reg.Join(context.Background(), ws.ID, joinerID, JoinInfo{})
	require.NoError(t, err)
	assert.Equal(t, joinerID, sess.UserID)
	assert.Equal(t, ws.ID, sess.WorkspaceID)

	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Equal(t, domain.RoleMember, ws.Permissions[joinerID])
		assert.Equal(t, domain.PresenceOnline, ws.Members[joinerID].Status)
		return nil
	})
	require.NoError(t, err)

	// The creator hears about the join, the joiner does not.
	assert.Contains(t, env.channel.typesFor(creatorID), broadcast.EventUserJoined)
	assert.NotContains(t, env.channel.typesFor(joinerID), broadcast.EventUserJoined)
}

func TestJoin_PrivateWorkspaceDenied(t *testing.T) {
	env := newTestEnv(t)
	ws, err := env.reg.Create(context.Background(), "w", uuid.New(), CreateOptions{})
	require.NoError(t, err)

	_, err = env.reg.Join(context.Background(), ws.ID, uuid.New(), JoinInfo{})
	require.Error(t, err)
	assert.Equal(t, response.ErrCodePermissionDenied, appErrCode(t, err))
}

func TestJoin_GuestAdmission(t *testing.T) {
	env := newTestEnv(t)
	guestID := uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", uuid.New(), CreateOptions{AllowGuests: true})
	require.NoError(t, err)

	_, err = env.reg.Join(context.Background(), ws.ID, guestID, JoinInfo{})
	require.NoError(t, err)

	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Equal(t, domain.RoleGuest, ws.Permissions[guestID])
		return nil
	})
	require.NoError(t, err)
}

func TestJoin_CapacityExceeded(t *testing.T) {
	env := newTestEnv(t)
	ws, err := env.reg.Create(context.Background(), "w", uuid.New(), CreateOptions{
		IsPublic: true,
		MaxUsers: 2,
	})
	require.NoError(t, err)

	_, err = env.reg.Join(context.Background(), ws.ID, uuid.New(), JoinInfo{})
	require.NoError(t, err)

	_, err = env.reg.Join(context.Background(), ws.ID, uuid.New(), JoinInfo{})
	require.Error(t, err)
	assert.Equal(t, response.ErrCodeCapacityExceeded, appErrCode(t, err))

	// The failed join changed nothing.
	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Len(t, ws.Members, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestJoin_ExistingMemberBypassesCapacity(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{
		IsPublic: true,
		MaxUsers: 2,
	})
	require.NoError(t, err)

	_, err = env.reg.Join(context.Background(), ws.ID, uuid.New(), JoinInfo{})
	require.NoError(t, err)

	// Full now, but the creator reconnecting is still admitted.
	_, err = env.reg.Join(context.Background(), ws.ID, creatorID, JoinInfo{})
	assert.NoError(t, err)
}

func TestJoin_UnknownWorkspace(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reg.Join(context.Background(), uuid.New(), uuid.New(), JoinInfo{})
	require.Error(t, err)
	assert.Equal(t, response.ErrCodeNotFound, appErrCode(t, err))
}

func TestInvite_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{})
	require.NoError(t, err)

	token, err := env.reg.CreateInvite(context.Background(), ws.ID, creatorID, domain.RoleMember, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	first := uuid.New()
	_, err = env.reg.Join(context.Background(), ws.ID, first, JoinInfo{InviteToken: token})
	require.NoError(t, err)

	_, err = env.reg.Join(context.Background(), ws.ID, uuid.New(), JoinInfo{InviteToken: token})
	require.Error(t, err)
	assert.Equal(t, response.ErrCodePermissionDenied, appErrCode(t, err))
}

func TestInvite_NonAdminDenied(t *testing.T) {
	env := newTestEnv(t)
	memberID := uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", uuid.New(), CreateOptions{IsPublic: true})
	require.NoError(t, err)
	_, err = env.reg.Join(context.Background(), ws.ID, memberID, JoinInfo{})
	require.NoError(t, err)

	_, err = env.reg.CreateInvite(context.Background(), ws.ID, memberID, domain.RoleMember, time.Hour)
	require.Error(t, err)
	assert.Equal(t, response.ErrCodePermissionDenied, appErrCode(t, err))
}

func TestLeave_GoesOfflineAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	creatorID, memberID := uuid.New(), uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	_, err = env.reg.Join(context.Background(), ws.ID, creatorID, JoinInfo{})
	require.NoError(t, err)
	sess, err := env.reg.Join(context.Background(), ws.ID, memberID, JoinInfo{})
	require.NoError(t, err)

	require.NoError(t, env.reg.Leave(context.Background(), sess.ID))

	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Equal(t, domain.PresenceOffline, ws.Members[memberID].Status)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, env.channel.typesFor(creatorID), broadcast.EventUserLeft)

	_, err = env.sessions.Get(sess.ID)
	assert.Error(t, err)
}

func TestLeave_SecondSessionKeepsUserOnline(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{})
	require.NoError(t, err)

	first, err := env.reg.Join(context.Background(), ws.ID, creatorID, JoinInfo{})
	require.NoError(t, err)
	_, err = env.reg.Join(context.Background(), ws.ID, creatorID, JoinInfo{})
	require.NoError(t, err)

	require.NoError(t, env.reg.Leave(context.Background(), first.ID))

	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Equal(t, domain.PresenceOnline, ws.Members[creatorID].Status)
		return nil
	})
	require.NoError(t, err)
}

func TestDelete_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	creatorID, memberID := uuid.New(), uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	sess, err := env.reg.Join(context.Background(), ws.ID, memberID, JoinInfo{})
	require.NoError(t, err)

	err = env.reg.Delete(context.Background(), ws.ID, memberID)
	require.Error(t, err)
	assert.Equal(t, response.ErrCodePermissionDenied, appErrCode(t, err))

	require.NoError(t, env.reg.Delete(context.Background(), ws.ID, creatorID))
	assert.Equal(t, 0, env.reg.Count())
	assert.False(t, env.store.has(ws.ID))

	// Sessions bound to the workspace died with it.
	_, err = env.sessions.Get(sess.ID)
	assert.Error(t, err)

	err = env.reg.WithWorkspace(ws.ID, func(*domain.Workspace) error { return nil })
	assert.Equal(t, response.ErrCodeNotFound, appErrCode(t, err))
}

func TestSnapshot_PermissionFiltered(t *testing.T) {
	env := newTestEnv(t)
	creatorID, memberID := uuid.New(), uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	_, err = env.reg.Join(context.Background(), ws.ID, memberID, JoinInfo{})
	require.NoError(t, err)

	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		ws.PendingOps = append(ws.PendingOps, domain.Operation{ID: uuid.New(), Type: domain.OpDocumentEdit})
		return nil
	})
	require.NoError(t, err)

	adminView, err := env.reg.Snapshot(ws.ID, creatorID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, adminView.Role)
	assert.Len(t, adminView.PendingOps, 1)
	assert.Len(t, adminView.Members, 2)

	memberView, err := env.reg.Snapshot(ws.ID, memberID)
	require.NoError(t, err)
	assert.Empty(t, memberView.PendingOps)

	_, err = env.reg.Snapshot(ws.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, response.ErrCodePermissionDenied, appErrCode(t, err))
}

func TestInit_RehydratesWithEveryoneOffline(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{})
	require.NoError(t, err)

	fresh := newTestEnv(t)
	fresh.store.snapshots[ws.ID] = ws
	require.NoError(t, fresh.reg.Init(context.Background()))

	assert.Equal(t, 1, fresh.reg.Count())
	err = fresh.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Equal(t, domain.PresenceOffline, ws.Members[creatorID].Status)
		return nil
	})
	require.NoError(t, err)
}

func TestAutosave_DisabledSkipsStore(t *testing.T) {
	env := newTestEnv(t)
	off := false
	ws, err := env.reg.Create(context.Background(), "w", uuid.New(), CreateOptions{AutoSave: &off})
	require.NoError(t, err)

	saves := env.store.saveCount()
	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		env.reg.Autosave(context.Background(), ws)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, saves, env.store.saveCount())

	// Flush ignores the autosave flag.
	env.reg.Flush(context.Background())
	assert.Equal(t, saves+1, env.store.saveCount())
}

func TestHandleExpiredSessions_OfflineAndNotify(t *testing.T) {
	env := newTestEnv(t)
	creatorID, memberID := uuid.New(), uuid.New()
	ws, err := env.reg.Create(context.Background(), "w", creatorID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	_, err = env.reg.Join(context.Background(), ws.ID, creatorID, JoinInfo{})
	require.NoError(t, err)
	sess, err := env.reg.Join(context.Background(), ws.ID, memberID, JoinInfo{})
	require.NoError(t, err)

	expired, ok := env.sessions.Expire(sess.ID)
	require.True(t, ok)
	env.reg.HandleExpiredSessions(context.Background(), []*domain.Session{expired})

	err = env.reg.WithWorkspace(ws.ID, func(ws *domain.Workspace) error {
		assert.Equal(t, domain.PresenceOffline, ws.Members[memberID].Status)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, env.channel.typesFor(creatorID), broadcast.EventUserDisconnected)
}

func TestOnlineUserCount(t *testing.T) {
	env := newTestEnv(t)
	creatorID := uuid.New()
	wsA, err := env.reg.Create(context.Background(), "a", creatorID, CreateOptions{IsPublic: true})
	require.NoError(t, err)
	wsB, err := env.reg.Create(context.Background(), "b", creatorID, CreateOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, env.reg.OnlineUserCount())

	// Same user online in two workspaces counts once.
	_, err = env.reg.Join(context.Background(), wsA.ID, creatorID, JoinInfo{})
	require.NoError(t, err)
	_, err = env.reg.Join(context.Background(), wsB.ID, creatorID, JoinInfo{})
	require.NoError(t, err)
	assert.Equal(t, 1, env.reg.OnlineUserCount())

	_, err = env.reg.Join(context.Background(), wsA.ID, uuid.New(), JoinInfo{})
	require.NoError(t, err)
	assert.Equal(t, 2, env.reg.OnlineUserCount())
}
