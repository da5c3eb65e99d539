package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"collab-engine/internal/broadcast"
	"collab-engine/internal/domain"
)

type mockStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*domain.Workspace
	saveErr   error
}

func newMockStore() *mockStore {
	return &mockStore{snapshots: make(map[uuid.UUID]*domain.Workspace)}
}

func (s *mockStore) Load(_ context.Context) (map[uuid.UUID]*domain.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]*domain.Workspace, len(s.snapshots))
	for id, ws := range s.snapshots {
		out[id] = ws
	}
	return out, nil
}

func (s *mockStore) Save(_ context.Context, ws *domain.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshots[ws.ID] = ws
	return nil
}

func (s *mockStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
	return nil
}

func (s *mockStore) failSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

type mockChannel struct {
	mu     sync.Mutex
	byUser map[uuid.UUID][]broadcast.Event
}

func newMockChannel() *mockChannel {
	return &mockChannel{byUser: make(map[uuid.UUID][]broadcast.Event)}
}

func (c *mockChannel) Send(userID uuid.UUID, event broadcast.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser[userID] = append(c.byUser[userID], event)
	return nil
}

func (c *mockChannel) typesFor(userID uuid.UUID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []string
	for _, ev := range c.byUser[userID] {
		types = append(types, ev.Type)
	}
	return types
}
