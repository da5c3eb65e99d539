package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"collab-engine/internal/broadcast"
	"collab-engine/internal/domain"
)

// mockStore records snapshot traffic in memory and can be told to fail.
type mockStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*domain.Workspace
	saveCalls int
	loadErr   error
	saveErr   error
	deleteErr error
}

func newMockStore() *mockStore {
	return &mockStore{snapshots: make(map[uuid.UUID]*domain.Workspace)}
}

func (s *mockStore) Load(_ context.Context) (map[uuid.UUID]*domain.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[uuid.UUID]*domain.Workspace, len(s.snapshots))
	for id, ws := range s.snapshots {
		out[id] = ws
	}
	return out, nil
}

func (s *mockStore) Save(_ context.Context, ws *domain.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshots[ws.ID] = ws
	return nil
}

func (s *mockStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.snapshots, id)
	return nil
}

func (s *mockStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

func (s *mockStore) has(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snapshots[id]
	return ok
}

// mockChannel captures delivered events per recipient.
type mockChannel struct {
	mu      sync.Mutex
	byUser  map[uuid.UUID][]broadcast.Event
	sendErr error
}

func newMockChannel() *mockChannel {
	return &mockChannel{byUser: make(map[uuid.UUID][]broadcast.Event)}
}

func (c *mockChannel) Send(userID uuid.UUID, event broadcast.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.byUser[userID] = append(c.byUser[userID], event)
	return nil
}

func (c *mockChannel) eventsFor(userID uuid.UUID) []broadcast.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broadcast.Event(nil), c.byUser[userID]...)
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
