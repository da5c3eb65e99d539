package storage

import (
	"context"

	"github.com/google/uuid"

	"collab-engine/internal/domain"
)

// Store persists workspace snapshots. Implementations must tolerate a cold
// start: Load on an empty backend returns an empty map, not an error.
type Store interface {
	// Load returns every persisted workspace snapshot, keyed by id.
	Load(ctx context.Context) (map[uuid.UUID]*domain.Workspace, error)
	// Save writes one workspace snapshot, replacing any previous version.
	Save(ctx context.Context, ws *domain.Workspace) error
	// Delete removes a workspace snapshot. Deleting an absent id is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}
