package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collab-engine/internal/domain"
)

// WorkspaceSnapshot is the persistence row for one workspace aggregate.
// The aggregate is stored whole as JSON; the engine never queries inside it.
type WorkspaceSnapshot struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (WorkspaceSnapshot) TableName() string {
	return "workspace_snapshots"
}

// GormStore persists snapshots in postgres, one row per workspace.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a postgres connection and migrates the snapshot table.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an existing gorm handle, used by tests.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&WorkspaceSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate snapshots: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context) (map[uuid.UUID]*domain.Workspace, error) {
	var rows []WorkspaceSnapshot
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	out := make(map[uuid.UUID]*domain.Workspace, len(rows))
	for _, row := range rows {
		var ws domain.Workspace
		if err := json.Unmarshal(row.Data, &ws); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", row.ID, err)
		}
		ws.RebuildAppliedIndex()
		out[row.ID] = &ws
	}
	return out, nil
}

func (s *GormStore) Save(ctx context.Context, ws *domain.Workspace) error {
	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	row := WorkspaceSnapshot{ID: ws.ID, Data: data}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Delete(&WorkspaceSnapshot{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
