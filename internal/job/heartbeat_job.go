package job

import (
	"context"

	"go.uber.org/zap"

	"collab-engine/internal/engine"
)

// HeartbeatJob runs the periodic session sweep: idle sessions expire and
// presence for users with no live session flips to offline.
type HeartbeatJob struct {
	engine *engine.Engine
	logger *zap.Logger
}

func NewHeartbeatJob(eng *engine.Engine, logger *zap.Logger) *HeartbeatJob {
	return &HeartbeatJob{engine: eng, logger: logger}
}

// Run executes one sweep. Satisfies cron.Job.
func (j *HeartbeatJob) Run() {
	j.engine.SweepSessions(context.Background())
}
