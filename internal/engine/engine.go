package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"collab-engine/internal/broadcast"
	"collab-engine/internal/conflict"
	"collab-engine/internal/domain"
	"collab-engine/internal/metrics"
	"collab-engine/internal/registry"
	"collab-engine/internal/response"
	"collab-engine/internal/session"
)

// OperationRequest is a caller's raw mutation request before stamping.
type OperationRequest struct {
	Type domain.OperationType `json:"type"`
	Data map[string]any       `json:"data"`
}

// ResultStatus describes how a submission ended.
type ResultStatus string

const (
	StatusApplied ResultStatus = "applied"
	StatusMerged  ResultStatus = "merged"
	StatusPending ResultStatus = "pending"
)

// OperationResult is returned to the caller of Submit.
type OperationResult struct {
	Operation domain.Operation       `json:"operation"`
	Status    ResultStatus           `json:"status"`
	Conflict  *domain.ConflictRecord `json:"conflict,omitempty"`
}

// Analytics aggregates engine-wide counts.
type Analytics struct {
	Workspaces        int   `json:"workspaces"`
	ActiveSessions    int   `json:"active_sessions"`
	OnlineUsers       int   `json:"online_users"`
	OperationsApplied int64 `json:"operations_applied"`
	ConflictsDetected int64 `json:"conflicts_detected"`
	ConflictsResolved int64 `json:"conflicts_resolved"`
	PendingManual     int64 `json:"pending_manual"`
}

// Engine is the orchestrating core: it validates sessions, resolves
// conflicts, dispatches type-specific appliers, records history, persists and
// broadcasts. Steps 3-7 of a submission run under the workspace lock.
type Engine struct {
	registry *registry.Registry
	sessions *session.Manager
	resolver *conflict.Resolver
	hub      *broadcast.Hub
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mergers map[string]conflict.MergeFunc

	auditMu     sync.Mutex
	conflictLog []domain.ConflictRecord

	opsApplied        atomic.Int64
	conflictsDetected atomic.Int64
	conflictsResolved atomic.Int64
}

func New(reg *registry.Registry, sessions *session.Manager, resolver *conflict.Resolver, hub *broadcast.Hub, m *metrics.Metrics, logger *zap.Logger) *Engine {
	e := &Engine{
		registry: reg,
		sessions: sessions,
		resolver: resolver,
		hub:      hub,
		metrics:  m,
		logger:   logger,
		mergers:  make(map[string]conflict.MergeFunc),
	}
	// Built-in shallow merges; richer resource types can override.
	e.RegisterMerger("document", conflict.ShallowMerge)
	e.RegisterMerger("project", conflict.ShallowMerge)
	return e
}

// RegisterMerger installs the merge function for one resource type.
func (e *Engine) RegisterMerger(resourceType string, fn conflict.MergeFunc) {
	e.mergers[resourceType] = fn
}

func resourceTypeOf(opType domain.OperationType) string {
	s := string(opType)
	if i := strings.Index(s, ":"); i >= 0 {
		return s[:i]
	}
	return s
}

// Submit runs the full pipeline for one operation. Rejected operations
// return an error and leave shared state untouched; queued operations return
// a pending result without mutating state.
func (e *Engine) Submit(ctx context.Context, sessionID uuid.UUID, req OperationRequest) (*OperationResult, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if !req.Type.Known() {
		return nil, response.NewAppError(response.ErrCodeUnknownOperation, "unknown operation type", string(req.Type))
	}

	var result *OperationResult
	err = e.registry.WithWorkspace(sess.WorkspaceID, func(ws *domain.Workspace) error {
		op := domain.Operation{
			ID:          uuid.New(),
			Type:        req.Type,
			Data:        domain.CloneData(req.Data),
			UserID:      sess.UserID,
			WorkspaceID: sess.WorkspaceID,
			SessionID:   sess.ID,
			Timestamp:   time.Now(),
		}
		ensureEntityID(&op)

		var record *domain.ConflictRecord
		detected := e.resolver.Detect(op, ws.Operations)
		decision := domain.Decision{Kind: domain.DecisionApply}
		if detected != nil {
			e.conflictsDetected.Add(1)
			e.metrics.ConflictsDetectedTotal.Inc()
			merger := e.mergers[resourceTypeOf(op.Type)]
			decision = e.resolver.Resolve(detected, op, ws.Settings.ConflictStrategy, merger)
			record = e.recordConflict(ws, op, detected, ws.Settings.ConflictStrategy)
		}

		switch decision.Kind {
		case domain.DecisionReject:
			e.metrics.OperationsRejectedTotal.Inc()
			return response.NewAppError(response.ErrCodeConflictRejected, decision.Reason, "")

		case domain.DecisionQueue:
			ws.PendingOps = append(ws.PendingOps, op)
			e.metrics.OperationsPendingTotal.Inc()
			ws.Touch()
			e.registry.Autosave(ctx, ws)
			e.hub.Publish(ws, broadcast.EventManualResolution, map[string]any{
				"operation": op,
			}, op.UserID)
			result = &OperationResult{Operation: op, Status: StatusPending, Conflict: record}
			return nil

		case domain.DecisionMerge:
			op.Data = decision.MergedData
		}

		if err := applyOperation(ws, op); err != nil {
			return err
		}
		ws.RecordOperation(op)
		ws.Touch()
		e.opsApplied.Add(1)
		e.metrics.OperationsAppliedTotal.WithLabelValues(string(op.Type)).Inc()

		e.registry.Autosave(ctx, ws)

		status := StatusApplied
		if decision.Kind == domain.DecisionMerge {
			status = StatusMerged
		}
		e.hub.Publish(ws, broadcast.EventOperationApplied, map[string]any{
			"operation": op,
			"status":    string(status),
		}, op.UserID)
		// Participants learn a merge happened, including the merge-strategy
		// fallback to last write wins.
		if detected != nil && ws.Settings.ConflictStrategy == domain.StrategyMerge {
			e.hub.Publish(ws, broadcast.EventConflictMerged, map[string]any{
				"operation_id": op.ID.String(),
				"conflict_id":  record.ID.String(),
			}, uuid.Nil)
		}

		result = &OperationResult{Operation: op, Status: status, Conflict: record}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.sessions.Touch(sessionID)
	return result, nil
}

// ResolveManual completes a queued manual-resolution operation with the final
// payload supplied by an admin.
func (e *Engine) ResolveManual(ctx context.Context, workspaceID, operationID, requesterID uuid.UUID, finalData map[string]any) (*OperationResult, error) {
	var result *OperationResult
	err := e.registry.WithWorkspace(workspaceID, func(ws *domain.Workspace) error {
		if ws.Permissions[requesterID] != domain.RoleAdmin {
			return response.NewAppError(response.ErrCodePermissionDenied, "only admins can resolve conflicts", "")
		}

		idx := -1
		for i, op := range ws.PendingOps {
			if op.ID == operationID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return response.NewAppError(response.ErrCodeNotFound, "pending operation not found", operationID.String())
		}

		op := ws.PendingOps[idx]
		ws.PendingOps = append(ws.PendingOps[:idx], ws.PendingOps[idx+1:]...)
		// Re-stamp at apply time. Detect scans history newest-first and stops
		// past the window; an entry carrying its queue-time stamp at the tail
		// would end the scan early and hide recent conflicts.
		op.Timestamp = time.Now()

		if finalData != nil {
			final := domain.CloneData(finalData)
			// The resource target survives the payload swap.
			for _, key := range entityIDFields {
				if v, ok := op.Data[key]; ok {
					if _, present := final[key]; !present {
						final[key] = v
					}
				}
			}
			op.Data = final
		}

		if err := applyOperation(ws, op); err != nil {
			return err
		}
		ws.RecordOperation(op)
		ws.Touch()
		e.opsApplied.Add(1)
		e.conflictsResolved.Add(1)
		e.metrics.OperationsAppliedTotal.WithLabelValues(string(op.Type)).Inc()
		e.metrics.ConflictsResolvedTotal.WithLabelValues(string(domain.StrategyManual)).Inc()
		e.registry.Autosave(ctx, ws)

		e.hub.Publish(ws, broadcast.EventOperationApplied, map[string]any{
			"operation": op,
			"status":    string(StatusApplied),
			"resolver":  requesterID.String(),
		}, uuid.Nil)

		result = &OperationResult{Operation: op, Status: StatusApplied}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordConflict appends one audit entry and bumps the resolved counters.
// Called under the workspace lock.
func (e *Engine) recordConflict(ws *domain.Workspace, op domain.Operation, c *domain.Conflict, strategy domain.ConflictStrategy) *domain.ConflictRecord {
	record := domain.ConflictRecord{
		ID:                     uuid.New(),
		WorkspaceID:            ws.ID,
		Operation:              op,
		ConflictingOperations:  c.Conflicting,
		ResolutionStrategyUsed: strategy,
		Timestamp:              time.Now(),
	}

	e.auditMu.Lock()
	e.conflictLog = append(e.conflictLog, record)
	e.auditMu.Unlock()

	// Manual conflicts count as resolved once the admin completes them.
	if strategy != domain.StrategyManual {
		e.conflictsResolved.Add(1)
		e.metrics.ConflictsResolvedTotal.WithLabelValues(string(strategy)).Inc()
	}
	return &record
}

// ConflictLog returns a copy of the audit log.
func (e *Engine) ConflictLog() []domain.ConflictRecord {
	e.auditMu.Lock()
	defer e.auditMu.Unlock()
	out := make([]domain.ConflictRecord, len(e.conflictLog))
	copy(out, e.conflictLog)
	return out
}

// SweepSessions expires idle sessions and reconciles presence. Run by the
// heartbeat job.
func (e *Engine) SweepSessions(ctx context.Context) {
	expired := e.sessions.Sweep(time.Now())
	if len(expired) > 0 {
		e.registry.HandleExpiredSessions(ctx, expired)
	}
	e.registry.ReconcilePresence(ctx)
}

// GetAnalytics returns engine-wide aggregate counts.
func (e *Engine) GetAnalytics() Analytics {
	return Analytics{
		Workspaces:        e.registry.Count(),
		ActiveSessions:    e.sessions.ActiveCount(),
		OnlineUsers:       e.registry.OnlineUserCount(),
		OperationsApplied: e.opsApplied.Load(),
		ConflictsDetected: e.conflictsDetected.Load(),
		ConflictsResolved: e.conflictsResolved.Load(),
		// Counted from live state: queued operations vanish with workspace
		// deletion and reappear after snapshot rehydration, so a process-local
		// counter would drift.
		PendingManual: int64(e.registry.PendingOpCount()),
	}
}

