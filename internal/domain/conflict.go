package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conflict is a detected overlap between a candidate operation and recent
// same-resource operations from other users.
type Conflict struct {
	Candidate   Operation   `json:"candidate"`
	Conflicting []Operation `json:"conflicting"`
}

// ConflictRecord is the audit entry written whenever a conflict is settled.
// The record log is independent of the workspace operation history.
type ConflictRecord struct {
	ID                     uuid.UUID        `json:"id"`
	WorkspaceID            uuid.UUID        `json:"workspace_id"`
	Operation              Operation        `json:"operation"`
	ConflictingOperations  []Operation      `json:"conflicting_operations"`
	ResolutionStrategyUsed ConflictStrategy `json:"resolution_strategy_used"`
	Timestamp              time.Time        `json:"timestamp"`
}

// DecisionKind enumerates resolver outcomes.
type DecisionKind string

const (
	DecisionApply  DecisionKind = "APPLY"
	DecisionReject DecisionKind = "REJECT"
	DecisionMerge  DecisionKind = "MERGE"
	DecisionQueue  DecisionKind = "QUEUE"
)

// Decision is the resolver's verdict for one candidate operation.
type Decision struct {
	Kind       DecisionKind   `json:"kind"`
	Reason     string         `json:"reason,omitempty"`
	MergedData map[string]any `json:"merged_data,omitempty"`
}
