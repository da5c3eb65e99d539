package conflict

import (
	"fmt"
	"strings"
	"time"

	"collab-engine/internal/domain"
)

// MergeFunc combines the payloads of conflicting operations with the
// candidate's payload into a single merged payload.
type MergeFunc func(conflicting []domain.Operation, candidate domain.Operation) map[string]any

// Resolver decides whether a candidate operation conflicts with recent
// history and how the workspace's strategy settles it. Pure: no state beyond
// the detection window.
type Resolver struct {
	window time.Duration
}

func NewResolver(window time.Duration) *Resolver {
	return &Resolver{window: window}
}

// ResourceKey derives the (type, id) pair an operation targets.
// Entity operations target the id named in their payload; chat messages and
// cursor updates only ever touch the submitter's own state, so they map to a
// user-scoped resource and never collide across users.
func ResourceKey(op domain.Operation) string {
	resourceType := string(op.Type)
	if i := strings.Index(resourceType, ":"); i >= 0 {
		resourceType = resourceType[:i]
	}

	switch op.Type {
	case domain.OpChatMessage, domain.OpCursorUpdate:
		return fmt.Sprintf("%s/%s", resourceType, op.UserID)
	}

	for _, field := range []string{"project_id", "document_id", "ai_session_id", "annotation_id"} {
		if v, ok := op.Data[field].(string); ok && v != "" {
			return fmt.Sprintf("%s/%s", resourceType, v)
		}
	}
	// Creates of fresh entities carry their pre-generated id in the payload;
	// falling back to the operation id means no two operations ever share it.
	return fmt.Sprintf("%s/%s", resourceType, op.ID)
}

// Detect returns the conflict between candidate and recentHistory, or nil.
// A conflict exists when any prior operation targets the same resource, comes
// from a different user, and falls within the window preceding the candidate.
func (r *Resolver) Detect(candidate domain.Operation, recentHistory []domain.Operation) *domain.Conflict {
	if len(recentHistory) == 0 {
		return nil
	}

	key := ResourceKey(candidate)
	var conflicting []domain.Operation
	for i := len(recentHistory) - 1; i >= 0; i-- {
		prev := recentHistory[i]
		age := candidate.Timestamp.Sub(prev.Timestamp)
		if age > r.window {
			break
		}
		if age < 0 {
			continue
		}
		if prev.UserID == candidate.UserID {
			continue
		}
		if ResourceKey(prev) == key {
			conflicting = append(conflicting, prev)
		}
	}

	if len(conflicting) == 0 {
		return nil
	}
	return &domain.Conflict{Candidate: candidate, Conflicting: conflicting}
}

// Resolve settles a detected conflict under the given strategy. The merger is
// the type-specific merge function for the candidate's resource type; when the
// strategy is MERGE and no merger exists, the decision falls back to apply
// (last write wins) while the conflict is still recorded by the caller.
func (r *Resolver) Resolve(c *domain.Conflict, candidate domain.Operation, strategy domain.ConflictStrategy, merger MergeFunc) domain.Decision {
	switch strategy {
	case domain.StrategyFirstWriteWins:
		return domain.Decision{Kind: domain.DecisionReject, Reason: "concurrent modification"}
	case domain.StrategyMerge:
		if merger == nil {
			return domain.Decision{Kind: domain.DecisionApply, Reason: "no merge function, falling back to last write wins"}
		}
		return domain.Decision{Kind: domain.DecisionMerge, MergedData: merger(c.Conflicting, candidate)}
	case domain.StrategyManual:
		return domain.Decision{Kind: domain.DecisionQueue, Reason: "manual resolution required"}
	default:
		return domain.Decision{Kind: domain.DecisionApply}
	}
}

// ShallowMerge is the built-in merger: conflicting payloads oldest first, then
// the candidate's payload, later keys overriding earlier ones.
func ShallowMerge(conflicting []domain.Operation, candidate domain.Operation) map[string]any {
	merged := make(map[string]any)
	for i := len(conflicting) - 1; i >= 0; i-- {
		for k, v := range conflicting[i].Data {
			merged[k] = v
		}
	}
	for k, v := range candidate.Data {
		merged[k] = v
	}
	return merged
}
