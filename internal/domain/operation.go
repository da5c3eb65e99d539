package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationType is a resource-action pair, e.g. "document:edit".
type OperationType string

const (
	OpProjectCreate   OperationType = "project:create"
	OpProjectUpdate   OperationType = "project:update"
	OpDocumentCreate  OperationType = "document:create"
	OpDocumentEdit    OperationType = "document:edit"
	OpAISessionStart  OperationType = "ai_session:start"
	OpAISessionUpdate OperationType = "ai_session:update"
	OpChatMessage     OperationType = "chat:message"
	OpAnnotationAdd   OperationType = "annotation:add"
	OpCursorUpdate    OperationType = "cursor:update"
)

// Known reports whether t is a recognized operation type.
func (t OperationType) Known() bool {
	switch t {
	case OpProjectCreate, OpProjectUpdate, OpDocumentCreate, OpDocumentEdit,
		OpAISessionStart, OpAISessionUpdate, OpChatMessage, OpAnnotationAdd, OpCursorUpdate:
		return true
	}
	return false
}

// Operation is an atomic, typed mutation request. Immutable once stamped.
type Operation struct {
	ID          uuid.UUID      `json:"id"`
	Type        OperationType  `json:"type"`
	Data        map[string]any `json:"data"`
	UserID      uuid.UUID      `json:"user_id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	SessionID   uuid.UUID      `json:"session_id"`
	Timestamp   time.Time      `json:"timestamp"`
}

// SharedEntity is one generically-typed item of workspace shared state
// (a project, document, AI session or annotation).
type SharedEntity struct {
	ID             uuid.UUID      `json:"id"`
	Data           map[string]any `json:"data"`
	Version        int            `json:"version,omitempty"`
	CreatedBy      uuid.UUID      `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	LastModifiedBy uuid.UUID      `json:"last_modified_by"`
	LastModified   time.Time      `json:"last_modified"`
}

// ChatMessage is one entry of the bounded shared chat log.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SharedState groups the typed sub-collections mutated by operations.
type SharedState struct {
	Projects    map[uuid.UUID]*SharedEntity `json:"projects"`
	Documents   map[uuid.UUID]*SharedEntity `json:"documents"`
	AISessions  map[uuid.UUID]*SharedEntity `json:"ai_sessions"`
	ChatHistory []ChatMessage               `json:"chat_history"`
	Annotations map[uuid.UUID]*SharedEntity `json:"annotations"`
}

// NewSharedState returns an empty shared state with all collections allocated.
func NewSharedState() SharedState {
	return SharedState{
		Projects:    make(map[uuid.UUID]*SharedEntity),
		Documents:   make(map[uuid.UUID]*SharedEntity),
		AISessions:  make(map[uuid.UUID]*SharedEntity),
		Annotations: make(map[uuid.UUID]*SharedEntity),
	}
}

// CloneData deep-copies an operation payload. Payloads end up on both the
// mutated entity and the recorded operation; copies keep recorded operations
// immutable once stamped.
func CloneData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// AppendChat appends to the chat log, evicting the oldest entry past the cap.
func (s *SharedState) AppendChat(msg ChatMessage) {
	s.ChatHistory = append(s.ChatHistory, msg)
	if len(s.ChatHistory) > MaxChatHistory {
		s.ChatHistory = s.ChatHistory[1:]
	}
}
