package engine

import (
	"github.com/google/uuid"

	"collab-engine/internal/domain"
	"collab-engine/internal/response"
)

var entityIDFields = []string{"project_id", "document_id", "ai_session_id", "annotation_id"}

// ensureEntityID pre-generates the new entity's id for create operations so
// the id is known to conflict detection and returned to the caller.
func ensureEntityID(op *domain.Operation) {
	var field string
	switch op.Type {
	case domain.OpProjectCreate:
		field = "project_id"
	case domain.OpDocumentCreate:
		field = "document_id"
	case domain.OpAISessionStart:
		field = "ai_session_id"
	case domain.OpAnnotationAdd:
		field = "annotation_id"
	default:
		return
	}
	if v, ok := op.Data[field].(string); ok && v != "" {
		return
	}
	if op.Data == nil {
		op.Data = make(map[string]any)
	}
	op.Data[field] = uuid.NewString()
}

// applyOperation dispatches to the type-specific applier. Appliers mutate
// only shared state (cursor updates only the submitter's presence), and
// re-applying an already-applied operation id is a no-op.
func applyOperation(ws *domain.Workspace, op domain.Operation) error {
	if ws.HasApplied(op.ID) {
		return nil
	}

	switch op.Type {
	case domain.OpProjectCreate:
		return createEntity(ws.SharedState.Projects, op, "project_id")
	case domain.OpProjectUpdate:
		return updateEntity(ws.SharedState.Projects, op, "project_id", false)
	case domain.OpDocumentCreate:
		return createEntity(ws.SharedState.Documents, op, "document_id")
	case domain.OpDocumentEdit:
		return updateEntity(ws.SharedState.Documents, op, "document_id", true)
	case domain.OpAISessionStart:
		return createEntity(ws.SharedState.AISessions, op, "ai_session_id")
	case domain.OpAISessionUpdate:
		return updateEntity(ws.SharedState.AISessions, op, "ai_session_id", false)
	case domain.OpChatMessage:
		return applyChatMessage(ws, op)
	case domain.OpAnnotationAdd:
		return createEntity(ws.SharedState.Annotations, op, "annotation_id")
	case domain.OpCursorUpdate:
		return applyCursorUpdate(ws, op)
	default:
		return response.NewAppError(response.ErrCodeUnknownOperation, "unknown operation type", string(op.Type))
	}
}

func entityID(op domain.Operation, field string) (uuid.UUID, error) {
	raw, ok := op.Data[field].(string)
	if !ok || raw == "" {
		return uuid.Nil, response.NewAppError(response.ErrCodeValidation, "missing "+field, string(op.Type))
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, response.NewAppError(response.ErrCodeValidation, "invalid "+field, raw)
	}
	return id, nil
}

func createEntity(collection map[uuid.UUID]*domain.SharedEntity, op domain.Operation, field string) error {
	id, err := entityID(op, field)
	if err != nil {
		return err
	}
	version := 0
	if op.Type == domain.OpDocumentCreate {
		version = 1
	}
	// The entity keeps its own copy so later edits never reach back into the
	// recorded operation's payload.
	collection[id] = &domain.SharedEntity{
		ID:             id,
		Data:           domain.CloneData(op.Data),
		Version:        version,
		CreatedBy:      op.UserID,
		CreatedAt:      op.Timestamp,
		LastModifiedBy: op.UserID,
		LastModified:   op.Timestamp,
	}
	return nil
}

func updateEntity(collection map[uuid.UUID]*domain.SharedEntity, op domain.Operation, field string, bumpVersion bool) error {
	id, err := entityID(op, field)
	if err != nil {
		return err
	}
	entity, ok := collection[id]
	if !ok {
		return response.NewAppError(response.ErrCodeNotFound, "target entity not found", id.String())
	}
	if entity.Data == nil {
		entity.Data = make(map[string]any)
	}
	for k, v := range domain.CloneData(op.Data) {
		if k == field {
			continue
		}
		entity.Data[k] = v
	}
	if bumpVersion {
		entity.Version++
	}
	entity.LastModifiedBy = op.UserID
	entity.LastModified = op.Timestamp
	return nil
}

func applyChatMessage(ws *domain.Workspace, op domain.Operation) error {
	content, ok := op.Data["content"].(string)
	if !ok || content == "" {
		return response.NewAppError(response.ErrCodeValidation, "chat message requires content", "")
	}
	ws.SharedState.AppendChat(domain.ChatMessage{
		ID:        op.ID,
		UserID:    op.UserID,
		Content:   content,
		Timestamp: op.Timestamp,
	})
	return nil
}

func applyCursorUpdate(ws *domain.Workspace, op domain.Operation) error {
	presence, ok := ws.Members[op.UserID]
	if !ok {
		return response.NewAppError(response.ErrCodePermissionDenied, "not a member of this workspace", "")
	}

	cursor := &domain.Cursor{
		Position:  intField(op.Data, "position"),
		UpdatedAt: op.Timestamp,
	}
	if raw, ok := op.Data["document_id"].(string); ok {
		if docID, err := uuid.Parse(raw); err == nil {
			cursor.DocumentID = docID
			presence.ActiveDocument = &docID
		}
	}
	presence.Cursor = cursor
	return nil
}

// intField coerces a JSON-decoded numeric payload value.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
