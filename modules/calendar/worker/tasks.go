package worker

import (
	"encoding/json"
	"fmt"

	"calendar-sync/modules/calendar/dto"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeEntityChanged = "calendar:entity_changed"
	TypeOwnerResync   = "calendar:owner_resync"
	TypeReconcile     = "calendar:reconcile"
)

type EntityChangedPayload struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
}

func (p EntityChangedPayload) Ref() dto.EntityRef {
	return dto.EntityRef{Type: p.EntityType, ID: p.EntityID, OwnerID: p.OwnerID}
}

type OwnerResyncPayload struct {
	OwnerID uuid.UUID `json:"owner_id"`
}

type ReconcilePayload struct {
	Limit int `json:"limit"`
}

func NewEntityChangedTask(ref dto.EntityRef, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(EntityChangedPayload{EntityType: ref.Type, EntityID: ref.ID, OwnerID: ref.OwnerID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEntityChanged, payload, opts...), nil
}

func NewOwnerResyncTask(ownerID uuid.UUID, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(OwnerResyncPayload{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOwnerResync, payload, opts...), nil
}

func NewReconcileTask(limit int, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcile, payload, opts...), nil
}

// decode rejects malformed payloads without retrying them.
func decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
