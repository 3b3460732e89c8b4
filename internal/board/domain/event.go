package domain

import (
	"encoding/json"
	"time"
)

// Table names exposed on the realtime feed
const (
	TableStages = "stages"
	TableCards  = "cards"
)

// EventType is the kind of row change carried by a ChangeEvent
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is a row-level change notification.
// New is empty for deletes, Old is empty for inserts.
type ChangeEvent struct {
	Table           string          `json:"table"`
	Type            EventType       `json:"type"`
	TenantID        string          `json:"tenant_id"`
	BoardType       BoardType       `json:"board_type"`
	New             json.RawMessage `json:"new,omitempty"`
	Old             json.RawMessage `json:"old,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// NewChangeEvent builds an event, marshalling the row images
func NewChangeEvent(table string, typ EventType, tenantID string, boardType BoardType, newRow, oldRow interface{}) (ChangeEvent, error) {
	ev := ChangeEvent{
		Table:           table,
		Type:            typ,
		TenantID:        tenantID,
		BoardType:       boardType,
		CommitTimestamp: time.Now().UTC(),
	}
	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.New = b
	}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.Old = b
	}
	return ev, nil
}
