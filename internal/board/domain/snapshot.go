package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Columns is the serialized board arrangement stored in a snapshot row
type Columns []Column

// Value implements driver.Valuer
func (c Columns) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (c *Columns) Scan(value interface{}) error {
	if value == nil {
		*c = Columns{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported snapshot data type %T", value)
	}
	if len(bytes) == 0 {
		*c = Columns{}
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// SnapshotKey scopes a persisted board arrangement
type SnapshotKey struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	BoardType BoardType `json:"board_type"`
}

// Snapshot is a wholesale copy of a board, one row per (user, tenant, board type)
type Snapshot struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"uniqueIndex:idx_snapshot_key;not null"`
	TenantID  string    `json:"tenant_id" gorm:"uniqueIndex:idx_snapshot_key;not null"`
	BoardType BoardType `json:"board_type" gorm:"uniqueIndex:idx_snapshot_key;not null"`
	Columns   Columns   `json:"columns" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}

// Key returns the scoping key of the snapshot
func (s *Snapshot) Key() SnapshotKey {
	return SnapshotKey{UserID: s.UserID, TenantID: s.TenantID, BoardType: s.BoardType}
}
