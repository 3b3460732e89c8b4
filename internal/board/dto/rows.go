package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmboard/internal/board/domain"
)

// ErrInvalidRow is returned when a raw row cannot be mapped to a domain entity
var ErrInvalidRow = errors.New("invalid row")

// StageRow is the loosely-typed stage shape received from the backend
type StageRow struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	BoardType string     `json:"board_type"`
	Name      string     `json:"name"`
	Color     string     `json:"color"`
	Order     *int       `json:"order"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// CardRow is the loosely-typed card shape received from the backend
type CardRow struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	BoardType   string      `json:"board_type"`
	StageID     string      `json:"stage_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Priority    string      `json:"priority"`
	Value       json.Number `json:"value"`
	AssigneeID  string      `json:"assignee_id"`
	Source      string      `json:"source"`
	CreatedAt   *time.Time  `json:"created_at"`
	UpdatedAt   *time.Time  `json:"updated_at"`
}

// BoardRows is the payload of the board endpoint
type BoardRows struct {
	Stages []StageRow `json:"stages"`
	Cards  []CardRow  `json:"cards"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRow, fmt.Sprintf(format, args...))
}

// ToStage validates a raw row and maps it to a domain stage
func ToStage(row StageRow) (domain.Stage, error) {
	if strings.TrimSpace(row.ID) == "" {
		return domain.Stage{}, invalid("stage without id")
	}
	if row.TenantID == "" {
		return domain.Stage{}, invalid("stage %s without tenant", row.ID)
	}
	bt := domain.BoardType(row.BoardType)
	if !bt.Valid() {
		return domain.Stage{}, invalid("stage %s has board type %q", row.ID, row.BoardType)
	}
	if strings.TrimSpace(row.Name) == "" {
		return domain.Stage{}, invalid("stage %s without name", row.ID)
	}
	if row.Order == nil || *row.Order < 0 {
		return domain.Stage{}, invalid("stage %s without a valid order", row.ID)
	}
	stage := domain.Stage{
		ID:        row.ID,
		TenantID:  row.TenantID,
		BoardType: bt,
		Name:      row.Name,
		Color:     row.Color,
		Order:     *row.Order,
	}
	if row.CreatedAt != nil {
		stage.CreatedAt = *row.CreatedAt
	}
	if row.UpdatedAt != nil {
		stage.UpdatedAt = *row.UpdatedAt
	}
	return stage, nil
}

// ToCard validates a raw row and maps it to a domain card
func ToCard(row CardRow) (domain.Card, error) {
	if strings.TrimSpace(row.ID) == "" {
		return domain.Card{}, invalid("card without id")
	}
	if row.TenantID == "" {
		return domain.Card{}, invalid("card %s without tenant", row.ID)
	}
	bt := domain.BoardType(row.BoardType)
	if !bt.Valid() {
		return domain.Card{}, invalid("card %s has board type %q", row.ID, row.BoardType)
	}
	if row.StageID == "" {
		return domain.Card{}, invalid("card %s without stage", row.ID)
	}
	if strings.TrimSpace(row.Title) == "" {
		return domain.Card{}, invalid("card %s without title", row.ID)
	}
	var value float64
	if row.Value != "" {
		v, err := row.Value.Float64()
		if err != nil || v < 0 {
			return domain.Card{}, invalid("card %s has value %q", row.ID, row.Value)
		}
		value = v
	}
	card := domain.Card{
		ID:          row.ID,
		TenantID:    row.TenantID,
		BoardType:   bt,
		StageID:     row.StageID,
		Title:       row.Title,
		Description: row.Description,
		Priority:    domain.ParsePriority(row.Priority),
		Value:       value,
		AssigneeID:  row.AssigneeID,
		Source:      row.Source,
	}
	if row.CreatedAt != nil {
		card.CreatedAt = *row.CreatedAt
	}
	if row.UpdatedAt != nil {
		card.UpdatedAt = *row.UpdatedAt
	}
	return card, nil
}

// DecodeStage decodes and validates a raw JSON stage row
func DecodeStage(raw json.RawMessage) (domain.Stage, error) {
	var row StageRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.Stage{}, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	return ToStage(row)
}

// DecodeCard decodes and validates a raw JSON card row
func DecodeCard(raw json.RawMessage) (domain.Card, error) {
	var row CardRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.Card{}, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	return ToCard(row)
}

// RowID extracts the primary key of a raw row. Delete events may carry only the key.
func RowID(raw json.RawMessage) (string, error) {
	var row struct {
		ID string `json:"id"`
	}
	if len(raw) == 0 {
		return "", invalid("empty row")
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	if row.ID == "" {
		return "", invalid("row without id")
	}
	return row.ID, nil
}
