package domain

import "time"

// Priority represents card priority level
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps free text to a Priority, defaulting to medium
func ParsePriority(p string) Priority {
	switch p {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Card is a sales lead on a funnel or a task on a production board.
// It belongs to exactly one stage at a time.
type Card struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	TenantID    string    `json:"tenant_id" gorm:"index:idx_tenant_board_card;not null"`
	BoardType   BoardType `json:"board_type" gorm:"index:idx_tenant_board_card;not null"`
	StageID     string    `json:"stage_id" gorm:"index;not null"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority" gorm:"default:medium"`
	Value       float64   `json:"value" gorm:"default:0"`            // Monetary value of the lead
	AssigneeID  string    `json:"assignee_id,omitempty" gorm:"index"` // Team member working the card
	Source      string    `json:"source,omitempty"`                   // Lead source tag (e.g. "website", "referral")
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CardHistory records a stage transition of a card
type CardHistory struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	TenantID    string    `json:"tenant_id" gorm:"index:idx_tenant_card_history;not null"`
	CardID      string    `json:"card_id" gorm:"index:idx_tenant_card_history;not null"`
	FromStageID string    `json:"from_stage_id"`
	ToStageID   string    `json:"to_stage_id"`
	ActorID     string    `json:"actor_id"`
	CreatedAt   time.Time `json:"created_at"`
}
