package domain

import "time"

// BoardType separates the sales funnel from the production task board of a tenant
type BoardType string

const (
	BoardFunnel     BoardType = "funnel"
	BoardProduction BoardType = "production"
)

// Valid reports whether t is one of the known board types
func (t BoardType) Valid() bool {
	return t == BoardFunnel || t == BoardProduction
}

// Stage is an ordered column of a board (funnel step or task lane)
type Stage struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"index:idx_tenant_board_stage;not null"`
	BoardType BoardType `json:"board_type" gorm:"index:idx_tenant_board_stage;not null"`
	Name      string    `json:"name" gorm:"not null"`
	Color     string    `json:"color" gorm:"default:''"`
	Order     int       `json:"order" gorm:"column:display_order;not null;default:0"` // Display order
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Column is a stage together with the cards currently placed in it
type Column struct {
	Stage Stage  `json:"stage"`
	Cards []Card `json:"cards"`
}
