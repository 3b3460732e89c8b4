package dto

import "crmboard/internal/board/domain"

// StageInput is the request body for creating a stage.
// ID is optional; clients that insert optimistically send their own.
type StageInput struct {
	ID    string `json:"id"`
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
	Order *int   `json:"order"`
}

// StagePatch represents the stage fields that can be updated
type StagePatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// Apply copies the set fields onto stage
func (p StagePatch) Apply(stage *domain.Stage) {
	if p.Name != nil {
		stage.Name = *p.Name
	}
	if p.Color != nil {
		stage.Color = *p.Color
	}
	if p.Order != nil {
		stage.Order = *p.Order
	}
}

// Columns maps the set fields to their stage table columns
func (p StagePatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, 3)
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Color != nil {
		cols["color"] = *p.Color
	}
	if p.Order != nil {
		cols["display_order"] = *p.Order
	}
	return cols
}

// ReorderRequest maps stage ids to their new display order
type ReorderRequest struct {
	Orders map[string]int `json:"orders" binding:"required"`
}

// CardInput is the request body for creating a card
type CardInput struct {
	ID          string  `json:"id"`
	StageID     string  `json:"stage_id" binding:"required"`
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	Value       float64 `json:"value"`
	AssigneeID  string  `json:"assignee_id"`
	Source      string  `json:"source"`
}

// CardPatch represents the card fields that can be updated.
// Stage changes go through the move endpoint instead.
type CardPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	Source      *string  `json:"source,omitempty"`
}

// Apply copies the set fields onto card
func (p CardPatch) Apply(card *domain.Card) {
	if p.Title != nil {
		card.Title = *p.Title
	}
	if p.Description != nil {
		card.Description = *p.Description
	}
	if p.Priority != nil {
		card.Priority = domain.ParsePriority(*p.Priority)
	}
	if p.Value != nil {
		card.Value = *p.Value
	}
	if p.AssigneeID != nil {
		card.AssigneeID = *p.AssigneeID
	}
	if p.Source != nil {
		card.Source = *p.Source
	}
}

// Columns maps the set fields to their card table columns. stage_id is never included.
func (p CardPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, 6)
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.Priority != nil {
		cols["priority"] = domain.ParsePriority(*p.Priority)
	}
	if p.Value != nil {
		cols["value"] = *p.Value
	}
	if p.AssigneeID != nil {
		cols["assignee_id"] = *p.AssigneeID
	}
	if p.Source != nil {
		cols["source"] = *p.Source
	}
	return cols
}

// Empty reports whether no field is set
func (p CardPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.Value == nil && p.AssigneeID == nil && p.Source == nil
}

// MoveRequest is the request body for moving a card to another stage
type MoveRequest struct {
	ToStageID string `json:"to_stage_id" binding:"required"`
}

// SnapshotRequest is the request body for saving a board snapshot
type SnapshotRequest struct {
	Columns domain.Columns `json:"columns"`
}

// BoardResponse is the payload of the board endpoint: stages by order and cards by creation time
type BoardResponse struct {
	Stages []*domain.Stage `json:"stages"`
	Cards  []*domain.Card  `json:"cards"`
}

// CardSearchResult is a card with its search relevance
type CardSearchResult struct {
	Card  *domain.Card `json:"card"`
	Score float64      `json:"score"`
}
