package kanban

import (
	"context"
	"errors"
	"sync"
)

// ErrDragInProgress is returned when a drag starts while another is active
var ErrDragInProgress = errors.New("a drag is already in progress")

// Mover is the part of the store the drag adapter drives
type Mover interface {
	MoveCard(ctx context.Context, cardID, fromStageID, toStageID string) error
}

// DragState describes the active gesture
type DragState struct {
	Active        bool
	CardID        string
	SourceStageID string
	OverStageID   string
}

// DragAdapter translates pointer gestures into a single MoveCard call.
// Only one gesture is tracked at a time.
type DragAdapter struct {
	mover Mover

	mu    sync.Mutex
	state DragState
}

// NewDragAdapter creates an adapter driving mover
func NewDragAdapter(mover Mover) *DragAdapter {
	return &DragAdapter{mover: mover}
}

// Start captures a drag of cardID out of sourceStageID
func (d *DragAdapter) Start(cardID, sourceStageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Active {
		return ErrDragInProgress
	}
	d.state = DragState{Active: true, CardID: cardID, SourceStageID: sourceStageID}
	return nil
}

// Enter marks stageID as the highlighted drop target
func (d *DragAdapter) Enter(stageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Active {
		d.state.OverStageID = stageID
	}
}

// Leave clears the highlight if the pointer leaves the highlighted stage
func (d *DragAdapter) Leave(stageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Active && d.state.OverStageID == stageID {
		d.state.OverStageID = ""
	}
}

// Highlighted returns the stage currently under the pointer, if any
func (d *DragAdapter) Highlighted() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.OverStageID, d.state.OverStageID != ""
}

// State returns a copy of the gesture state
func (d *DragAdapter) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Drop ends the gesture over targetStageID. The move is issued only when the
// target is set and differs from the source. It reports whether a move was attempted.
func (d *DragAdapter) Drop(ctx context.Context, targetStageID string) (bool, error) {
	d.mu.Lock()
	st := d.state
	d.state = DragState{}
	d.mu.Unlock()

	if !st.Active || targetStageID == "" || targetStageID == st.SourceStageID {
		return false, nil
	}
	return true, d.mover.MoveCard(ctx, st.CardID, st.SourceStageID, targetStageID)
}

// Cancel abandons the gesture without moving anything
func (d *DragAdapter) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = DragState{}
}
