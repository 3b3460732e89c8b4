// Package realtime fans board change events out to websocket subscribers.
package realtime

import (
	"errors"
	"fmt"
	"strings"

	"crmboard/internal/board/domain"
)

var ErrInvalidFilter = errors.New("invalid filter")

// Filter selects the events a subscriber receives.
// The textual form is a comma separated list of column=eq.value clauses,
// e.g. "tenant_id=eq.acme" or "tenant_id=eq.acme,board_type=eq.funnel".
type Filter struct {
	TenantID  string
	BoardType domain.BoardType
}

// ParseFilter parses the textual filter. A tenant clause is mandatory.
func ParseFilter(s string) (Filter, error) {
	var f Filter
	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		col, rest, ok := strings.Cut(clause, "=")
		if !ok {
			return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, clause)
		}
		value, ok := strings.CutPrefix(rest, "eq.")
		if !ok || value == "" {
			return Filter{}, fmt.Errorf("%w: only eq is supported in %q", ErrInvalidFilter, clause)
		}
		switch col {
		case "tenant_id":
			f.TenantID = value
		case "board_type":
			bt := domain.BoardType(value)
			if !bt.Valid() {
				return Filter{}, fmt.Errorf("%w: unknown board type %q", ErrInvalidFilter, value)
			}
			f.BoardType = bt
		default:
			return Filter{}, fmt.Errorf("%w: unknown column %q", ErrInvalidFilter, col)
		}
	}
	if f.TenantID == "" {
		return Filter{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidFilter)
	}
	return f, nil
}

// String renders the filter back to its textual form
func (f Filter) String() string {
	s := "tenant_id=eq." + f.TenantID
	if f.BoardType != "" {
		s += ",board_type=eq." + string(f.BoardType)
	}
	return s
}

// Match reports whether ev passes the filter
func (f Filter) Match(ev domain.ChangeEvent) bool {
	if ev.TenantID != f.TenantID {
		return false
	}
	return f.BoardType == "" || ev.BoardType == f.BoardType
}

// ValidTable reports whether table is published on the feed
func ValidTable(table string) bool {
	return table == domain.TableStages || table == domain.TableCards
}
