// Package store persists local app state in a SQLite database.
package store

import (
	"context"
	"errors"
)

// ErrNoState is returned when no value exists for a state key.
var ErrNoState = errors.New("no state for key")

// Well-known state keys.
const (
	KeyTimerState  = "timer_state"
	KeyActiveView  = "active_view"
	KeySelectedLst = "selected_list_id"
)

// Store is the local state persistence contract. Values are opaque
// strings; callers serialize structured state as JSON.
type Store interface {
	SetState(ctx context.Context, key, value string) error
	State(ctx context.Context, key string) (string, error)
	DeleteState(ctx context.Context, key string) error
	Close() error
}
