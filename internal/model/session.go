package model

import "time"

// Timer modes. These are the wire values stored in focus_sessions.mode.
const (
	ModeFocus      = "focus"
	ModeShortBreak = "shortBreak"
	ModeLongBreak  = "longBreak"
)

// FocusSession is one completed countdown. Rows are immutable and are
// written exactly once, when a timer runs to zero.
type FocusSession struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ListID          *string   `json:"list_id"`
	DurationSeconds int       `json:"duration_seconds"`
	Mode            string    `json:"mode"`
	InsertedAt      time.Time `json:"inserted_at"`

	// ListName is populated by reads that join the session with its
	// list. Empty when the session has no list attribution.
	ListName string `json:"list_name,omitempty"`
}
