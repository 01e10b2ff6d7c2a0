// Package focus implements the shared countdown timer. One timer exists
// per running process; every view renders the same state.
package focus

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/store"
)

// Fixed mode durations.
const (
	FocusDuration      = 25 * time.Minute
	ShortBreakDuration = 5 * time.Minute
	LongBreakDuration  = 15 * time.Minute
)

// ModeDuration returns the full countdown length for a timer mode.
func ModeDuration(mode string) time.Duration {
	switch mode {
	case model.ModeShortBreak:
		return ShortBreakDuration
	case model.ModeLongBreak:
		return LongBreakDuration
	default:
		return FocusDuration
	}
}

// State is the timer's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Paused
)

// persistedState is the JSON record written to the local state store on
// every transition. A running timer carries its deadline so time elapsed
// while the process was down can be deducted on rehydration.
type persistedState struct {
	Mode     string     `json:"mode"`
	State    string     `json:"state"`
	LeftSec  int        `json:"time_left_seconds"`
	Deadline *time.Time `json:"deadline,omitempty"`
	ListID   *string    `json:"list_id,omitempty"`
	ListName string     `json:"list_name,omitempty"`
}

// Timer is the countdown state machine. It is owned by the TUI event
// loop and must not be shared across goroutines; completion results are
// returned from Tick for the caller to dispatch.
type Timer struct {
	store store.Store

	mode     string
	state    State
	timeLeft time.Duration
	deadline time.Time

	userID   string
	listID   *string
	listName string
}

// NewTimer creates an idle focus-mode timer backed by the given store.
func NewTimer(st store.Store) *Timer {
	return &Timer{
		store:    st,
		mode:     model.ModeFocus,
		state:    Idle,
		timeLeft: FocusDuration,
	}
}

// Mode returns the current timer mode.
func (t *Timer) Mode() string { return t.mode }

// State returns the current lifecycle state.
func (t *Timer) State() State { return t.state }

// TimeLeft returns the remaining countdown time.
func (t *Timer) TimeLeft() time.Duration { return t.timeLeft }

// ListName returns the name of the list the timer is attributed to.
func (t *Timer) ListName() string { return t.listName }

// SetUser sets the user completed sessions are attributed to.
func (t *Timer) SetUser(id string) { t.userID = id }

// SetCurrentList sets session attribution. It does not disturb a
// running countdown.
func (t *Timer) SetCurrentList(id *string, name string) {
	t.listID = id
	t.listName = name
	t.persist()
}

// Toggle starts an idle timer, pauses a running one, and resumes a
// paused one.
func (t *Timer) Toggle(now time.Time) {
	switch t.state {
	case Idle, Paused:
		t.state = Running
		t.deadline = now.Add(t.timeLeft)
	case Running:
		t.timeLeft = t.deadline.Sub(now)
		if t.timeLeft < 0 {
			t.timeLeft = 0
		}
		t.state = Paused
	}
	t.persist()
}

// Reset forces Idle at the mode's full duration. No session is written.
func (t *Timer) Reset() {
	t.state = Idle
	t.timeLeft = ModeDuration(t.mode)
	t.persist()
}

// SetMode switches modes, discarding any progress: the timer lands Idle
// at the new mode's full duration.
func (t *Timer) SetMode(mode string) {
	t.mode = mode
	t.state = Idle
	t.timeLeft = ModeDuration(mode)
	t.persist()
}

// CycleMode advances focus → shortBreak → longBreak → focus.
func (t *Timer) CycleMode() {
	switch t.mode {
	case model.ModeFocus:
		t.SetMode(model.ModeShortBreak)
	case model.ModeShortBreak:
		t.SetMode(model.ModeLongBreak)
	default:
		t.SetMode(model.ModeFocus)
	}
}

// Tick advances a running countdown. When the deadline is reached it
// resets the timer to Idle at the mode's full duration and returns the
// completed session, exactly once, carrying the FULL configured mode
// duration regardless of pauses. Ticks in any other state are no-ops.
func (t *Timer) Tick(now time.Time) *model.FocusSession {
	if t.state != Running {
		return nil
	}

	t.timeLeft = t.deadline.Sub(now)
	if t.timeLeft > 0 {
		return nil
	}

	duration := ModeDuration(t.mode)
	session := &model.FocusSession{
		ID:              uuid.New().String(),
		UserID:          t.userID,
		ListID:          t.listID,
		DurationSeconds: int(duration.Seconds()),
		Mode:            t.mode,
		InsertedAt:      now.UTC(),
		ListName:        t.listName,
	}

	t.state = Idle
	t.timeLeft = duration
	t.persist()

	return session
}

// Load rehydrates persisted timer state. A timer that was running when
// the process stopped comes back Paused with the wall time that elapsed
// in between deducted; a deadline already passed lands Idle at the full
// duration. The timer never rehydrates running.
func (t *Timer) Load(ctx context.Context, now time.Time) error {
	raw, err := t.store.State(ctx, store.KeyTimerState)
	if err == store.ErrNoState {
		return nil
	}
	if err != nil {
		return err
	}

	var ps persistedState
	if err := json.Unmarshal([]byte(raw), &ps); err != nil {
		// Corrupt state is not worth failing startup over.
		log.Printf("focus: dropping unreadable timer state: %v", err)
		return t.store.DeleteState(ctx, store.KeyTimerState)
	}

	if ps.Mode != "" {
		t.mode = ps.Mode
	}
	t.listID = ps.ListID
	t.listName = ps.ListName
	t.timeLeft = time.Duration(ps.LeftSec) * time.Second

	switch ps.State {
	case "running":
		remaining := time.Duration(0)
		if ps.Deadline != nil {
			remaining = ps.Deadline.Sub(now)
		}
		if remaining <= 0 {
			t.state = Idle
			t.timeLeft = ModeDuration(t.mode)
		} else {
			t.state = Paused
			t.timeLeft = remaining
		}
	case "paused":
		t.state = Paused
		if t.timeLeft <= 0 {
			t.state = Idle
			t.timeLeft = ModeDuration(t.mode)
		}
	default:
		t.state = Idle
		if t.timeLeft <= 0 {
			t.timeLeft = ModeDuration(t.mode)
		}
	}

	t.persist()
	return nil
}

// persist writes the current state to the local store. Failures are
// logged; the state machine never rolls back on a write error.
func (t *Timer) persist() {
	ps := persistedState{
		Mode:     t.mode,
		LeftSec:  int(t.timeLeft.Seconds()),
		ListID:   t.listID,
		ListName: t.listName,
	}
	switch t.state {
	case Running:
		ps.State = "running"
		deadline := t.deadline
		ps.Deadline = &deadline
	case Paused:
		ps.State = "paused"
	default:
		ps.State = "idle"
	}

	data, err := json.Marshal(ps)
	if err != nil {
		log.Printf("focus: marshaling timer state: %v", err)
		return
	}
	if err := t.store.SetState(context.Background(), store.KeyTimerState, string(data)); err != nil {
		log.Printf("focus: persisting timer state: %v", err)
	}
}
