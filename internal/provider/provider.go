// Package provider owns the signed-in user's app data: lists, profile,
// session history, and the derived dashboard stats. It refreshes them
// from the backend and re-derives everything on realtime change events.
package provider

import (
	"context"
	"log"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/stats"
)

// fetchTimeout is the maximum time allowed for a single refresh cycle.
const fetchTimeout = 30 * time.Second

// RefreshedMsg is a tea.Msg sent when a refresh cycle completes. Err is
// the first fetch error, nil when every read succeeded.
type RefreshedMsg struct {
	Err error
}

// SignedOutMsg is a tea.Msg sent when the session ends and the provider
// has dropped its state.
type SignedOutMsg struct{}

// Snapshot is a point-in-time copy of the provider's state, safe to
// render from the TUI goroutine.
type Snapshot struct {
	UserID   string
	Lists    []model.List
	Profile  *model.Profile
	Sessions []model.FocusSession
	Stats    model.AppStats
	Loading  bool
}

// Provider is the single writer of the app data state. Fetches run on
// background goroutines; completions are delivered on a channel the TUI
// consumes as Bubble Tea messages.
type Provider struct {
	client   backend.Client
	realtime backend.Realtime

	mu         gosync.Mutex
	userID     string
	lists      []model.List
	profile    *model.Profile
	sessions   []model.FocusSession
	stats      model.AppStats
	loading    bool
	refreshing bool
	pending    bool
	closed     bool

	resultCh chan tea.Msg
	cancels  []func()
}

// New creates a provider over the given backend client and realtime
// transport. No fetches start until a user signs in.
func New(client backend.Client, realtime backend.Realtime) *Provider {
	return &Provider{
		client:   client,
		realtime: realtime,
		resultCh: make(chan tea.Msg, 16),
	}
}

// HandleAuth reacts to an auth-state change: sign-in ensures the Inbox,
// starts realtime subscriptions, and kicks off the first refresh;
// sign-out drops all state.
func (p *Provider) HandleAuth(evt backend.AuthEvent) {
	switch evt.Type {
	case backend.AuthSignedIn:
		p.setUser(evt.UserID)
	case backend.AuthSignedOut:
		p.clear()
	}
}

// setUser starts a session for userID.
func (p *Provider) setUser(userID string) {
	p.mu.Lock()
	if p.closed || p.userID == userID {
		p.mu.Unlock()
		return
	}
	p.userID = userID
	p.loading = true
	p.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		if err := p.client.EnsureInbox(ctx, userID); err != nil {
			log.Printf("provider: ensuring inbox: %v", err)
		}
		p.Refresh()
	}()

	p.subscribe(backend.TableTodos)
	p.subscribe(backend.TableSessions)
}

// clear ends the session: cancels subscriptions, drops state, and emits
// SignedOutMsg.
func (p *Provider) clear() {
	p.mu.Lock()
	cancels := p.cancels
	p.cancels = nil
	p.userID = ""
	p.lists = nil
	p.profile = nil
	p.sessions = nil
	p.stats = model.AppStats{}
	p.loading = false
	p.pending = false
	closed := p.closed
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if !closed {
		p.send(SignedOutMsg{})
	}
}

// subscribe starts consuming change events for a table; every event
// triggers a refresh. The refresh coalescing in Refresh absorbs bursts.
func (p *Provider) subscribe(table string) {
	ch, cancel := p.realtime.Subscribe(table)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return
	}
	p.cancels = append(p.cancels, cancel)
	p.mu.Unlock()

	go func() {
		for range ch {
			p.Refresh()
		}
	}()
}

// Refresh fetches everything and recomputes stats. Calls made while a
// refresh is in flight coalesce into a single trailing refresh.
func (p *Provider) Refresh() {
	p.mu.Lock()
	if p.closed || p.userID == "" {
		p.mu.Unlock()
		return
	}
	if p.refreshing {
		p.pending = true
		p.mu.Unlock()
		return
	}
	p.refreshing = true
	userID := p.userID
	p.mu.Unlock()

	go p.fetch(userID)
}

// fetch performs the four concurrent reads, updates state, and runs the
// trailing refresh if one was requested meanwhile.
func (p *Provider) fetch(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	var (
		lists     []model.List
		profile   *model.Profile
		sessions  []model.FocusSession
		completed int

		listsErr, profileErr, sessionsErr, countErr error
	)

	var wg gosync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		lists, listsErr = p.client.ListMemberships(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		profile, profileErr = p.client.Profile(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		sessions, sessionsErr = p.client.Sessions(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		completed, countErr = p.client.CountCompletedTodos(ctx, userID)
	}()
	wg.Wait()

	var firstErr error
	for _, err := range []error{listsErr, profileErr, sessionsErr, countErr} {
		if err != nil {
			log.Printf("provider: refresh read failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	computed := stats.Compute(sessions, completed, time.Now())

	p.mu.Lock()
	if p.closed || p.userID != userID {
		// Session changed or torn down while we were fetching; drop it.
		p.refreshing = false
		p.pending = false
		p.mu.Unlock()
		return
	}
	// Partial failure keeps the previous value for the failed read.
	if listsErr == nil {
		p.lists = lists
	}
	if profileErr == nil {
		p.profile = profile
	}
	if sessionsErr == nil {
		p.sessions = sessions
		p.stats = computed
	}
	p.loading = false
	p.refreshing = false
	rerun := p.pending
	p.pending = false
	p.mu.Unlock()

	p.send(RefreshedMsg{Err: firstErr})

	if rerun {
		p.Refresh()
	}
}

// Snapshot returns a copy of the current state.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		UserID:  p.userID,
		Profile: p.profile,
		Stats:   p.stats,
		Loading: p.loading,
	}
	snap.Lists = make([]model.List, len(p.lists))
	copy(snap.Lists, p.lists)
	snap.Sessions = make([]model.FocusSession, len(p.sessions))
	copy(snap.Sessions, p.sessions)
	return snap
}

// Wait returns a tea.Cmd that delivers the next provider message. Call
// it again after each delivery to keep listening.
func (p *Provider) Wait() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return msg
	}
}

// Close cancels subscriptions and drops any in-flight results.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancels := p.cancels
	p.cancels = nil
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// send delivers a message without blocking; late results after Close
// are dropped. The channel is never closed so a late sender cannot
// panic; consumers stop when the program exits.
func (p *Provider) send(msg tea.Msg) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	select {
	case p.resultCh <- msg:
	default:
		// Drop if the consumer is behind.
	}
}
