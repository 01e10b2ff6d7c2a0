package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/focus"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/notify"
	"github.com/studyhall-dev/studyhall/internal/provider"
	"github.com/studyhall-dev/studyhall/internal/store"
	"github.com/studyhall-dev/studyhall/internal/theme"
	"github.com/studyhall-dev/studyhall/internal/ui"
	"github.com/studyhall-dev/studyhall/internal/ui/dashboard"
	helpview "github.com/studyhall-dev/studyhall/internal/ui/help"
	loginview "github.com/studyhall-dev/studyhall/internal/ui/login"
	settingsview "github.com/studyhall-dev/studyhall/internal/ui/settings"
	studyhallview "github.com/studyhall-dev/studyhall/internal/ui/studyhall"
	"github.com/studyhall-dev/studyhall/internal/ui/todolist"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewDashboard
	ViewTodos
	ViewStudyHall
	ViewSettings
	ViewHelp
)

// timerTickMsg drives the 1s countdown while the timer runs.
type timerTickMsg struct{}

// sessionWrittenMsg reports the outcome of a completed-session write.
type sessionWrittenMsg struct {
	err error
}

// authEventMsg wraps an auth-state change for the Bubble Tea runtime.
type authEventMsg struct {
	event backend.AuthEvent
}

// sessionLoadedMsg reports the startup session rehydration attempt.
type sessionLoadedMsg struct {
	err error
}

const writeTimeout = 30 * time.Second

// Model is the root Bubble Tea model that manages view routing, the
// shared timer, and the data provider.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *KeyMap

	auth     *backend.Auth
	client   backend.Client
	provider *provider.Provider
	timer    *focus.Timer
	notifier *notify.Notifier
	store    store.Store

	cfg        *model.AppConfig
	configPath string

	loginView     loginview.Model
	dashboardView dashboard.Model
	todosView     todolist.Model
	studyHallView studyhallview.Model
	settingsView  settingsview.Model
	helpView      helpview.Model

	ready     bool
	ticking   bool
	statusMsg string
	statusErr bool
}

// New creates the root application model.
func New(
	auth *backend.Auth,
	client backend.Client,
	p *provider.Provider,
	timer *focus.Timer,
	notifier *notify.Notifier,
	st store.Store,
	cfg *model.AppConfig,
	configPath string,
) Model {
	keys := DefaultKeyMap()

	return Model{
		currentView:   ViewLogin,
		keys:          keys,
		auth:          auth,
		client:        client,
		provider:      p,
		timer:         timer,
		notifier:      notifier,
		store:         st,
		cfg:           cfg,
		configPath:    configPath,
		loginView:     loginview.New(auth, 80, 24),
		dashboardView: dashboard.New(80, 24),
		todosView:     todolist.New(client, keys, 80, 24),
		studyHallView: studyhallview.New(client, 80, 24),
		settingsView:  settingsview.New(client, 80, 24),
		helpView:      helpview.New(keys, 80, 24),
	}
}

// Init rehydrates the persisted session and starts the event pumps.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loginView.Init(),
		m.loadSession(),
		m.waitForAuthEvent(),
		m.provider.Wait(),
	)
}

// loadSession rehydrates the keyring session off the UI goroutine. A
// valid session surfaces as an auth event; failure just means the login
// gate stays up.
func (m Model) loadSession() tea.Cmd {
	auth := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return sessionLoadedMsg{err: auth.LoadSession(ctx)}
	}
}

// waitForAuthEvent delivers the next auth-state change as a tea.Msg.
func (m Model) waitForAuthEvent() tea.Cmd {
	events := m.auth.Events()
	return func() tea.Msg {
		evt, ok := <-events
		if !ok {
			return nil
		}
		return authEventMsg{event: evt}
	}
}

// tickCmd schedules the next countdown tick.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return timerTickMsg{}
	})
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.loginView.SetSize(msg.Width, msg.Height)
		m.dashboardView.SetSize(contentWidth, contentHeight)
		m.todosView.SetSize(contentWidth, contentHeight)
		m.studyHallView.SetSize(contentWidth, contentHeight)
		m.settingsView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		// Forward to the active view so huh forms can calculate layout.
		return m.updateActiveView(msg)

	case sessionLoadedMsg:
		if msg.err != nil {
			log.Printf("app: loading stored session: %v", msg.err)
		}
		return m, nil

	case authEventMsg:
		return m.handleAuthEvent(msg.event)

	case provider.RefreshedMsg:
		return m.handleRefreshed(msg)

	case provider.SignedOutMsg:
		m.currentView = ViewLogin
		m.timer.SetUser("")
		m.timer.SetCurrentList(nil, "")
		m.clearState(store.KeySelectedLst)
		m.clearState(store.KeyActiveView)
		m.setStatus("Signed out", false)
		return m, tea.Batch(m.loginView.Init(), m.provider.Wait())

	case timerTickMsg:
		return m.handleTimerTick()

	case sessionWrittenMsg:
		if msg.err != nil {
			log.Printf("app: writing focus session: %v", msg.err)
			m.setStatus("Could not save your session; it will not appear in stats", true)
			return m, nil
		}
		m.provider.Refresh()
		if m.currentView == ViewStudyHall {
			return m, m.studyHallView.Reload()
		}
		return m, nil

	case loginview.SignUpPendingMsg:
		m.setStatus("Account created. Confirm your email, then sign in.", false)
		return m, nil

	case todolist.ListSelectedMsg:
		listID := msg.List.ID
		m.timer.SetCurrentList(&listID, msg.List.Name)
		m.persistState(store.KeySelectedLst, listID)
		m.setStatus(fmt.Sprintf("Timer attributed to %q", msg.List.Name), false)
		return m, nil

	case todolist.StatusMsg:
		m.setStatus(msg.Text, msg.IsErr)
		return m, nil

	case settingsview.NotificationsChangedMsg:
		m.notifier.SetEnabled(msg.Enabled)
		m.cfg.Display.Notifications = msg.Enabled
		return m, m.saveConfig()

	case settingsview.SignOutRequestedMsg:
		return m, m.signOut()

	case tea.KeyMsg:
		if model, cmd, handled := m.handleGlobalKeys(msg); handled {
			return model, cmd
		}
		return m.updateActiveView(msg)
	}

	return m.updateActiveView(msg)
}

// handleAuthEvent reacts to sign-in/sign-out and token refreshes.
func (m Model) handleAuthEvent(evt backend.AuthEvent) (tea.Model, tea.Cmd) {
	m.provider.HandleAuth(evt)

	switch evt.Type {
	case backend.AuthSignedIn:
		m.timer.SetUser(evt.UserID)
		m.todosView.SetUser(evt.UserID)
		m.studyHallView.SetUser(evt.UserID)
		if m.currentView == ViewLogin {
			m.currentView = ViewDashboard
			m.restoreViewState()
		}
		return m, tea.Batch(m.waitForAuthEvent(), m.studyHallView.Init())
	}

	return m, m.waitForAuthEvent()
}

// handleRefreshed fans a fresh provider snapshot out to the views.
func (m Model) handleRefreshed(msg provider.RefreshedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setStatus("Some data could not be refreshed", true)
	}

	snap := m.provider.Snapshot()
	m.dashboardView.SetData(snap.Stats, snap.Loading)
	cmds := []tea.Cmd{m.provider.Wait()}
	if cmd := m.todosView.SetLists(snap.Lists); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if m.currentView == ViewStudyHall {
		cmds = append(cmds, m.studyHallView.Reload())
	}
	return m, tea.Batch(cmds...)
}

// handleTimerTick advances the countdown and dispatches the completed
// session write when the timer runs out.
func (m Model) handleTimerTick() (tea.Model, tea.Cmd) {
	session := m.timer.Tick(time.Now())
	if session != nil {
		m.ticking = false
		if session.Mode == model.ModeFocus {
			m.setStatus("Focus session complete!", false)
		} else {
			m.setStatus("Break over", false)
		}
		return m, m.writeSession(*session)
	}

	if m.timer.State() == focus.Running {
		return m, tickCmd()
	}
	m.ticking = false
	return m, nil
}

// writeSession persists a completed session and fires the desktop
// notification. The timer state has already moved on; failures only
// surface as a transient status.
func (m Model) writeSession(session model.FocusSession) tea.Cmd {
	client := m.client
	notifier := m.notifier
	return func() tea.Msg {
		if err := notifier.SendTimerComplete(session.Mode, session.ListName); err != nil {
			log.Printf("app: sending notification: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return sessionWrittenMsg{err: client.CreateSession(ctx, session)}
	}
}

// saveConfig persists the current preferences off the UI goroutine.
func (m Model) saveConfig() tea.Cmd {
	cfg := *m.cfg
	path := m.configPath
	return func() tea.Msg {
		if err := model.SaveConfig(path, &cfg); err != nil {
			log.Printf("app: saving config: %v", err)
		}
		return nil
	}
}

// persistState best-effort writes a UI state key to the local store.
func (m Model) persistState(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.store.SetState(ctx, key, value); err != nil {
		log.Printf("app: persisting %s: %v", key, err)
	}
}

// clearState best-effort removes a UI state key from the local store.
func (m Model) clearState(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.store.DeleteState(ctx, key); err != nil {
		log.Printf("app: clearing %s: %v", key, err)
	}
}

// restoreViewState reopens the view and list selection of the previous
// run. Transient views (settings, help) are never restored.
func (m *Model) restoreViewState() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if name, err := m.store.State(ctx, store.KeyActiveView); err == nil {
		switch name {
		case "todos":
			m.currentView = ViewTodos
		case "studyhall":
			m.currentView = ViewStudyHall
		case "dashboard":
			m.currentView = ViewDashboard
		}
	} else if !errors.Is(err, store.ErrNoState) {
		log.Printf("app: reading %s: %v", store.KeyActiveView, err)
	}

	if id, err := m.store.State(ctx, store.KeySelectedLst); err == nil {
		m.todosView.SelectListID(id)
	} else if !errors.Is(err, store.ErrNoState) {
		log.Printf("app: reading %s: %v", store.KeySelectedLst, err)
	}
}

// signOut ends the session off the UI goroutine; the resulting auth
// event drives the view change.
func (m Model) signOut() tea.Cmd {
	auth := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := auth.SignOut(ctx); err != nil {
			log.Printf("app: signing out: %v", err)
		}
		return nil
	}
}

// handleGlobalKeys processes keys that work from every signed-in view.
// Views that own text input get everything passed through.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if m.currentView == ViewLogin {
		if msg.String() == "ctrl+c" {
			return m, m.quit(), true
		}
		return m, nil, false
	}

	// Settings is a single always-active form; only esc and ctrl+c are
	// handled globally there.
	if m.currentView == ViewSettings {
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit(), true
		case "esc":
			m.currentView = ViewDashboard
			return m, nil, true
		}
		return m, nil, false
	}

	if m.currentView == ViewTodos && m.todosView.InputActive() {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit(), true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
		} else {
			m.previousView = m.currentView
			m.currentView = ViewHelp
		}
		return m, nil, true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		return m, nil, false

	case key.Matches(msg, m.keys.ViewDashboard):
		m.currentView = ViewDashboard
		m.persistState(store.KeyActiveView, "dashboard")
		return m, nil, true

	case key.Matches(msg, m.keys.ViewTodos):
		m.currentView = ViewTodos
		m.persistState(store.KeyActiveView, "todos")
		return m, m.todosView.Reload(), true

	case key.Matches(msg, m.keys.ViewStudyHall):
		m.currentView = ViewStudyHall
		m.persistState(store.KeyActiveView, "studyhall")
		return m, m.studyHallView.Reload(), true

	case key.Matches(msg, m.keys.ViewSettings):
		m.currentView = ViewSettings
		snap := m.provider.Snapshot()
		return m, m.settingsView.SetProfile(
			snap.UserID, snap.Profile, m.notifier.IsEnabled(),
		), true

	case key.Matches(msg, m.keys.Refresh):
		m.provider.Refresh()
		m.setStatus("Refreshing…", false)
		return m, nil, true

	case key.Matches(msg, m.keys.TimerToggle):
		m.timer.Toggle(time.Now())
		if m.timer.State() == focus.Running && !m.ticking {
			m.ticking = true
			return m, tickCmd(), true
		}
		return m, nil, true

	case key.Matches(msg, m.keys.TimerReset):
		m.timer.Reset()
		return m, nil, true

	case key.Matches(msg, m.keys.TimerMode):
		m.timer.CycleMode()
		return m, nil, true
	}

	return m, nil, false
}

func (m Model) quit() tea.Cmd {
	m.provider.Close()
	return tea.Quit
}

// updateActiveView forwards a message to the current view's model.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewDashboard:
		m.dashboardView, cmd = m.dashboardView.Update(msg)
	case ViewTodos:
		m.todosView, cmd = m.todosView.Update(msg)
	case ViewStudyHall:
		m.studyHallView, cmd = m.studyHallView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}
	return m, cmd
}

func (m *Model) setStatus(text string, isErr bool) {
	m.statusMsg = text
	m.statusErr = isErr
}

// View renders the full terminal frame.
func (m Model) View() string {
	if !m.ready {
		return "Initializing…"
	}

	if m.currentView == ViewLogin {
		return m.loginView.View()
	}

	var content string
	switch m.currentView {
	case ViewDashboard:
		content = m.dashboardView.View()
	case ViewTodos:
		content = m.todosView.View()
	case ViewStudyHall:
		content = m.studyHallView.View()
	case ViewSettings:
		content = m.settingsView.View()
	case ViewHelp:
		content = m.helpView.View()
	}

	header := m.layout.RenderHeader("Study Hall", m.identity())
	statusBar := m.layout.RenderStatusBar(m.statusLine())

	return m.layout.RenderWithFrame(header, m.timerStrip(), content, statusBar)
}

// identity returns the header's right-hand label.
func (m Model) identity() string {
	snap := m.provider.Snapshot()
	if snap.Profile != nil && snap.Profile.Username != "" {
		return snap.Profile.Username
	}
	if email := m.auth.Email(); email != "" {
		return email
	}
	return ""
}

// timerStrip renders the persistent one-line countdown.
func (m Model) timerStrip() string {
	left := m.timer.TimeLeft()
	minutes := int(left.Minutes())
	seconds := int(left.Seconds()) % 60

	var modeLabel string
	switch m.timer.Mode() {
	case model.ModeShortBreak:
		modeLabel = "Short break"
	case model.ModeLongBreak:
		modeLabel = "Long break"
	default:
		modeLabel = "Focus"
	}

	var stateLabel string
	switch m.timer.State() {
	case focus.Running:
		stateLabel = "running"
	case focus.Paused:
		stateLabel = "paused"
	default:
		stateLabel = "ready"
	}

	text := fmt.Sprintf("%s %02d:%02d %s", modeLabel, minutes, seconds, stateLabel)
	if name := m.timer.ListName(); name != "" {
		text += " · " + name
	}

	return theme.TimerStyle(m.timer.Mode(), m.timer.State() == focus.Running).
		Width(m.layout.Width).
		Render(text)
}

// statusLine renders either the transient status or the key hints.
func (m Model) statusLine() string {
	if m.statusMsg != "" {
		if m.statusErr {
			return theme.ErrorStyle.Render(m.statusMsg)
		}
		return m.statusMsg
	}
	return "1 dashboard · 2 todos · 3 study hall · 4 settings · space timer · ? help · q quit"
}
