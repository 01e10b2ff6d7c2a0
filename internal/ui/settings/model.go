// Package settings renders the profile editor and account actions.
package settings

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/theme"
)

const callTimeout = 30 * time.Second

// SignOutRequestedMsg tells the root model to end the session.
type SignOutRequestedMsg struct{}

// NotificationsChangedMsg reports the desktop-notification toggle so the
// root model can apply it and persist the preference.
type NotificationsChangedMsg struct {
	Enabled bool
}

// profileSavedMsg reports the outcome of a profile upsert.
type profileSavedMsg struct {
	err error
}

// Model is the Bubble Tea model for the settings view.
type Model struct {
	client backend.Client

	userID  string
	profile *model.Profile
	form    *huh.Form
	fb      *formBindings

	statusMsg string
	statusErr bool

	width, height int
}

// formBindings holds form field values on the heap so huh's Value()
// pointers stay valid across Bubble Tea model copies.
type formBindings struct {
	username string
	fullName string
	avatar   string
	notify   bool
	signOut  bool
}

// New creates a new settings view model.
func New(client backend.Client, width, height int) Model {
	return Model{
		client: client,
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetProfile prefills the form from the provider's snapshot. A nil
// profile means none exists yet; the form starts blank.
func (m *Model) SetProfile(userID string, p *model.Profile, notify bool) tea.Cmd {
	m.userID = userID
	m.profile = p
	m.fb.username = ""
	m.fb.fullName = ""
	m.fb.avatar = ""
	if p != nil {
		m.fb.username = p.Username
		m.fb.fullName = p.FullName
		m.fb.avatar = p.AvatarURL
	}
	m.fb.notify = notify
	m.fb.signOut = false
	m.form = m.buildForm()
	return m.form.Init()
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Your public handle on the leaderboard").
				Placeholder("study_cat").
				Value(&m.fb.username).
				Validate(model.ValidateUsername),
			huh.NewInput().
				Title("Full name").
				Value(&m.fb.fullName),
			huh.NewInput().
				Title("Avatar URL").
				Placeholder("https://…").
				Value(&m.fb.avatar),
			huh.NewConfirm().
				Title("Desktop notifications").
				Affirmative("On").
				Negative("Off").
				Value(&m.fb.notify),
			huh.NewConfirm().
				Title("Sign out?").
				Affirmative("Sign out").
				Negative("Stay").
				Value(&m.fb.signOut),
		),
	).WithWidth(m.formWidth())
}

// Update handles messages for the settings view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if saved, ok := msg.(profileSavedMsg); ok {
		if saved.err != nil {
			if backend.IsDuplicateError(saved.err) {
				m.statusMsg = "That username is already taken"
			} else {
				m.statusMsg = fmt.Sprintf("Saving profile: %v", saved.err)
			}
			m.statusErr = true
		} else {
			m.statusMsg = "Profile saved"
			m.statusErr = false
		}
		m.form = m.buildForm()
		return m, m.form.Init()
	}

	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		if m.fb.signOut {
			return m, func() tea.Msg { return SignOutRequestedMsg{} }
		}
		enabled := m.fb.notify
		return m, tea.Batch(
			m.saveProfile(),
			func() tea.Msg { return NotificationsChangedMsg{Enabled: enabled} },
		)
	}
	if m.form.State == huh.StateAborted {
		m.form = m.buildForm()
		return m, m.form.Init()
	}

	return m, cmd
}

// saveProfile upserts the profile off the UI goroutine.
func (m Model) saveProfile() tea.Cmd {
	p := model.Profile{
		ID:        m.userID,
		Username:  m.fb.username,
		FullName:  m.fb.fullName,
		AvatarURL: m.fb.avatar,
	}
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return profileSavedMsg{err: client.UpsertProfile(ctx, p)}
	}
}

// View renders the settings view.
func (m Model) View() string {
	if m.form == nil {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			theme.HelpStyle.Render("Sign in to edit your profile."),
		)
	}

	body := m.form.View()
	if m.statusMsg != "" {
		style := theme.HelpStyle
		if m.statusErr {
			style = theme.ErrorStyle
		}
		body = lipgloss.JoinVertical(lipgloss.Left, body, style.Render(m.statusMsg))
	}

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		theme.CardStyle.Render(body),
	)
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w > 64 {
		w = 64
	}
	if w < 24 {
		w = 24
	}
	return w
}
