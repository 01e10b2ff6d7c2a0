package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/theme"
)

// LoginMode represents the current state of the login view.
type LoginMode int

const (
	ModeChoice     LoginMode = iota // Pick sign in vs sign up
	ModeSignIn                      // Email/password sign-in form
	ModeSignUp                      // Email/password sign-up form
	ModeSubmitting                  // Waiting on the backend
)

// SignUpPendingMsg signals sign-up succeeded but the account still
// needs email confirmation before it can sign in.
type SignUpPendingMsg struct{}

// authResultMsg carries the outcome of a sign-in/sign-up attempt.
type authResultMsg struct {
	signUp bool
	err    error
}

const submitTimeout = 30 * time.Second

// Model is the Bubble Tea model for the authentication gate.
type Model struct {
	auth *backend.Auth
	mode LoginMode

	choiceForm *huh.Form
	signInForm *huh.Form
	signUpForm *huh.Form
	fb         *formBindings

	spinner   spinner.Model
	statusMsg string

	width, height int
}

// formBindings holds form field values on the heap so huh's Value()
// pointers stay valid across Bubble Tea model copies.
type formBindings struct {
	choice   string
	email    string
	password string
	confirm  string
}

// New creates a new login view model.
func New(auth *backend.Auth, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		auth:    auth,
		mode:    ModeChoice,
		fb:      &formBindings{},
		spinner: sp,
		width:   width,
		height:  height,
	}
	m.choiceForm = m.buildChoiceForm()
	return m
}

// Init starts the choice form.
func (m Model) Init() tea.Cmd {
	return m.choiceForm.Init()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles messages for the login view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case authResultMsg:
		if msg.err != nil {
			m.statusMsg = msg.err.Error()
			m.mode = ModeChoice
			m.choiceForm = m.buildChoiceForm()
			return m, m.choiceForm.Init()
		}
		if msg.signUp && m.auth.UserID() == "" {
			// Email confirmation required; back to the gate.
			m.statusMsg = ""
			m.mode = ModeChoice
			m.choiceForm = m.buildChoiceForm()
			return m, tea.Batch(
				m.choiceForm.Init(),
				func() tea.Msg { return SignUpPendingMsg{} },
			)
		}
		// Success surfaces through the auth event stream; nothing to do.
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeSubmitting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch m.mode {
	case ModeChoice:
		return m.updateChoiceForm(msg)
	case ModeSignIn:
		return m.updateSignInForm(msg)
	case ModeSignUp:
		return m.updateSignUpForm(msg)
	}
	return m, nil
}

func (m Model) buildChoiceForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Welcome to Study Hall").
				Description("Sign in to sync your lists and focus sessions").
				Options(
					huh.NewOption("Sign in with an existing account", "signin"),
					huh.NewOption("Create a new account", "signup"),
				).
				Value(&m.fb.choice),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateChoiceForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.choiceForm == nil {
		return m, nil
	}

	mdl, cmd := m.choiceForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.choiceForm = f
	}

	if m.choiceForm.State == huh.StateCompleted {
		m.fb.email = ""
		m.fb.password = ""
		m.fb.confirm = ""
		if m.fb.choice == "signup" {
			m.mode = ModeSignUp
			m.signUpForm = m.buildSignUpForm()
			return m, m.signUpForm.Init()
		}
		m.mode = ModeSignIn
		m.signInForm = m.buildSignInForm()
		return m, m.signInForm.Init()
	}

	return m, cmd
}

func (m *Model) buildSignInForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@school.edu").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validateRequired("Password")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateSignInForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.signInForm == nil {
		return m, nil
	}

	mdl, cmd := m.signInForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.signInForm = f
	}

	if m.signInForm.State == huh.StateCompleted {
		m.mode = ModeSubmitting
		m.statusMsg = ""
		return m, tea.Batch(m.spinner.Tick, m.signIn())
	}
	if m.signInForm.State == huh.StateAborted {
		m.mode = ModeChoice
		m.choiceForm = m.buildChoiceForm()
		return m, m.choiceForm.Init()
	}

	return m, cmd
}

func (m *Model) buildSignUpForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@school.edu").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				Description("At least 6 characters").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(validatePassword),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.confirm),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateSignUpForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.signUpForm == nil {
		return m, nil
	}

	mdl, cmd := m.signUpForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.signUpForm = f
	}

	if m.signUpForm.State == huh.StateCompleted {
		if m.fb.password != m.fb.confirm {
			m.statusMsg = "Passwords do not match"
			m.signUpForm = m.buildSignUpForm()
			return m, m.signUpForm.Init()
		}
		m.mode = ModeSubmitting
		m.statusMsg = ""
		return m, tea.Batch(m.spinner.Tick, m.signUp())
	}
	if m.signUpForm.State == huh.StateAborted {
		m.mode = ModeChoice
		m.choiceForm = m.buildChoiceForm()
		return m, m.choiceForm.Init()
	}

	return m, cmd
}

// signIn submits the credentials off the UI goroutine.
func (m Model) signIn() tea.Cmd {
	email, password := m.fb.email, m.fb.password
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return authResultMsg{err: m.auth.SignIn(ctx, email, password)}
	}
}

// signUp registers the account off the UI goroutine.
func (m Model) signUp() tea.Cmd {
	email, password := m.fb.email, m.fb.password
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return authResultMsg{signUp: true, err: m.auth.SignUp(ctx, email, password)}
	}
}

// View renders the login view.
func (m Model) View() string {
	var body string
	switch m.mode {
	case ModeSubmitting:
		body = fmt.Sprintf("%s Contacting the backend…", m.spinner.View())
	case ModeSignIn:
		body = m.signInForm.View()
	case ModeSignUp:
		body = m.signUpForm.View()
	default:
		body = m.choiceForm.View()
	}

	if m.statusMsg != "" {
		body = lipgloss.JoinVertical(
			lipgloss.Left,
			body,
			theme.ErrorStyle.Render(m.statusMsg),
		)
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

func validateRequired(field string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateEmail(v string) error {
	v = strings.TrimSpace(v)
	if v == "" || !strings.Contains(v, "@") {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}

func validatePassword(v string) error {
	if len(v) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}
