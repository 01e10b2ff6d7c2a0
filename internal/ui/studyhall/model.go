// Package studyhall renders the weekly leaderboard and the live feed of
// recently completed focus sessions.
package studyhall

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/theme"
)

const (
	leaderboardLimit = 10
	activityLimit    = 20
	callTimeout      = 30 * time.Second
)

// loadedMsg delivers a fresh leaderboard and activity feed.
type loadedMsg struct {
	entries  []model.LeaderboardEntry
	activity []model.ActivityEvent
	err      error
}

// Model is the Bubble Tea model for the study hall view.
type Model struct {
	client backend.Client

	userID   string
	entries  []model.LeaderboardEntry
	activity []model.ActivityEvent
	loaded   bool
	loadErr  error

	width, height int
}

// New creates a new study hall view model.
func New(client backend.Client, width, height int) Model {
	return Model{
		client: client,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return m.Reload()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetUser sets the signed-in user so their own row can be highlighted.
func (m *Model) SetUser(userID string) {
	m.userID = userID
}

// Reload fetches the leaderboard and activity feed.
func (m Model) Reload() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()

		entries, err := client.WeeklyLeaderboard(ctx, leaderboardLimit)
		if err != nil {
			return loadedMsg{err: err}
		}
		activity, err := client.RecentActivity(ctx, activityLimit)
		if err != nil {
			return loadedMsg{err: err}
		}
		return loadedMsg{entries: entries, activity: activity}
	}
}

// Update handles messages for the study hall view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if loaded, ok := msg.(loadedMsg); ok {
		m.loaded = true
		m.loadErr = loaded.err
		if loaded.err == nil {
			m.entries = loaded.entries
			m.activity = loaded.activity
		}
	}
	return m, nil
}

// View renders the study hall.
func (m Model) View() string {
	if !m.loaded {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			theme.HelpStyle.Render("Loading the study hall…"),
		)
	}
	if m.loadErr != nil && len(m.entries) == 0 && len(m.activity) == 0 {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			theme.ErrorStyle.Render(fmt.Sprintf("Study hall unavailable: %v", m.loadErr)),
		)
	}

	half := m.width/2 - 2
	board := m.renderLeaderboard(half)
	feed := m.renderActivity(m.width - half - 4)

	return lipgloss.JoinHorizontal(lipgloss.Top, board, feed)
}

func (m Model) renderLeaderboard(width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)

	var lines []string
	lines = append(lines, titleStyle.Render("This week's leaderboard"))
	for _, e := range m.entries {
		name := e.Username
		if name == "" {
			name = "Anonymous"
		}
		line := fmt.Sprintf(
			"%s %-16.16s %s",
			theme.RankStyle(e.Rank).Render(fmt.Sprintf("#%d", e.Rank)),
			name,
			theme.HelpStyle.Render(formatMinutes(e.TotalMinutes)),
		)
		if e.UserID == m.userID {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(m.entries) == 0 {
		lines = append(lines, theme.HelpStyle.Render("Nobody has studied yet this week."))
	}

	return theme.BorderStyle.
		Width(width).
		Height(m.height - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderActivity(width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)

	var lines []string
	lines = append(lines, titleStyle.Render("Live feed"))
	for _, evt := range m.activity {
		name := evt.Username
		if name == "" {
			name = "Anonymous"
		}
		lines = append(lines, theme.ListItemStyle.Render(fmt.Sprintf(
			"%s focused for %s %s",
			name,
			formatMinutes(evt.DurationSeconds/60),
			theme.HelpStyle.Render(relativeTime(evt.InsertedAt)),
		)))
	}
	if len(m.activity) == 0 {
		lines = append(lines, theme.HelpStyle.Render("No recent sessions. Start a timer!"))
	}

	return theme.BorderStyle.
		Width(width).
		Height(m.height - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// formatMinutes renders a minute count as "45m" or "2h 05m".
func formatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}

// relativeTime renders a timestamp as a short "5m ago" label.
func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
