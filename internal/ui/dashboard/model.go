// Package dashboard renders the analytics view: stat cards, the
// trailing 7-day focus chart, and the per-subject breakdown.
package dashboard

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/theme"
)

const (
	weeklyBarWidth  = 24
	subjectBarWidth = 20
	maxSubjects     = 6
)

// Model is the Bubble Tea model for the dashboard view.
type Model struct {
	stats   model.AppStats
	loading bool

	width, height int
}

// New creates a new dashboard view model.
func New(width, height int) Model {
	return Model{
		loading: true,
		width:   width,
		height:  height,
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

// SetData replaces the rendered stats. Called by the root model after
// every provider refresh.
func (m *Model) SetData(stats model.AppStats, loading bool) {
	m.stats = stats
	m.loading = loading
}

// Update handles messages for the dashboard view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.loading {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			theme.HelpStyle.Render("Loading your stats…"),
		)
	}

	sections := []string{
		m.renderCards(),
		m.renderWeekly(),
		m.renderSubjects(),
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// renderCards renders the four headline stat cards in a row.
func (m Model) renderCards() string {
	labelStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valueStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	card := func(label, value string) string {
		return theme.CardStyle.Render(
			lipgloss.JoinVertical(
				lipgloss.Left,
				valueStyle.Render(value),
				labelStyle.Render(label),
			),
		)
	}

	streak := fmt.Sprintf("%d day", m.stats.Streak)
	if m.stats.Streak != 1 {
		streak += "s"
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		card("Total focus", m.stats.TotalHours),
		card("Tasks done", fmt.Sprintf("%d", m.stats.TasksCompleted)),
		card("Streak", streak),
		card("Avg session", m.stats.AvgSession),
	)
}

// renderWeekly renders the trailing 7-day focus bar chart.
func (m Model) renderWeekly() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorBlue).
		MarginTop(1)

	maxMinutes := 0
	for _, d := range m.stats.WeeklyData {
		if d.Minutes > maxMinutes {
			maxMinutes = d.Minutes
		}
	}

	barStyle := lipgloss.NewStyle().Foreground(theme.ColorGreen)
	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	dayStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	var lines []string
	lines = append(lines, titleStyle.Render("This week"))
	for _, d := range m.stats.WeeklyData {
		filled := 0
		if maxMinutes > 0 {
			filled = d.Minutes * weeklyBarWidth / maxMinutes
		}
		if d.Minutes > 0 && filled == 0 {
			filled = 1
		}

		bar := barStyle.Render(strings.Repeat("█", filled)) +
			dimStyle.Render(strings.Repeat("░", weeklyBarWidth-filled))
		lines = append(lines, fmt.Sprintf(
			"%s %s %s",
			dayStyle.Render(fmt.Sprintf("%-3s", d.Day)),
			bar,
			dayStyle.Render(formatMinutes(d.Minutes)),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderSubjects renders the all-time per-list breakdown.
func (m Model) renderSubjects() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorBlue).
		MarginTop(1)

	if len(m.stats.SubjectData) == 0 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			titleStyle.Render("By subject"),
			theme.HelpStyle.Render("Finish a focus session to see your breakdown."),
		)
	}

	maxMinutes := 0
	for _, s := range m.stats.SubjectData {
		if s.Minutes > maxMinutes {
			maxMinutes = s.Minutes
		}
	}

	barStyle := lipgloss.NewStyle().Foreground(theme.ColorMagenta)
	nameStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	var lines []string
	lines = append(lines, titleStyle.Render("By subject"))
	shown := m.stats.SubjectData
	if len(shown) > maxSubjects {
		shown = shown[:maxSubjects]
	}
	for _, s := range shown {
		filled := 0
		if maxMinutes > 0 {
			filled = s.Minutes * subjectBarWidth / maxMinutes
		}
		if s.Minutes > 0 && filled == 0 {
			filled = 1
		}

		lines = append(lines, fmt.Sprintf(
			"%s %s %s",
			nameStyle.Render(fmt.Sprintf("%-14.14s", s.Name)),
			barStyle.Render(strings.Repeat("█", filled)),
			theme.HelpStyle.Render(formatMinutes(s.Minutes)),
		))
	}
	if hidden := len(m.stats.SubjectData) - maxSubjects; hidden > 0 {
		lines = append(lines, theme.HelpStyle.Render(fmt.Sprintf("  … +%d more", hidden)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// formatMinutes renders a minute count as "45m" or "2h 05m".
func formatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
