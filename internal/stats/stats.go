// Package stats derives dashboard analytics from raw focus-session
// history. Everything here is a pure transformation: no clocks other
// than the caller-supplied reference time, no backend access.
package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/studyhall-dev/studyhall/internal/model"
)

// GeneralSubject is the attribution label for sessions with no list.
const GeneralSubject = "General"

const dayFormat = "2006-01-02"

// Compute turns a user's session history and completed-todo count into
// the derived dashboard stats. Sessions may arrive in any order.
//
// The weekly series covers the 7 calendar days ending at now (oldest
// first); sessions outside that window still count toward totals and
// the subject breakdown. Calendar dates are derived in UTC from the
// session timestamp. Sessions with a zero timestamp are excluded from
// every date-keyed computation but still contribute to totals.
func Compute(sessions []model.FocusSession, completedTodos int, now time.Time) model.AppStats {
	weekly := make([]model.DayMinutes, 7)
	bucketByDate := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		d := now.UTC().AddDate(0, 0, -(6 - i))
		date := d.Format(dayFormat)
		weekly[i] = model.DayMinutes{
			Day:  d.Format("Mon"),
			Date: date,
		}
		bucketByDate[date] = i
	}

	var (
		totalSeconds int
		focusCount   int
		subjectOrder []string
	)
	subjects := make(map[string]int)

	for _, s := range sessions {
		if s.Mode != model.ModeFocus {
			continue
		}
		totalSeconds += s.DurationSeconds
		focusCount++
		minutes := int(math.Round(float64(s.DurationSeconds) / 60))

		if !s.InsertedAt.IsZero() {
			date := s.InsertedAt.UTC().Format(dayFormat)
			if i, ok := bucketByDate[date]; ok {
				weekly[i].Minutes += minutes
			}
		}

		name := s.ListName
		if name == "" {
			name = GeneralSubject
		}
		if _, seen := subjects[name]; !seen {
			subjectOrder = append(subjectOrder, name)
		}
		subjects[name] += minutes
	}

	subjectData := make([]model.SubjectMinutes, 0, len(subjectOrder))
	for _, name := range subjectOrder {
		subjectData = append(subjectData, model.SubjectMinutes{
			Name:    name,
			Minutes: subjects[name],
		})
	}

	avg := "0m"
	if focusCount > 0 {
		avg = fmt.Sprintf("%dm", int(math.Round(float64(totalSeconds)/60/float64(focusCount))))
	}

	return model.AppStats{
		TotalHours:     fmt.Sprintf("%.1fh", float64(totalSeconds)/3600),
		TasksCompleted: completedTodos,
		Streak:         Streak(sessions, now),
		AvgSession:     avg,
		WeeklyData:     weekly,
		SubjectData:    subjectData,
	}
}

// Streak counts consecutive days of activity ending at now. Every
// session mode counts as activity, not just focus. A streak survives a
// day with no activity yet: when the most recent active date is exactly
// yesterday the chain starts there, but the day skipped today cannot be
// made up later, so the next date must be two days back.
func Streak(sessions []model.FocusSession, now time.Time) int {
	seen := make(map[string]bool)
	var dates []time.Time
	for _, s := range sessions {
		if s.InsertedAt.IsZero() {
			continue
		}
		date := s.InsertedAt.UTC().Format(dayFormat)
		if seen[date] {
			continue
		}
		seen[date] = true
		d, err := time.Parse(dayFormat, date)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return 0
	}

	// Most recent first.
	for i := 0; i < len(dates); i++ {
		for j := i + 1; j < len(dates); j++ {
			if dates[j].After(dates[i]) {
				dates[i], dates[j] = dates[j], dates[i]
			}
		}
	}

	today := truncateToDay(now.UTC())

	streak := 0
	expectedDiff := 0
	for i, d := range dates {
		diffDays := int(math.Round(today.Sub(d).Hours() / 24))
		switch {
		case diffDays == expectedDiff:
			streak++
			expectedDiff++
		case i == 0 && diffDays == 1:
			streak = 1
			expectedDiff = 2
		default:
			return streak
		}
	}
	return streak
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
