package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall-dev/studyhall/internal/model"
)

var now = time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC) // a Wednesday

func session(mode string, daysAgo int, seconds int, listName string) model.FocusSession {
	return model.FocusSession{
		Mode:            mode,
		DurationSeconds: seconds,
		InsertedAt:      now.AddDate(0, 0, -daysAgo),
		ListName:        listName,
	}
}

func TestComputeEmptyHistory(t *testing.T) {
	s := Compute(nil, 0, now)

	assert.Equal(t, "0.0h", s.TotalHours)
	assert.Equal(t, "0m", s.AvgSession)
	assert.Equal(t, 0, s.Streak)
	assert.Equal(t, 0, s.TasksCompleted)
	assert.Empty(t, s.SubjectData)

	require.Len(t, s.WeeklyData, 7)
	assert.Equal(t, "2026-03-12", s.WeeklyData[0].Date)
	assert.Equal(t, "Thu", s.WeeklyData[0].Day)
	assert.Equal(t, "2026-03-18", s.WeeklyData[6].Date)
	assert.Equal(t, "Wed", s.WeeklyData[6].Day)
	for _, d := range s.WeeklyData {
		assert.Zero(t, d.Minutes)
	}
}

func TestComputeWeeklyWindow(t *testing.T) {
	sessions := []model.FocusSession{
		session(model.ModeFocus, 0, 1500, "Math"),
		session(model.ModeFocus, 3, 1500, "Math"),
		// Outside the window: totals only, no weekly bucket.
		session(model.ModeFocus, 10, 3600, "History"),
		// Breaks never count toward focus aggregates.
		session(model.ModeShortBreak, 0, 300, ""),
	}

	s := Compute(sessions, 4, now)

	assert.Equal(t, 4, s.TasksCompleted)
	assert.Equal(t, "1.8h", s.TotalHours) // 6600s
	assert.Equal(t, "37m", s.AvgSession)  // round(110/3)

	var windowMinutes int
	for _, d := range s.WeeklyData {
		windowMinutes += d.Minutes
	}
	assert.Equal(t, 50, windowMinutes)
	assert.Equal(t, 25, s.WeeklyData[6].Minutes)
	assert.Equal(t, 25, s.WeeklyData[3].Minutes)

	// Subject breakdown covers the entire history.
	require.Len(t, s.SubjectData, 2)
	assert.Equal(t, model.SubjectMinutes{Name: "Math", Minutes: 50}, s.SubjectData[0])
	assert.Equal(t, model.SubjectMinutes{Name: "History", Minutes: 60}, s.SubjectData[1])
}

func TestComputeGeneralAttribution(t *testing.T) {
	s := Compute([]model.FocusSession{
		session(model.ModeFocus, 0, 600, ""),
	}, 0, now)

	require.Len(t, s.SubjectData, 1)
	assert.Equal(t, GeneralSubject, s.SubjectData[0].Name)
	assert.Equal(t, 10, s.SubjectData[0].Minutes)
}

func TestComputeMalformedTimestamp(t *testing.T) {
	s := Compute([]model.FocusSession{
		{Mode: model.ModeFocus, DurationSeconds: 1500, ListName: "Math"},
	}, 0, now)

	// No date bucket gets the minutes, but totals still count them.
	for _, d := range s.WeeklyData {
		assert.Zero(t, d.Minutes)
	}
	assert.Equal(t, "0.4h", s.TotalHours)
	assert.Equal(t, 0, s.Streak)
}

func TestComputeIdempotent(t *testing.T) {
	sessions := []model.FocusSession{
		session(model.ModeFocus, 0, 1500, "Math"),
		session(model.ModeFocus, 1, 900, ""),
		session(model.ModeLongBreak, 2, 900, ""),
	}

	first := Compute(sessions, 2, now)
	second := Compute(sessions, 2, now)
	assert.Equal(t, first, second)
}

func TestStreakEmpty(t *testing.T) {
	assert.Equal(t, 0, Streak(nil, now))
}

func TestStreakTodayAndYesterday(t *testing.T) {
	sessions := []model.FocusSession{
		session(model.ModeFocus, 0, 1500, ""),
		session(model.ModeShortBreak, 1, 300, ""),
	}
	assert.Equal(t, 2, Streak(sessions, now))
}

func TestStreakMissedTodaySpecialCase(t *testing.T) {
	// Activity yesterday and two days ago, none today: the streak is
	// still alive at 2, but the skipped day means a session three days
	// ago cannot extend it.
	sessions := []model.FocusSession{
		session(model.ModeFocus, 1, 1500, ""),
		session(model.ModeFocus, 2, 1500, ""),
	}
	assert.Equal(t, 2, Streak(sessions, now))

	extended := append(sessions, session(model.ModeFocus, 3, 1500, ""))
	assert.Equal(t, 2, Streak(extended, now))
}

func TestStreakBreaksAtGap(t *testing.T) {
	// Today, then a skipped day, then two consecutive days.
	sessions := []model.FocusSession{
		session(model.ModeFocus, 0, 1500, ""),
		session(model.ModeFocus, 2, 1500, ""),
		session(model.ModeFocus, 3, 1500, ""),
	}
	assert.Equal(t, 1, Streak(sessions, now))
}

func TestStreakMultipleSessionsSameDay(t *testing.T) {
	sessions := []model.FocusSession{
		session(model.ModeFocus, 0, 1500, ""),
		session(model.ModeFocus, 0, 300, ""),
		session(model.ModeShortBreak, 0, 300, ""),
	}
	assert.Equal(t, 1, Streak(sessions, now))
}

func TestStreakUnorderedInput(t *testing.T) {
	sessions := []model.FocusSession{
		session(model.ModeFocus, 2, 1500, ""),
		session(model.ModeFocus, 0, 1500, ""),
		session(model.ModeFocus, 1, 1500, ""),
	}
	assert.Equal(t, 3, Streak(sessions, now))
}

func TestSessionRoundTripIncreasesTotals(t *testing.T) {
	base := []model.FocusSession{
		session(model.ModeFocus, 0, 1500, "Math"),
	}
	before := Compute(base, 0, now)
	assert.Equal(t, "0.4h", before.TotalHours)

	written := session(model.ModeFocus, 0, 1500, "Math")
	after := Compute(append(base, written), 0, now)

	assert.Equal(t, "0.8h", after.TotalHours)
	assert.Equal(t, before.SubjectData[0].Minutes+25, after.SubjectData[0].Minutes)
	assert.Equal(t, before.WeeklyData[6].Minutes+25, after.WeeklyData[6].Minutes)
}
