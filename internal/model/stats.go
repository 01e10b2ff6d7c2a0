package model

// DayMinutes is one bucket of the trailing 7-day focus series.
type DayMinutes struct {
	Day     string `json:"day"`  // weekday name, e.g. "Mon"
	Date    string `json:"date"` // ISO date, e.g. "2026-08-27"
	Minutes int    `json:"minutes"`
}

// SubjectMinutes is the all-time focus minutes attributed to one list.
type SubjectMinutes struct {
	Name    string `json:"name"`
	Minutes int    `json:"minutes"`
}

// AppStats is the derived analytics bundle shown on the dashboard.
// It is recomputed from session and todo data on every refresh and is
// never persisted.
type AppStats struct {
	TotalHours     string           `json:"total_hours"` // e.g. "12.5h"
	TasksCompleted int              `json:"tasks_completed"`
	Streak         int              `json:"streak"` // consecutive active days
	AvgSession     string           `json:"avg_session"` // e.g. "23m"
	WeeklyData     []DayMinutes     `json:"weekly_data"`
	SubjectData    []SubjectMinutes `json:"subject_data"`
}
