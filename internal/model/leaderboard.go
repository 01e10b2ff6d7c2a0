package model

import "time"

// LeaderboardEntry is one row of the weekly_leaderboard view, ranked by
// total focus minutes within the current week. The view is pre-ordered;
// Rank is assigned client-side from row position.
type LeaderboardEntry struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	AvatarURL    string `json:"avatar_url"`
	TotalMinutes int    `json:"total_minutes"`
	Rank         int    `json:"rank"`
}

// ActivityEvent is one entry of the study-hall live feed: a recently
// completed focus session enriched with the author's public profile.
type ActivityEvent struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	AvatarURL       string    `json:"avatar_url"`
	DurationSeconds int       `json:"duration_seconds"`
	InsertedAt      time.Time `json:"inserted_at"`
}
