// Package backend talks to the managed backend service that owns all
// persistence, auth, storage, and realtime change notification. The
// rest of the application only sees the interfaces defined here.
package backend

import (
	"context"
	"encoding/json"

	"github.com/studyhall-dev/studyhall/internal/model"
)

// Table names exposed by the row API.
const (
	TableLists       = "todo_lists"
	TableMembers     = "todo_list_members"
	TableTodos       = "todos"
	TableImages      = "todo_images"
	TableSessions    = "focus_sessions"
	TableProfiles    = "profiles"
	TableLeaderboard = "weekly_leaderboard"
)

// Change event types delivered by the realtime channel.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// ChangeEvent is one row-change notification from the realtime channel.
type ChangeEvent struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Row   json.RawMessage `json:"row"`
	Time  int64           `json:"time"`
}

// Realtime is the change-notification subscription primitive. Any
// transport that can deliver discrete row-change events per table
// satisfies it.
type Realtime interface {
	// Subscribe registers interest in change events on a table. The
	// returned function cancels the subscription and closes the channel.
	Subscribe(table string) (<-chan ChangeEvent, func())

	// Close tears down the transport and every subscription.
	Close() error
}

// Client is the row-level contract the application depends on. It is
// implemented by RestClient and by the test fake.
type Client interface {
	// === Lists & membership ===

	// ListMemberships returns the lists the user belongs to, each
	// enriched with the caller's role.
	ListMemberships(ctx context.Context, userID string) ([]model.List, error)
	CreateList(ctx context.Context, name, ownerID string) (model.List, error)
	DeleteList(ctx context.Context, listID string) error
	AddMember(ctx context.Context, m model.Membership) error
	RemoveMember(ctx context.Context, listID, userID string) error

	// EnsureInbox guarantees the user has at least one membership,
	// creating the owned "Inbox" list lazily when needed.
	EnsureInbox(ctx context.Context, userID string) error

	// === Todos ===

	Todos(ctx context.Context, listID string) ([]model.Todo, error)
	CreateTodo(ctx context.Context, todo model.Todo) error
	SetTodoDone(ctx context.Context, todoID string, done bool) error
	RenameTodo(ctx context.Context, todoID, title string) error
	DeleteTodo(ctx context.Context, todoID string) error
	CountCompletedTodos(ctx context.Context, userID string) (int, error)

	// === Todo images ===

	TodoImages(ctx context.Context, listID string) ([]model.TodoImage, error)
	AttachImage(ctx context.Context, img model.TodoImage, data []byte, contentType string) (model.TodoImage, error)
	ImageURL(path string) string

	// === Focus sessions ===

	Sessions(ctx context.Context, userID string) ([]model.FocusSession, error)
	CreateSession(ctx context.Context, s model.FocusSession) error
	RecentActivity(ctx context.Context, limit int) ([]model.ActivityEvent, error)

	// === Profiles ===

	Profile(ctx context.Context, userID string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, p model.Profile) error

	// === Leaderboard ===

	WeeklyLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}
