package model

import "time"

// Todo is a single task inside a list. Any member of the list may
// mutate the title and done flag or delete the row.
type Todo struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ListID     string    `json:"list_id"`
	Title      string    `json:"title"`
	IsDone     bool      `json:"is_done"`
	InsertedAt time.Time `json:"inserted_at"`
}

// TodoImage is an image attached to a todo. ListID is denormalized so
// authorization and change filtering can work per list. Rows are never
// mutated after creation.
type TodoImage struct {
	ID         string    `json:"id"`
	TodoID     string    `json:"todo_id"`
	UserID     string    `json:"user_id"`
	ListID     string    `json:"list_id"`
	Path       string    `json:"path"`
	InsertedAt time.Time `json:"inserted_at"`
}
