package model

import "time"

// Membership roles within a list.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
)

// InboxName is the reserved name of the default list every user owns.
// The Inbox is created lazily on first access and can never be deleted.
const InboxName = "Inbox"

// List is a todo list shared between one or more members.
type List struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id"`
	InsertedAt time.Time `json:"inserted_at"`

	// Role is the signed-in user's role in this list, populated from
	// the membership row the list was fetched through.
	Role string `json:"role,omitempty"`
}

// IsInbox reports whether this is the user's permanent Inbox list.
func (l List) IsInbox() bool {
	return l.Name == InboxName
}

// Membership links a user to a list with a capability role.
type Membership struct {
	ListID string `json:"list_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
