package model

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Profile is the public identity row for a user. It shares its ID with
// the auth user and is created lazily on first app use.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

var usernameSpaces = regexp.MustCompile(`\s+`)

// NormalizeUsername lowercases a username and replaces runs of
// whitespace with underscores, matching how handles are stored.
func NormalizeUsername(username string) string {
	return usernameSpaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(username)), "_")
}

// ValidateUsername checks the minimum-length rule after normalization.
func ValidateUsername(username string) error {
	if utf8.RuneCountInString(NormalizeUsername(username)) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	return nil
}
