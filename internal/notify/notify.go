// Package notify sends desktop notifications via notify-send.
package notify

import (
	"os/exec"
	"strconv"
	"time"

	"github.com/studyhall-dev/studyhall/internal/model"
)

// Urgency levels for notifications
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
	Timeout time.Duration
	Icon    string // Optional icon name
}

// Notifier handles sending desktop notifications
type Notifier struct {
	enabled bool
}

// NewNotifier creates a new notifier
func NewNotifier() *Notifier {
	return &Notifier{
		enabled: true,
	}
}

// SetEnabled enables or disables notifications
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// Send sends a desktop notification using notify-send
func (n *Notifier) Send(notification Notification) error {
	if !n.enabled {
		return nil
	}

	args := []string{}

	switch notification.Urgency {
	case UrgencyLow:
		args = append(args, "-u", "low")
	case UrgencyCritical:
		args = append(args, "-u", "critical")
	default:
		args = append(args, "-u", "normal")
	}

	// Timeout is passed in milliseconds.
	if notification.Timeout > 0 {
		args = append(args, "-t", strconv.Itoa(int(notification.Timeout.Milliseconds())))
	}

	if notification.Icon != "" {
		args = append(args, "-i", notification.Icon)
	}

	args = append(args, "-a", "studyhall")

	args = append(args, notification.Title)
	if notification.Body != "" {
		args = append(args, notification.Body)
	}

	cmd := exec.Command("notify-send", args...)
	return cmd.Run()
}

// SendSimple sends a simple notification with title and body
func (n *Notifier) SendSimple(title, body string) error {
	return n.Send(Notification{
		Title:   title,
		Body:    body,
		Urgency: UrgencyNormal,
		Timeout: 5 * time.Second,
	})
}

// SendTimerComplete sends a notification when a countdown finishes,
// phrased per the completed mode.
func (n *Notifier) SendTimerComplete(mode string, listName string) error {
	switch mode {
	case model.ModeFocus:
		body := "Take a break."
		if listName != "" {
			body = listName + " — take a break."
		}
		return n.Send(Notification{
			Title:   "Focus session complete!",
			Body:    body,
			Urgency: UrgencyNormal,
			Timeout: 10 * time.Second,
			Icon:    "alarm-symbolic",
		})
	default:
		return n.Send(Notification{
			Title:   "Break over",
			Body:    "Time to get back to work!",
			Urgency: UrgencyNormal,
			Timeout: 10 * time.Second,
			Icon:    "appointment-soon-symbolic",
		})
	}
}
