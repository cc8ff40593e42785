// Package desktop delivers reminders as desktop notifications with an
// audible alert on the machine running the service.
package desktop

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

// Client shows desktop alert notifications.
type Client struct {
	title string // notification title, e.g. "Plant Care Reminder"
}

// NewClient creates a desktop notification client with the given title.
func NewClient(title string) *Client {
	return &Client{title: title}
}

// Send shows an alert notification with the reminder text. The recipient
// argument is ignored: desktop alerts always target the local session.
func (c *Client) Send(_ string, msg string) error {
	if err := beeep.Alert(c.title, msg, ""); err != nil {
		return fmt.Errorf("show alert: %w", err)
	}

	return nil
}
