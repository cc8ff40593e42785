package dto

// CreateRequest is the request body for creating a reminder.
// FireAt uses the "2006-01-02 15:04:05" layout in the configured timezone.
type CreateRequest struct {
	Owner      string `json:"owner" validate:"required"`
	Task       string `json:"task" validate:"required"`
	Plant      string `json:"plant" validate:"required"`
	FireAt     string `json:"fire_at" validate:"required"`
	Recurrence string `json:"recurrence" validate:"required"`
	Channel    string `json:"channel"`
	Contact    string `json:"contact"`
}
