// Package queue carries registration status changes over RabbitMQ: the
// payload type, a publisher used after commit, and a consumer that keeps an
// audit log of every change.
package queue

import "time"

// Action names the engine operation that produced a status change.
type Action string

const (
	ActionCreated       Action = "created"
	ActionUpdated       Action = "updated"
	ActionBatchAccepted Action = "batch_accepted"
	ActionBatchUpdated  Action = "batch_updated"
	ActionDeleted       Action = "deleted"
)

// RegistrationStatusChanged is published once per registration whose status
// changed (or which was created or deleted) in a committed transaction.
// OldStatus is empty on creation; NewStatus is empty on deletion.
type RegistrationStatusChanged struct {
	EventID    uint64    `json:"event_id"`
	UserID     string    `json:"user_id"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
	Action     Action    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}
