package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusAccepted RegistrationStatus = "accepted"
	StatusWaitlist RegistrationStatus = "waitlist"
	StatusRejected RegistrationStatus = "rejected"
)

// Statuses lists every status in display order.
var Statuses = []RegistrationStatus{StatusPending, StatusAccepted, StatusWaitlist, StatusRejected}

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusWaitlist, StatusRejected:
		return true
	}
	return false
}

// Answers holds a registrant's form responses keyed by form field id. Values
// are strings for single-choice and free-text fields, string arrays for
// checkbox fields.
type Answers map[string]any

// Value implements driver.Valuer.
func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Answers) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("answers: %w", err)
	}
	if len(b) == 0 {
		*a = Answers{}
		return nil
	}
	return json.Unmarshal(b, a)
}

// Choices returns the option values recorded for a field. A string answer
// yields one choice, an array yields each string element.
func (a Answers) Choices(fieldID string) []string {
	switch v := a[fieldID].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Registration represents a row in the `registrations` table. The pair
// (UserID, EventID) is unique.
type Registration struct {
	ID        uint64             `json:"id"`
	UserID    string             `json:"user_id"`
	EventID   uint64             `json:"event_id"`
	Status    RegistrationStatus `json:"status"`
	Answers   Answers            `json:"answers"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// RegistrationDetail is a registration joined with the display fields of its
// user and event.
type RegistrationDetail struct {
	Registration
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email"`
	EventTitle string `json:"event_title"`
}
