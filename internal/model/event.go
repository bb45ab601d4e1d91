package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventState is the publication state of an event.
type EventState string

const (
	EventDraft     EventState = "draft"
	EventPublished EventState = "published"
)

// Valid reports whether s is a known publication state.
func (s EventState) Valid() bool { return s == EventDraft || s == EventPublished }

// FieldType enumerates the custom form field kinds an event may declare.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
)

// FormField is one entry of an event's registration form. Options are only
// meaningful for select and checkbox fields.
type FormField struct {
	ID       string    `json:"id" validate:"required"`
	Label    string    `json:"label" validate:"required"`
	Type     FieldType `json:"type" validate:"required,oneof=text textarea select checkbox"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// Tallied reports whether answers to this field are counted per option in
// analytics.
func (f FormField) Tallied() bool {
	return (f.Type == FieldSelect || f.Type == FieldCheckbox) && len(f.Options) > 0
}

// FormFields is stored as a JSON array in events.form_fields.
type FormFields []FormField

// Value implements driver.Valuer.
func (f FormFields) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (f *FormFields) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("form_fields: %w", err)
	}
	if len(b) == 0 {
		*f = FormFields{}
		return nil
	}
	return json.Unmarshal(b, f)
}

// Event represents a row in the `events` table.
//
// Capacity is nil for unlimited events; when set it bounds the number of
// accepted registrations only.
type Event struct {
	ID          uint64     `json:"id"`
	Organiser   string     `json:"organiser"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	State       EventState `json:"state"`
	Capacity    *int       `json:"capacity"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	FormFields  FormFields `json:"form_fields"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Published reports whether the event is visible to members.
func (e *Event) Published() bool { return e.State == EventPublished }

// jsonBytes normalises the column representations drivers hand back for JSON
// columns (MySQL returns []byte, SQLite returns string).
func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("unsupported column type %T", src)
}
