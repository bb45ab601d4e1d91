// Package testutil provides migrated SQLite databases and fixtures for tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

// NewSQLite opens a fresh file-backed SQLite database under t.TempDir() with
// every migration applied. It is closed when the test ends.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.MigrateUp(db, database.SQLite))
	return db
}

// Member returns a fake member identity with a unique subject.
func Member() model.Identity {
	return model.Identity{UserID: "usr_" + gofakeit.UUID(), Role: model.RoleMember, Email: gofakeit.Email(), Name: gofakeit.Name()}
}

// Committee returns a fake committee identity with a unique subject.
func Committee() model.Identity {
	return model.Identity{UserID: "com_" + gofakeit.UUID(), Role: model.RoleCommittee, Email: gofakeit.Email(), Name: gofakeit.Name()}
}

// EventOption customises a seeded event.
type EventOption func(*model.Event)

// WithCapacity sets the event capacity; nil means unlimited.
func WithCapacity(n int) EventOption {
	return func(e *model.Event) { e.Capacity = &n }
}

// Draft leaves the event unpublished.
func Draft() EventOption {
	return func(e *model.Event) { e.State = model.EventDraft }
}

// WithFields sets the registration form.
func WithFields(fields ...model.FormField) EventOption {
	return func(e *model.Event) { e.FormFields = fields }
}

// SeedEvent inserts a published, unlimited event and returns it.
func SeedEvent(t testing.TB, db *sql.DB, opts ...EventOption) *model.Event {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := &model.Event{
		Organiser:   "compsoc",
		Title:       gofakeit.LoremIpsumSentence(4),
		Description: gofakeit.LoremIpsumSentence(12),
		Location:    gofakeit.City(),
		State:       model.EventPublished,
		FormFields:  model.FormFields{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(e)
	}
	var capacity any
	if e.Capacity != nil {
		capacity = *e.Capacity
	}
	res, err := db.Exec(`INSERT INTO events (organiser, title, description, location, state, capacity, form_fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Organiser, e.Title, e.Description, e.Location, e.State, capacity, e.FormFields, now, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	e.ID = uint64(id)
	return e
}

// SeedRegistration inserts the identity's user row and a registration with
// the given status and creation time.
func SeedRegistration(t testing.TB, db *sql.DB, eventID uint64, who model.Identity, status model.RegistrationStatus, createdAt time.Time) {
	t.Helper()
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	_, err := db.Exec(`INSERT INTO users (id, email, name, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, who.UserID, who.Email, who.Name, who.Role, createdAt, createdAt)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO registrations (user_id, event_id, status, answers, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		who.UserID, eventID, status, model.Answers{}, createdAt, createdAt)
	require.NoError(t, err)
}

// StatusOf reads a registration's status directly from the table.
func StatusOf(t testing.TB, db *sql.DB, eventID uint64, userID string) model.RegistrationStatus {
	t.Helper()
	var s model.RegistrationStatus
	require.NoError(t, db.QueryRow(`SELECT status FROM registrations WHERE event_id = ? AND user_id = ?`, eventID, userID).Scan(&s))
	return s
}

// CountStatus counts an event's registrations in one status.
func CountStatus(t testing.TB, db *sql.DB, eventID uint64, status model.RegistrationStatus) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status = ?`, eventID, status).Scan(&n))
	return n
}
