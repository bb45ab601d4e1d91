package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

const eventColumns = `id, organiser, title, description, location, state, capacity, starts_at, ends_at, form_fields, created_at, updated_at`

// EventRepo manages persistence for events and is the gate every
// registration operation passes through: visibility checks, row locks and
// active counts.
type EventRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewEventRepo returns an EventRepo for db. dialect selects the row-lock
// syntax.
func NewEventRepo(db *sql.DB, dialect database.Dialect) *EventRepo {
	return &EventRepo{db: db, dialect: dialect}
}

func scanEvent(s scanner) (*model.Event, error) {
	var (
		e        model.Event
		capacity sql.NullInt64
		startsAt sql.NullTime
		endsAt   sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.Organiser, &e.Title, &e.Description, &e.Location, &e.State,
		&capacity, &startsAt, &endsAt, &e.FormFields, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		e.Capacity = &c
	}
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		e.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time.UTC()
		e.EndsAt = &t
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// GetByID loads an event regardless of its publication state.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// FindVisible loads an event the caller may see. Committee members see every
// event; anyone else gets ErrEventNotFound for drafts.
func (r *EventRepo) FindVisible(ctx context.Context, id uint64, who model.Identity) (*model.Event, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Published() && !who.IsCommittee() {
		return nil, ErrEventNotFound
	}
	return e, nil
}

// LockForUpdateTx loads the event row and, on MySQL, holds an exclusive row
// lock on it until tx ends. Every capacity decision for the event must be
// made after this call within the same transaction.
func (r *EventRepo) LockForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE id = ?` + r.dialect.LockClause()
	e, err := scanEvent(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

// CountActive returns the number of accepted registrations for an event.
func (r *EventRepo) CountActive(ctx context.Context, id uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, countActiveQuery, id, model.StatusAccepted).Scan(&n)
	return n, err
}

// CountActiveTx is CountActive inside tx.
func (r *EventRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, id uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, countActiveQuery, id, model.StatusAccepted).Scan(&n)
	return n, err
}

const countActiveQuery = `SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status = ?`

// List returns events ordered by start time, newest rows last. Drafts are
// included only when includeDrafts is set.
func (r *EventRepo) List(ctx context.Context, includeDrafts bool) ([]model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	args := []any{}
	if !includeDrafts {
		q += ` WHERE state = ?`
		args = append(args, model.EventPublished)
	}
	q += ` ORDER BY starts_at IS NULL, starts_at, id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Create inserts a new event and fills in its ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if e.FormFields == nil {
		e.FormFields = model.FormFields{}
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (organiser, title, description, location, state, capacity, starts_at, ends_at, form_fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Organiser, e.Title, e.Description, e.Location, e.State, nullableInt(e.Capacity),
		nullableTime(e.StartsAt), nullableTime(e.EndsAt), e.FormFields, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

// UpdateTx overwrites the mutable columns of an event inside tx. Callers
// changing capacity hold the row lock from LockForUpdateTx first.
func (r *EventRepo) UpdateTx(ctx context.Context, tx *sql.Tx, e *model.Event) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	res, err := tx.ExecContext(ctx,
		`UPDATE events SET organiser = ?, title = ?, description = ?, location = ?, state = ?, capacity = ?,
		 starts_at = ?, ends_at = ?, form_fields = ?, updated_at = ? WHERE id = ?`,
		e.Organiser, e.Title, e.Description, e.Location, e.State, nullableInt(e.Capacity),
		nullableTime(e.StartsAt), nullableTime(e.EndsAt), e.FormFields, now, e.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	e.UpdatedAt = now
	return nil
}

// Delete removes an event; its registrations go with it through the
// cascading foreign key.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
