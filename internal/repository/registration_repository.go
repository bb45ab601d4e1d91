package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

const registrationColumns = `r.id, r.user_id, r.event_id, r.status, r.answers, r.created_at, r.updated_at`

const detailSelect = `SELECT ` + registrationColumns + `, u.name, u.email, e.title
	FROM registrations r
	JOIN users u ON u.id = r.user_id
	JOIN events e ON e.id = r.event_id`

// RegistrationRepo manages persistence for registrations.
type RegistrationRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewRegistrationRepo returns a RegistrationRepo for db.
func NewRegistrationRepo(db *sql.DB, dialect database.Dialect) *RegistrationRepo {
	return &RegistrationRepo{db: db, dialect: dialect}
}

func scanRegistration(s scanner) (*model.Registration, error) {
	var reg model.Registration
	if err := s.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.Answers, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
		return nil, err
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	return &reg, nil
}

func scanDetail(s scanner) (*model.RegistrationDetail, error) {
	var d model.RegistrationDetail
	reg := &d.Registration
	if err := s.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.Answers, &reg.CreatedAt, &reg.UpdatedAt,
		&d.UserName, &d.UserEmail, &d.EventTitle); err != nil {
		return nil, err
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	return &d, nil
}

// GetTx performs the point lookup by (user, event) inside tx.
func (r *RegistrationRepo) GetTx(ctx context.Context, tx *sql.Tx, eventID uint64, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE r.event_id = ? AND r.user_id = ?`, eventID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	return reg, err
}

// GetDetail loads one registration joined with user and event display fields.
func (r *RegistrationRepo) GetDetail(ctx context.Context, eventID uint64, userID string) (*model.RegistrationDetail, error) {
	d, err := scanDetail(r.db.QueryRowContext(ctx, detailSelect+` WHERE r.event_id = ? AND r.user_id = ?`, eventID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	return d, err
}

// GetDetailTx is GetDetail inside tx.
func (r *RegistrationRepo) GetDetailTx(ctx context.Context, tx *sql.Tx, eventID uint64, userID string) (*model.RegistrationDetail, error) {
	d, err := scanDetail(tx.QueryRowContext(ctx, detailSelect+` WHERE r.event_id = ? AND r.user_id = ?`, eventID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	return d, err
}

// InsertTx inserts reg and fills in its ID and timestamps. A second row for
// the same (user, event) pair fails with ErrDuplicate.
func (r *RegistrationRepo) InsertTx(ctx context.Context, tx *sql.Tx, reg *model.Registration) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if reg.Answers == nil {
		reg.Answers = model.Answers{}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO registrations (user_id, event_id, status, answers, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		reg.UserID, reg.EventID, reg.Status, reg.Answers, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	reg.ID = uint64(id)
	reg.CreatedAt, reg.UpdatedAt = now, now
	return nil
}

// UpdateStatusTx sets the status of one registration.
func (r *RegistrationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, eventID uint64, userID string, status model.RegistrationStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = ?, updated_at = ? WHERE event_id = ? AND user_id = ?`,
		status, time.Now().UTC().Truncate(time.Microsecond), eventID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// ListPromotableTx returns pending and waitlisted registrations in promotion
// order: pending before waitlist, then oldest first. limit < 0 returns all.
func (r *RegistrationRepo) ListPromotableTx(ctx context.Context, tx *sql.Tx, eventID uint64, limit int) ([]model.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations r
		WHERE r.event_id = ? AND r.status IN (?, ?)
		ORDER BY CASE r.status WHEN ? THEN 0 ELSE 1 END, r.created_at, r.id`
	args := []any{eventID, model.StatusPending, model.StatusWaitlist, model.StatusPending}
	if limit >= 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

// UpdateStatusByIDsTx sets status on every listed registration in a single
// statement and returns the number of rows changed.
func (r *RegistrationRepo) UpdateStatusByIDsTx(ctx context.Context, tx *sql.Tx, ids []uint64, status model.RegistrationStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, status, time.Now().UTC().Truncate(time.Microsecond))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = ?, updated_at = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateStatusByUsersTx sets status for the listed users' registrations to
// one event and returns the number of rows matched. Unknown user ids are
// ignored.
func (r *RegistrationRepo) UpdateStatusByUsersTx(ctx context.Context, tx *sql.Tx, eventID uint64, userIDs []string, status model.RegistrationStatus) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(userIDs)+3)
	args = append(args, status, time.Now().UTC().Truncate(time.Microsecond), eventID)
	for _, id := range userIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = ?, updated_at = ? WHERE event_id = ? AND user_id IN (`+placeholders(len(userIDs))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByUsersTx returns the registrations of the listed users for one event.
func (r *RegistrationRepo) ListByUsersTx(ctx context.Context, tx *sql.Tx, eventID uint64, userIDs []string) ([]model.Registration, error) {
	if len(userIDs) == 0 {
		return []model.Registration{}, nil
	}
	args := make([]any, 0, len(userIDs)+1)
	args = append(args, eventID)
	for _, id := range userIDs {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE r.event_id = ? AND r.user_id IN (`+placeholders(len(userIDs))+`) ORDER BY r.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

// DeleteTx removes the (user, event) registration.
func (r *RegistrationRepo) DeleteTx(ctx context.Context, tx *sql.Tx, eventID uint64, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// ListByEvent returns an event's registrations with display fields, oldest
// first. A non-empty status filters the result.
func (r *RegistrationRepo) ListByEvent(ctx context.Context, eventID uint64, status model.RegistrationStatus) ([]model.RegistrationDetail, error) {
	q := detailSelect + ` WHERE r.event_id = ?`
	args := []any{eventID}
	if status != "" {
		q += ` AND r.status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY r.created_at, r.id`
	return r.listDetails(ctx, q, args...)
}

// ListByUser returns every registration a user holds, oldest first.
func (r *RegistrationRepo) ListByUser(ctx context.Context, userID string) ([]model.RegistrationDetail, error) {
	return r.listDetails(ctx, detailSelect+` WHERE r.user_id = ? ORDER BY r.created_at, r.id`, userID)
}

func (r *RegistrationRepo) listDetails(ctx context.Context, q string, args ...any) ([]model.RegistrationDetail, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.RegistrationDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// AnalyticsRow is the projection analytics aggregates over.
type AnalyticsRow struct {
	Status    model.RegistrationStatus
	CreatedAt time.Time
	Answers   model.Answers
}

// AnalyticsRows streams the status, creation time and answers of every
// registration for an event.
func (r *RegistrationRepo) AnalyticsRows(ctx context.Context, eventID uint64) ([]AnalyticsRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, created_at, answers FROM registrations WHERE event_id = ? ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AnalyticsRow{}
	for rows.Next() {
		var row AnalyticsRow
		if err := rows.Scan(&row.Status, &row.CreatedAt, &row.Answers); err != nil {
			return nil, err
		}
		row.CreatedAt = row.CreatedAt.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
