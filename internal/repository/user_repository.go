package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/database"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

// ErrUserNotFound indicates that no users row exists for an id.
var ErrUserNotFound = errors.New("user not found")

// UserRepo persists the local copy of identity-provider users.
type UserRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewUserRepo returns a UserRepo for db.
func NewUserRepo(db *sql.DB, dialect database.Dialect) *UserRepo {
	return &UserRepo{db: db, dialect: dialect}
}

// UpsertTx creates the user row or refreshes its role and any non-empty
// display fields.
func (r *UserRepo) UpsertTx(ctx context.Context, tx *sql.Tx, u *model.User) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	var q string
	switch r.dialect {
	case database.MySQL:
		q = `INSERT INTO users (id, email, name, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				email = COALESCE(NULLIF(VALUES(email), ''), email),
				name = COALESCE(NULLIF(VALUES(name), ''), name),
				role = VALUES(role),
				updated_at = VALUES(updated_at)`
	default:
		q = `INSERT INTO users (id, email, name, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				email = COALESCE(NULLIF(excluded.email, ''), users.email),
				name = COALESCE(NULLIF(excluded.name, ''), users.name),
				role = excluded.role,
				updated_at = excluded.updated_at`
	}
	if _, err := tx.ExecContext(ctx, q, u.ID, u.Email, u.Name, u.Role, now, now); err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
