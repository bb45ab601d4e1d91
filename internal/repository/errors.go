// Package repository holds the SQL data access for events, registrations and
// users. Methods suffixed with Tx run on a caller-owned transaction and never
// commit or roll back themselves.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrEventNotFound is returned when an event does not exist or is not visible
// to the caller. Draft events are reported this way to members so their
// existence does not leak.
var ErrEventNotFound = errors.New("event not found")

// ErrRegistrationNotFound is returned when no registration exists for a
// (user, event) pair.
var ErrRegistrationNotFound = errors.New("registration not found")

// ErrDuplicate is returned when an insert violates a unique key, e.g. a second
// registration for the same (user, event) pair.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognises unique-key failures from both supported
// drivers.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
