package model

import "time"

// User mirrors a row of the `users` table. Rows are provisioned from token
// claims the first time a user registers for an event; the role stored here is
// informational and never consulted for authorization.
type User struct {
	ID        string    `json:"id"`    // users.id (identity provider subject)
	Email     string    `json:"email"` // users.email
	Name      string    `json:"name"`  // users.name
	Role      Role      `json:"role"`  // users.role
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
