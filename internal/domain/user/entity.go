package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role mirrors the role claim issued by the identity provider
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the local profile of an externally authenticated account
type User struct {
	ID          uuid.UUID      `db:"id"`
	Name        string         `db:"name"`
	PhoneNumber sql.NullString `db:"phone_number"`
	Role        Role           `db:"role"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// IsAdmin returns true if user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPhone reports whether relay messages can reach the user
func (u *User) HasPhone() bool {
	return u.PhoneNumber.Valid && u.PhoneNumber.String != ""
}
