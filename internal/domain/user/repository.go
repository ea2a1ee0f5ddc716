package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository defines user data access interface
type Repository interface {
	// Upsert creates the profile on first sight and refreshes name and role after
	Upsert(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	UpdatePhone(ctx context.Context, id uuid.UUID, phone sql.NullString) error
	GetPhone(ctx context.Context, id uuid.UUID) (string, error)
}

// repository implements Repository
type repository struct {
	db *sqlx.DB
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO users (id, name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name = '' THEN users.name ELSE EXCLUDED.name END,
			role = EXCLUDED.role,
			updated_at = NOW()
		RETURNING id, name, phone_number, role, created_at, updated_at
	`
	if err := r.db.GetContext(ctx, user, query, user.ID, user.Name, user.Role); err != nil {
		return fmt.Errorf("%w: user upsert: %v", ErrInternal, err)
	}
	return nil
}

// GetByID returns user by ID
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT id, name, phone_number, role, created_at, updated_at FROM users WHERE id = $1`
	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: user get: %v", ErrInternal, err)
	}
	return &user, nil
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("%w: user exists: %v", ErrInternal, err)
	}
	return exists, nil
}

func (r *repository) UpdatePhone(ctx context.Context, id uuid.UUID, phone sql.NullString) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE users SET phone_number = $2, updated_at = NOW() WHERE id = $1`, id, phone)
	if err != nil {
		return fmt.Errorf("%w: user phone: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetPhone returns the user's phone number, or "" when none is on file
func (r *repository) GetPhone(ctx context.Context, id uuid.UUID) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var phone sql.NullString
	err := r.db.GetContext(ctx, &phone, `SELECT phone_number FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: user phone: %v", ErrInternal, err)
	}
	return phone.String, nil
}
