package notification

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned for unknown notifications
var ErrNotFound = errors.New("notification not found")

// Repository defines notification data access
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListFor(ctx context.Context, v Viewer, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, v Viewer) (int, error)
	MarkAsRead(ctx context.Context, v Viewer, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, v Viewer) error
	ResolveAction(ctx context.Context, purchaseID uuid.UUID) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, readOnly bool) (int64, error)

	ListTemplates(ctx context.Context) ([]Template, error)
	GetTemplate(ctx context.Context, key string) (*Template, error)
	UpsertTemplate(ctx context.Context, t *Template) error

	GetSealedCredential(ctx context.Context) ([]byte, error)
	SaveSealedCredential(ctx context.Context, sealed []byte) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates notification repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const notificationColumns = `id, user_id, audience, kind, title, body, action_required, purchase_id, is_read, read_at, created_at`

// visibleTo matches rows addressed to the viewer, plus admin rows for admins
const visibleTo = `(user_id = $1 AND audience = 'user') OR ($2 AND audience = 'admin')`

func (r *repository) Create(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (:id, :user_id, :audience, :kind, :title, :body, :action_required, :purchase_id, :is_read, :read_at, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, n)
	return err
}

func (r *repository) ListFor(ctx context.Context, v Viewer, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT ` + notificationColumns + ` FROM notifications
		WHERE ` + visibleTo + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	notifications := []*Notification{}
	err := r.db.SelectContext(ctx, &notifications, query, v.UserID, v.IsAdmin, limit, offset)
	return notifications, err
}

func (r *repository) CountUnread(ctx context.Context, v Viewer) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE (` + visibleTo + `) AND NOT is_read`
	var count int
	err := r.db.GetContext(ctx, &count, query, v.UserID, v.IsAdmin)
	return count, err
}

func (r *repository) MarkAsRead(ctx context.Context, v Viewer, id uuid.UUID) error {
	query := `UPDATE notifications SET is_read = true, read_at = NOW() WHERE (` + visibleTo + `) AND id = $3`
	res, err := r.db.ExecContext(ctx, query, v.UserID, v.IsAdmin, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) MarkAllAsRead(ctx context.Context, v Viewer) error {
	query := `UPDATE notifications SET is_read = true, read_at = NOW() WHERE (` + visibleTo + `) AND NOT is_read`
	_, err := r.db.ExecContext(ctx, query, v.UserID, v.IsAdmin)
	return err
}

// ResolveAction clears the action flag on admin notices for a purchase
func (r *repository) ResolveAction(ctx context.Context, purchaseID uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications SET action_required = false, is_read = true, read_at = COALESCE(read_at, NOW())
		WHERE purchase_id = $1 AND audience = 'admin' AND action_required
	`
	res, err := r.db.ExecContext(ctx, query, purchaseID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOlderThan removes notifications created before cutoff.
// Pending admin actions are never removed.
func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time, readOnly bool) (int64, error) {
	query := `DELETE FROM notifications WHERE created_at < $1 AND NOT action_required AND (is_read OR NOT $2)`
	res, err := r.db.ExecContext(ctx, query, cutoff, readOnly)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) ListTemplates(ctx context.Context) ([]Template, error) {
	templates := []Template{}
	err := r.db.SelectContext(ctx, &templates, `SELECT key, title, body, relay, updated_at FROM notification_templates ORDER BY key`)
	return templates, err
}

func (r *repository) GetTemplate(ctx context.Context, key string) (*Template, error) {
	var t Template
	err := r.db.GetContext(ctx, &t, `SELECT key, title, body, relay, updated_at FROM notification_templates WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) UpsertTemplate(ctx context.Context, t *Template) error {
	query := `
		INSERT INTO notification_templates (key, title, body, relay, updated_at)
		VALUES (:key, :title, :body, :relay, :updated_at)
		ON CONFLICT (key) DO UPDATE SET
			title = EXCLUDED.title, body = EXCLUDED.body,
			relay = EXCLUDED.relay, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.NamedExecContext(ctx, query, t)
	return err
}

func (r *repository) GetSealedCredential(ctx context.Context) ([]byte, error) {
	var sealed []byte
	err := r.db.GetContext(ctx, &sealed, `SELECT sealed_credential FROM messaging_settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sealed, err
}

func (r *repository) SaveSealedCredential(ctx context.Context, sealed []byte) error {
	query := `
		INSERT INTO messaging_settings (id, sealed_credential, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET sealed_credential = EXCLUDED.sealed_credential, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, sealed)
	return err
}
