package notification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Audience selects who sees a notification
type Audience string

const (
	AudienceUser  Audience = "user"  // one user
	AudienceAdmin Audience = "admin" // every admin
)

// Kind groups notifications for display
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSystem   Kind = "system"
	KindExpiry   Kind = "expiry"
)

// Notification is a stored in-app notification
type Notification struct {
	ID             uuid.UUID     `db:"id"`
	UserID         uuid.NullUUID `db:"user_id"`
	Audience       Audience      `db:"audience"`
	Kind           Kind          `db:"kind"`
	Title          string        `db:"title"`
	Body           string        `db:"body"`
	ActionRequired bool          `db:"action_required"`
	PurchaseID     uuid.NullUUID `db:"purchase_id"`
	IsRead         bool          `db:"is_read"`
	ReadAt         sql.NullTime  `db:"read_at"`
	CreatedAt      time.Time     `db:"created_at"`
}

// Notice is a request to notify someone. The template is rendered with Vars
// when the notice is delivered.
type Notice struct {
	UserID         uuid.UUID // recipient for AudienceUser; subject user for AudienceAdmin
	Audience       Audience
	Kind           Kind
	Template       string
	Vars           map[string]string
	ActionRequired bool
	PurchaseID     *uuid.UUID
}

// Viewer is whoever is reading notifications. Admins also see admin-audience rows.
type Viewer struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// Template is an editable title/body pair with {placeholder} variables
type Template struct {
	Key       string    `db:"key"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Relay     bool      `db:"relay"` // also send to the user's phone
	UpdatedAt time.Time `db:"updated_at"`
}
