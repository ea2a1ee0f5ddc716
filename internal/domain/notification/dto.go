package notification

import (
	"time"

	"github.com/google/uuid"
)

// NotificationResponse for API
type NotificationResponse struct {
	ID             uuid.UUID  `json:"id"`
	Audience       string     `json:"audience"`
	Kind           string     `json:"kind"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	ActionRequired bool       `json:"action_required"`
	PurchaseID     *uuid.UUID `json:"purchase_id,omitempty"`
	IsRead         bool       `json:"is_read"`
	CreatedAt      string     `json:"created_at"`

	userID uuid.UUID
}

// NotificationResponseFromEntity converts entity to response
func NotificationResponseFromEntity(n *Notification) *NotificationResponse {
	resp := &NotificationResponse{
		ID:             n.ID,
		Audience:       string(n.Audience),
		Kind:           string(n.Kind),
		Title:          n.Title,
		Body:           n.Body,
		ActionRequired: n.ActionRequired,
		IsRead:         n.IsRead,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339),
	}
	if n.UserID.Valid {
		resp.userID = n.UserID.UUID
	}
	if n.PurchaseID.Valid {
		id := n.PurchaseID.UUID
		resp.PurchaseID = &id
	}
	return resp
}

// UnreadCountResponse for unread count endpoint
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// TemplateResponse describes an editable template
type TemplateResponse struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Relay      bool   `json:"relay"`
	Customized bool   `json:"customized"`
}

// UpdateTemplateRequest replaces a template's text
type UpdateTemplateRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required,max=2000"`
	Relay bool   `json:"relay"`
}

// SetCredentialRequest stores the relay API credential
type SetCredentialRequest struct {
	Credential string `json:"credential" validate:"required,min=8,max=512"`
}
