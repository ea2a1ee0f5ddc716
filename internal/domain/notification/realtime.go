package notification

import (
	"context"

	"github.com/google/uuid"
)

// RealtimePublisher pushes newly created notifications to connected clients.
type RealtimePublisher interface {
	NotifyNew(ctx context.Context, n *NotificationResponse) error
}

type wsSender interface {
	SendToUserJSON(userID uuid.UUID, payload any) error
	SendToAdminsJSON(payload any) error
}

// WSPublisher publishes notification:new events over websocket.
type WSPublisher struct {
	sender wsSender
}

// NewWSPublisher creates a WS-backed realtime publisher.
func NewWSPublisher(sender wsSender) *WSPublisher {
	return &WSPublisher{sender: sender}
}

func (p *WSPublisher) NotifyNew(_ context.Context, n *NotificationResponse) error {
	if p == nil || p.sender == nil {
		return nil
	}

	payload := map[string]interface{}{
		"type": "notification:new",
		"data": n,
	}

	if n.Audience == string(AudienceAdmin) {
		return p.sender.SendToAdminsJSON(payload)
	}
	return p.sender.SendToUserJSON(n.userID, payload)
}
