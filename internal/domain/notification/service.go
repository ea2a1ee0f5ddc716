package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/pkg/logger"
	"github.com/creditshop/creditshop-api/internal/pkg/metrics"
	"github.com/creditshop/creditshop-api/internal/pkg/secret"
)

var ErrUnknownTemplate = errors.New("unknown notification template")

// Service stores, renders and delivers notifications
type Service struct {
	repo     Repository
	realtime RealtimePublisher
	relay    *RelayDispatcher
	box      *secret.Box
	now      func() time.Time
}

// NewService creates notification service. realtime and relay may be nil.
func NewService(repo Repository, realtime RealtimePublisher, relay *RelayDispatcher, box *secret.Box) *Service {
	return &Service{
		repo:     repo,
		realtime: realtime,
		relay:    relay,
		box:      box,
		now:      time.Now,
	}
}

// Notify renders the notice's template, stores the notification, pushes it
// to connected clients and, when the template asks for it, relays it to the
// user's phone in the background.
func (s *Service) Notify(ctx context.Context, n Notice) error {
	tmpl, err := s.template(ctx, n.Template)
	if err != nil {
		metrics.IncNotification(string(n.Kind), err)
		return err
	}

	row := &Notification{
		ID:             uuid.New(),
		Audience:       n.Audience,
		Kind:           n.Kind,
		Title:          Render(tmpl.Title, n.Vars),
		Body:           Render(tmpl.Body, n.Vars),
		ActionRequired: n.ActionRequired,
		CreatedAt:      s.now().UTC(),
	}
	if n.Audience == AudienceUser {
		row.UserID = uuid.NullUUID{UUID: n.UserID, Valid: true}
	}
	if n.PurchaseID != nil {
		row.PurchaseID = uuid.NullUUID{UUID: *n.PurchaseID, Valid: true}
	}

	err = s.repo.Create(ctx, row)
	metrics.IncNotification(string(n.Kind), err)
	if err != nil {
		return fmt.Errorf("store notification %s: %w", n.Template, err)
	}

	if s.realtime != nil {
		if err := s.realtime.NotifyNew(ctx, NotificationResponseFromEntity(row)); err != nil {
			log.Warn().Err(err).Str("notification_id", row.ID.String()).Msg("Realtime push failed")
		}
	}

	if tmpl.Relay && n.Audience == AudienceUser {
		s.relay.Dispatch(n.UserID, row.Title+": "+row.Body)
	}
	return nil
}

// ResolveAction marks a purchase's admin requests as handled
func (s *Service) ResolveAction(ctx context.Context, purchaseID uuid.UUID) error {
	n, err := s.repo.ResolveAction(ctx, purchaseID)
	if err != nil {
		return err
	}
	log.Debug().Str("purchase_id", purchaseID.String()).Int64("cleared", n).Msg("Admin action notices resolved")
	return nil
}

func (s *Service) template(ctx context.Context, key string) (Template, error) {
	def, ok := DefaultTemplate(key)
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
	}
	custom, err := s.repo.GetTemplate(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("template", key).Msg("Template lookup failed, using default")
		return def, nil
	}
	if custom == nil {
		return def, nil
	}
	return *custom, nil
}

// List returns notifications visible to the viewer
func (s *Service) List(ctx context.Context, v Viewer, limit, offset int) ([]*Notification, error) {
	return s.repo.ListFor(ctx, v, limit, offset)
}

// GetUnreadCount returns unread count
func (s *Service) GetUnreadCount(ctx context.Context, v Viewer) (int, error) {
	return s.repo.CountUnread(ctx, v)
}

// MarkAsRead marks single notification as read
func (s *Service) MarkAsRead(ctx context.Context, v Viewer, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, v, id)
}

// MarkAllAsRead marks all notifications as read
func (s *Service) MarkAllAsRead(ctx context.Context, v Viewer) error {
	return s.repo.MarkAllAsRead(ctx, v)
}

// ListTemplates returns every template with admin overrides applied
func (s *Service) ListTemplates(ctx context.Context) ([]TemplateResponse, error) {
	custom, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]Template, len(custom))
	for _, t := range custom {
		overrides[t.Key] = t
	}

	out := make([]TemplateResponse, 0, len(defaultTemplates))
	for _, key := range TemplateKeys() {
		t, customized := overrides[key]
		if !customized {
			t, _ = DefaultTemplate(key)
		}
		out = append(out, TemplateResponse{
			Key:        key,
			Title:      t.Title,
			Body:       t.Body,
			Relay:      t.Relay,
			Customized: customized,
		})
	}
	return out, nil
}

// UpdateTemplate overrides the text of a known template
func (s *Service) UpdateTemplate(ctx context.Context, key string, req *UpdateTemplateRequest) (*TemplateResponse, error) {
	if _, ok := DefaultTemplate(key); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, key)
	}

	t := &Template{
		Key:       key,
		Title:     req.Title,
		Body:      req.Body,
		Relay:     req.Relay,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.repo.UpsertTemplate(ctx, t); err != nil {
		return nil, err
	}

	logger.LogInfo(ctx, "Notification template updated", "template", key)
	return &TemplateResponse{Key: key, Title: t.Title, Body: t.Body, Relay: t.Relay, Customized: true}, nil
}

// SetRelayCredential seals and stores the messaging gateway credential
func (s *Service) SetRelayCredential(ctx context.Context, credential string) error {
	sealed, err := s.box.Seal([]byte(credential))
	if err != nil {
		return err
	}
	if err := s.repo.SaveSealedCredential(ctx, sealed); err != nil {
		return err
	}
	logger.LogInfo(ctx, "Relay credential updated")
	return nil
}
