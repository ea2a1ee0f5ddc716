package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/pkg/metrics"
	"github.com/creditshop/creditshop-api/internal/pkg/relay"
	"github.com/creditshop/creditshop-api/internal/pkg/secret"
)

// PhoneDirectory resolves the phone number a user registered for messages
type PhoneDirectory interface {
	GetPhone(ctx context.Context, userID uuid.UUID) (string, error)
}

type credentialStore interface {
	GetSealedCredential(ctx context.Context) ([]byte, error)
}

// Relay delivery outcomes
const (
	relaySent    = "sent"
	relayFailed  = "failed"
	relaySkipped = "skipped"
)

// RelayDispatcher sends phone messages in the background. Failures are
// logged and counted, never returned to the caller.
type RelayDispatcher struct {
	client      *relay.Client
	box         *secret.Box
	creds       credentialStore
	phones      PhoneDirectory
	maxAttempts int
	backoff     time.Duration
	deadline    time.Duration

	wg sync.WaitGroup
}

// NewRelayDispatcher creates a dispatcher; maxAttempts below 1 means one attempt
func NewRelayDispatcher(client *relay.Client, box *secret.Box, creds credentialStore, phones PhoneDirectory, maxAttempts int) *RelayDispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RelayDispatcher{
		client:      client,
		box:         box,
		creds:       creds,
		phones:      phones,
		maxAttempts: maxAttempts,
		backoff:     time.Second,
		deadline:    2 * time.Minute,
	}
}

// Dispatch queues a message for userID and returns immediately
func (d *RelayDispatcher) Dispatch(userID uuid.UUID, body string) {
	if d == nil || !d.client.Enabled() {
		metrics.IncRelayDelivery(relaySkipped)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.deadline)
		defer cancel()
		metrics.IncRelayDelivery(d.deliver(ctx, userID, body))
	}()
}

// Wait blocks until queued deliveries finish
func (d *RelayDispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

func (d *RelayDispatcher) deliver(ctx context.Context, userID uuid.UUID, body string) string {
	l := log.With().Str("user_id", userID.String()).Logger()

	phone, err := d.phones.GetPhone(ctx, userID)
	if err != nil {
		l.Warn().Err(err).Msg("relay: phone lookup failed")
		return relayFailed
	}
	if phone == "" {
		return relaySkipped
	}

	sealed, err := d.creds.GetSealedCredential(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("relay: credential lookup failed")
		return relayFailed
	}
	if len(sealed) == 0 {
		l.Debug().Msg("relay: no credential configured")
		return relaySkipped
	}
	credential, err := d.box.Open(sealed)
	if err != nil {
		l.Error().Err(err).Msg("relay: cannot open stored credential")
		return relayFailed
	}

	msg := relay.Message{To: phone, Body: body}
	for attempt := 1; ; attempt++ {
		err = d.client.Send(ctx, string(credential), msg)
		if err == nil {
			l.Info().Int("attempt", attempt).Msg("relay: message sent")
			return relaySent
		}
		if !relay.Retryable(err) || attempt >= d.maxAttempts {
			l.Warn().Err(err).Int("attempt", attempt).Msg("relay: delivery failed")
			return relayFailed
		}

		select {
		case <-ctx.Done():
			l.Warn().Err(ctx.Err()).Int("attempt", attempt).Msg("relay: delivery abandoned")
			return relayFailed
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}
}
