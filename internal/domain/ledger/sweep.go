package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/pkg/logger"
	"github.com/creditshop/creditshop-api/internal/pkg/metrics"
)

// Sweep triggers, used as metric labels
const (
	TriggerOnDemand  = "on_demand"
	TriggerScheduled = "scheduled"
)

// SweepExpiry expires the user's overdue lots, then auto-renews or expires
// their overdue grants. Running it again without time passing changes nothing.
func (s *Service) SweepExpiry(ctx context.Context, userID uuid.UUID) (*SweepResult, error) {
	result, err := s.sweep(ctx, userID)
	metrics.IncSweep(TriggerOnDemand, err)
	return result, err
}

func (s *Service) sweep(ctx context.Context, userID uuid.UUID) (*SweepResult, error) {
	result := &SweepResult{}
	err := s.withUserLock(ctx, userID, func(tx Tx) error {
		*result = SweepResult{}
		now := s.now().UTC()

		lots, err := tx.ListDueLots(ctx, userID, now)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			if err := s.expireLot(ctx, tx, lot, now, result); err != nil {
				return err
			}
		}

		grants, err := tx.ListDueGrants(ctx, userID, now)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if err := s.settleGrant(ctx, tx, g, now, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed() {
		log.Info().
			Str("user_id", userID.String()).
			Int("expired_lots", result.ExpiredLots).
			Int64("expired_credits", result.ExpiredCredits).
			Int("renewed", len(result.Renewed)).
			Int("expired_grants", len(result.Expired)).
			Msg("expiry sweep applied")
	}
	s.dispatch(ctx, result.Events)
	return result, nil
}

func (s *Service) expireLot(ctx context.Context, tx Tx, lot CreditLot, now time.Time, result *SweepResult) error {
	remaining := lot.Amount
	if remaining > 0 {
		if err := s.appendUsage(ctx, tx, lot.UserID, ActionCreditsExpired, -remaining, nil, now); err != nil {
			return err
		}
	}
	lot.Status = LotExpired
	if err := tx.UpdateLot(ctx, &lot); err != nil {
		return err
	}

	result.ExpiredLots++
	result.ExpiredCredits += remaining
	result.Events = append(result.Events, Event{
		Type:       EventCreditsExpired,
		UserID:     lot.UserID,
		OccurredAt: now,
		Credits:    -remaining,
		ItemName:   lot.PackageName,
		LotID:      ptr(lot.ID),
	})
	return nil
}

// settleGrant auto-renews an overdue grant at the current catalog terms, or
// expires it when the product is gone or the user cannot pay.
func (s *Service) settleGrant(ctx context.Context, tx Tx, g ProductGrant, now time.Time, result *SweepResult) error {
	product, err := s.catalog.GetProduct(ctx, g.ProductID)
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		return s.expireGrant(ctx, tx, g, now, result)
	case err != nil:
		return fmt.Errorf("%w: product lookup: %v", ErrInternal, err)
	}

	_, _, err = s.spend(ctx, tx, g.UserID, product.Price, now, result)
	if errors.Is(err, ErrInsufficientCredits) {
		return s.expireGrant(ctx, tx, g, now, result)
	}
	if err != nil {
		return err
	}

	reprice(&g, product, now)
	if err := tx.UpdateGrant(ctx, &g); err != nil {
		return err
	}
	if err := s.appendUsage(ctx, tx, g.UserID, ActionAutoRenewal, -product.Price, &g, now); err != nil {
		return err
	}

	result.Renewed = append(result.Renewed, g)
	result.Events = append(result.Events, Event{
		Type:       EventProductAutoRenewed,
		UserID:     g.UserID,
		OccurredAt: now,
		Credits:    -product.Price,
		ProductID:  ptr(g.ProductID),
		ItemName:   g.ProductName,
		GrantID:    ptr(g.ID),
		ExpiryDate: ptr(g.ExpiryDate),
	})
	return nil
}

func (s *Service) expireGrant(ctx context.Context, tx Tx, g ProductGrant, now time.Time, result *SweepResult) error {
	g.Status = GrantExpired
	if err := tx.UpdateGrant(ctx, &g); err != nil {
		return err
	}
	result.Expired = append(result.Expired, g)
	result.Events = append(result.Events, Event{
		Type:       EventProductExpired,
		UserID:     g.UserID,
		OccurredAt: now,
		ProductID:  ptr(g.ProductID),
		ItemName:   g.ProductName,
		GrantID:    ptr(g.ID),
		ExpiryDate: ptr(g.ExpiryDate),
	})
	return nil
}

// SweepDue sweeps up to limit users that own overdue lots or grants. Users
// whose ledger is busy are left for the next run.
func (s *Service) SweepDue(ctx context.Context, limit int) (int, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveSweepDuration(time.Since(start).Seconds())
	}()

	users, err := s.repo.ListUsersWithDueItems(ctx, s.now().UTC(), limit)
	if err != nil {
		metrics.IncSweep(TriggerScheduled, err)
		return 0, err
	}

	var (
		swept int
		errs  []error
	)
	for _, userID := range users {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, err := s.sweep(ctx, userID)
		metrics.IncSweep(TriggerScheduled, err)
		switch {
		case errors.Is(err, ErrBusy):
			logger.LogDebug(ctx, "ledger busy, sweep deferred", "user_id", userID.String())
		case err != nil:
			log.Error().Err(err).Str("user_id", userID.String()).Msg("scheduled sweep failed")
			errs = append(errs, err)
		default:
			swept++
		}
	}
	return swept, errors.Join(errs...)
}
