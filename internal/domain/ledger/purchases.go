package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PurchaseCreditPackage records a request to buy credits with money. No
// credits are issued until an admin approves it.
func (s *Service) PurchaseCreditPackage(ctx context.Context, actor Actor, packageID uuid.UUID) (*PendingPurchase, error) {
	if err := s.ensureUser(ctx, actor.UserID); err != nil {
		return nil, err
	}
	pkg, err := s.pkg(ctx, packageID)
	if err != nil {
		return nil, err
	}
	return s.request(ctx, actor, KindCreditPackage, pkg.ID, pkg.Name, pkg.Price)
}

// RequestProductPurchase records a request for an admin to grant a product.
// The credits are charged when the request is approved.
func (s *Service) RequestProductPurchase(ctx context.Context, actor Actor, productID uuid.UUID) (*PendingPurchase, error) {
	if err := s.ensureUser(ctx, actor.UserID); err != nil {
		return nil, err
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.request(ctx, actor, KindProduct, product.ID, product.Name, decimal.NewFromInt(product.Price))
}

func (s *Service) request(ctx context.Context, actor Actor, kind PurchaseKind, itemID uuid.UUID, itemName string, amount decimal.Decimal) (*PendingPurchase, error) {
	now := s.now().UTC()
	p := &PendingPurchase{
		ID:             uuid.New(),
		UserID:         actor.UserID,
		Kind:           kind,
		ItemID:         itemID,
		ItemName:       itemName,
		MonetaryAmount: amount,
		Status:         PurchasePending,
		CreatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		return tx.CreatePendingPurchase(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", actor.UserID.String()).
		Str("purchase_id", p.ID.String()).
		Str("kind", string(kind)).
		Msg("purchase requested")

	s.dispatch(ctx, []Event{{
		Type:       EventPurchaseRequested,
		UserID:     actor.UserID,
		UserName:   actor.Name,
		OccurredAt: now,
		ItemName:   itemName,
		PurchaseID: ptr(p.ID),
		Kind:       kind,
	}})
	return p, nil
}

// ApprovePendingPurchase resolves a pending purchase in the user's favour.
// Credit packages issue exactly one lot on the catalog terms current at
// approval time; products are charged and granted like PurchaseProduct.
func (s *Service) ApprovePendingPurchase(ctx context.Context, actor Actor, purchaseID uuid.UUID) (*ApprovalResult, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	p, err := s.repo.GetPendingPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status != PurchasePending {
		return nil, ErrPurchaseResolved
	}

	var result *ApprovalResult
	switch p.Kind {
	case KindCreditPackage:
		pkg, err := s.pkg(ctx, p.ItemID)
		if err != nil {
			return nil, err
		}
		err = s.withUserLock(ctx, p.UserID, func(tx Tx) error {
			cur, now, err := s.resolve(ctx, tx, actor, purchaseID, PurchaseApproved)
			if err != nil {
				return err
			}
			lot := CreditLot{
				ID:              uuid.New(),
				UserID:          cur.UserID,
				Amount:          pkg.Credits,
				PurchaseDate:    now,
				ExpiryDate:      addDays(now, pkg.ExpiryDays),
				Status:          LotActive,
				SourcePackageID: pkg.ID,
				PackageName:     pkg.Name,
			}
			if err := tx.CreateLot(ctx, &lot); err != nil {
				return err
			}
			if err := s.appendUsage(ctx, tx, cur.UserID, ActionCreditPurchase, pkg.Credits, nil, now); err != nil {
				return err
			}
			result = &ApprovalResult{
				Purchase: *cur,
				Lot:      &lot,
				Events: []Event{{
					Type:       EventPurchaseApproved,
					UserID:     cur.UserID,
					OccurredAt: now,
					Credits:    pkg.Credits,
					ItemName:   pkg.Name,
					LotID:      ptr(lot.ID),
					PurchaseID: ptr(cur.ID),
					Kind:       KindCreditPackage,
					ExpiryDate: ptr(lot.ExpiryDate),
				}},
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

	case KindProduct:
		product, err := s.product(ctx, p.ItemID)
		if err != nil {
			return nil, err
		}
		err = s.withUserLock(ctx, p.UserID, func(tx Tx) error {
			cur, now, err := s.resolve(ctx, tx, actor, purchaseID, PurchaseApproved)
			if err != nil {
				return err
			}
			bought, err := s.purchaseTx(ctx, tx, Actor{UserID: cur.UserID, Role: RoleUser}, product)
			if err != nil {
				return err
			}
			result = &ApprovalResult{
				Purchase: *cur,
				Grant:    &bought.Grant,
				Events: append(ofType(bought.Events, EventCreditsExpired), Event{
					Type:       EventPurchaseApproved,
					UserID:     cur.UserID,
					OccurredAt: now,
					Credits:    -product.Price,
					ProductID:  ptr(product.ID),
					ItemName:   product.Name,
					GrantID:    ptr(bought.Grant.ID),
					PurchaseID: ptr(cur.ID),
					Kind:       KindProduct,
					ExpiryDate: ptr(bought.Grant.ExpiryDate),
				}),
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, ErrInvalidState
	}

	log.Info().
		Str("purchase_id", purchaseID.String()).
		Str("admin_id", actor.UserID.String()).
		Str("user_id", p.UserID.String()).
		Msg("purchase approved")

	s.dispatch(ctx, result.Events)
	return result, nil
}

// RejectPendingPurchase closes a pending purchase without touching the ledger
func (s *Service) RejectPendingPurchase(ctx context.Context, actor Actor, purchaseID uuid.UUID) (*PendingPurchase, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}

	var rejected *PendingPurchase
	var at time.Time
	err := s.repo.WithTx(ctx, func(tx Tx) error {
		cur, now, err := s.resolve(ctx, tx, actor, purchaseID, PurchaseRejected)
		if err != nil {
			return err
		}
		rejected, at = cur, now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("purchase_id", purchaseID.String()).
		Str("admin_id", actor.UserID.String()).
		Msg("purchase rejected")

	s.dispatch(ctx, []Event{{
		Type:       EventPurchaseRejected,
		UserID:     rejected.UserID,
		OccurredAt: at,
		ItemName:   rejected.ItemName,
		PurchaseID: ptr(rejected.ID),
		Kind:       rejected.Kind,
	}})
	return rejected, nil
}

// resolve moves a locked pending purchase to status, exactly once
func (s *Service) resolve(ctx context.Context, tx Tx, actor Actor, id uuid.UUID, status PurchaseStatus) (*PendingPurchase, time.Time, error) {
	cur, err := tx.GetPendingPurchaseForUpdate(ctx, id)
	if err != nil {
		return nil, time.Time{}, err
	}
	if cur.Status != PurchasePending {
		return nil, time.Time{}, ErrPurchaseResolved
	}

	now := s.now().UTC()
	cur.Status = status
	cur.ResolvedAt = sql.NullTime{Time: now, Valid: true}
	cur.ResolvedBy = uuid.NullUUID{UUID: actor.UserID, Valid: true}
	if err := tx.UpdatePendingPurchase(ctx, cur); err != nil {
		return nil, time.Time{}, err
	}
	return cur, now, nil
}

// ListPurchases lists pending purchases. Non-admins only see their own.
func (s *Service) ListPurchases(ctx context.Context, actor Actor, filter PurchaseFilter) ([]PendingPurchase, error) {
	if !actor.IsAdmin() {
		filter.UserID = &actor.UserID
	}
	if filter.Limit <= 0 || filter.Limit > maxHistoryLimit {
		filter.Limit = 50
	}
	return s.repo.ListPendingPurchases(ctx, filter)
}
