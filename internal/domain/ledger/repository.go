package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader is the read side of the ledger store
type Reader interface {
	ListLots(ctx context.Context, userID uuid.UUID) ([]CreditLot, error)
	SumActiveCredits(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	ListGrants(ctx context.Context, userID uuid.UUID) ([]ProductGrant, error)
	GetGrant(ctx context.Context, id uuid.UUID) (*ProductGrant, error)
	ListUsage(ctx context.Context, userID uuid.UUID, limit int) ([]UsageRecord, error)
	GetPendingPurchase(ctx context.Context, id uuid.UUID) (*PendingPurchase, error)
	ListPendingPurchases(ctx context.Context, filter PurchaseFilter) ([]PendingPurchase, error)
	// ListUsersWithDueItems returns users owning an active lot or grant
	// that expired before now
	ListUsersWithDueItems(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Tx is the write side, valid for the duration of one WithTx callback
type Tx interface {
	// LockUser serializes transactions touching the same user's ledger
	LockUser(ctx context.Context, userID uuid.UUID) error

	ListActiveLots(ctx context.Context, userID uuid.UUID) ([]CreditLot, error)
	ListDueLots(ctx context.Context, userID uuid.UUID, now time.Time) ([]CreditLot, error)
	CreateLot(ctx context.Context, lot *CreditLot) error
	UpdateLot(ctx context.Context, lot *CreditLot) error

	GetLatestGrant(ctx context.Context, userID, productID uuid.UUID) (*ProductGrant, error)
	ListDueGrants(ctx context.Context, userID uuid.UUID, now time.Time) ([]ProductGrant, error)
	CreateGrant(ctx context.Context, g *ProductGrant) error
	UpdateGrant(ctx context.Context, g *ProductGrant) error

	CreatePendingPurchase(ctx context.Context, p *PendingPurchase) error
	GetPendingPurchaseForUpdate(ctx context.Context, id uuid.UUID) (*PendingPurchase, error)
	UpdatePendingPurchase(ctx context.Context, p *PendingPurchase) error

	AppendUsage(ctx context.Context, rec *UsageRecord) error
}

// Repository stores lots, grants, pending purchases and usage history.
// WithTx commits when fn returns nil and rolls back otherwise.
type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
