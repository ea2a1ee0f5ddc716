package ledger

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotStatus of a credit lot
type LotStatus string

const (
	LotActive  LotStatus = "active"
	LotExpired LotStatus = "expired"
)

// GrantStatus of a product grant
type GrantStatus string

const (
	GrantActive  GrantStatus = "active"
	GrantExpired GrantStatus = "expired"
	GrantPending GrantStatus = "pending"
)

// PurchaseKind is what a pending purchase buys
type PurchaseKind string

const (
	KindProduct       PurchaseKind = "product"
	KindCreditPackage PurchaseKind = "credit_package"
)

// PurchaseStatus of a pending purchase
type PurchaseStatus string

const (
	PurchasePending  PurchaseStatus = "pending"
	PurchaseApproved PurchaseStatus = "approved"
	PurchaseRejected PurchaseStatus = "rejected"
)

// Usage history actions
const (
	ActionPurchase       = "Purchase"
	ActionRenewal        = "Renewal"
	ActionAutoRenewal    = "Auto-Renewal"
	ActionCreditPurchase = "Credit Purchase"
	ActionCreditsExpired = "Credits Expired"
)

// Roles carried by Actor
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID uuid.UUID
	Role   string
	Name   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CreditLot is a batch of credits issued to one user at one time.
// Once expired its amount is frozen and it is never consumed again.
type CreditLot struct {
	ID              uuid.UUID `db:"id"`
	UserID          uuid.UUID `db:"user_id"`
	Amount          int64     `db:"amount"`
	PurchaseDate    time.Time `db:"purchase_date"`
	ExpiryDate      time.Time `db:"expiry_date"`
	Status          LotStatus `db:"status"`
	SourcePackageID uuid.UUID `db:"source_package_id"`
	PackageName     string    `db:"package_name"`
}

// Due reports whether the lot is still active past its expiry date
func (l *CreditLot) Due(now time.Time) bool {
	return l.Status == LotActive && l.ExpiryDate.Before(now)
}

// Spendable reports whether FIFO consumption may draw from the lot at now
func (l *CreditLot) Spendable(now time.Time) bool {
	return l.Status == LotActive && l.Amount > 0 && !l.ExpiryDate.Before(now)
}

// ProductGrant is a user's time-limited access to one product. Terms are
// copied from the catalog when the grant is issued or renewed.
type ProductGrant struct {
	ID           uuid.UUID   `db:"id"`
	ProductID    uuid.UUID   `db:"product_id"`
	UserID       uuid.UUID   `db:"user_id"`
	ProductName  string      `db:"product_name"`
	PricePaid    int64       `db:"price_paid"`
	ExpiryDays   int         `db:"expiry_days"`
	PurchaseDate time.Time   `db:"purchase_date"`
	ExpiryDate   time.Time   `db:"expiry_date"`
	Status       GrantStatus `db:"status"`
}

// PendingPurchase awaits an admin decision
type PendingPurchase struct {
	ID             uuid.UUID       `db:"id"`
	UserID         uuid.UUID       `db:"user_id"`
	Kind           PurchaseKind    `db:"kind"`
	ItemID         uuid.UUID       `db:"item_id"`
	ItemName       string          `db:"item_name"`
	MonetaryAmount decimal.Decimal `db:"monetary_amount"`
	Status         PurchaseStatus  `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	ResolvedAt     sql.NullTime    `db:"resolved_at"`
	ResolvedBy     uuid.NullUUID   `db:"resolved_by"`
}

// UsageRecord is an append-only history entry with a signed credit delta
type UsageRecord struct {
	ID          string         `db:"id"` // ULID, sorts by creation time
	UserID      uuid.UUID      `db:"user_id"`
	Action      string         `db:"action"`
	Amount      int64          `db:"amount"`
	ProductID   uuid.NullUUID  `db:"product_id"`
	ProductName sql.NullString `db:"product_name"`
	CreatedAt   time.Time      `db:"created_at"`
}

// PurchaseFilter narrows pending purchase listings
type PurchaseFilter struct {
	UserID *uuid.UUID
	Status PurchaseStatus
	Limit  int
	Offset int
}
