package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Event types, also used as broker routing keys
const (
	EventProductPurchased   = "ledger.product.purchased"
	EventProductRenewed     = "ledger.product.renewed"
	EventProductAutoRenewed = "ledger.product.auto_renewed"
	EventProductExpired     = "ledger.product.expired"
	EventCreditsExpired     = "ledger.credits.expired"
	EventPurchaseRequested  = "ledger.purchase.requested"
	EventPurchaseApproved   = "ledger.purchase.approved"
	EventPurchaseRejected   = "ledger.purchase.rejected"
)

// Event describes a committed ledger change
type Event struct {
	Type       string       `json:"type"`
	UserID     uuid.UUID    `json:"user_id"`
	UserName   string       `json:"user_name,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
	Credits    int64        `json:"credits"` // signed change to the user's balance
	ProductID  *uuid.UUID   `json:"product_id,omitempty"`
	ItemName   string       `json:"item_name,omitempty"`
	GrantID    *uuid.UUID   `json:"grant_id,omitempty"`
	LotID      *uuid.UUID   `json:"lot_id,omitempty"`
	PurchaseID *uuid.UUID   `json:"purchase_id,omitempty"`
	Kind       PurchaseKind `json:"kind,omitempty"`
	ExpiryDate *time.Time   `json:"expiry_date,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}

func ofType(evs []Event, typ string) []Event {
	var out []Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// PurchaseResult is returned by product purchase and renewal
type PurchaseResult struct {
	Grant    ProductGrant
	Consumed []Consumption
	Balance  int64
	Events   []Event
}

// ApprovalResult is returned when an admin resolves a pending purchase
type ApprovalResult struct {
	Purchase PendingPurchase
	Lot      *CreditLot    // credit package approvals
	Grant    *ProductGrant // product approvals
	Events   []Event
}

// SweepResult summarizes one expiry sweep
type SweepResult struct {
	ExpiredLots    int
	ExpiredCredits int64
	Renewed        []ProductGrant
	Expired        []ProductGrant
	Events         []Event
}

// Changed reports whether the sweep mutated anything
func (r *SweepResult) Changed() bool {
	return r.ExpiredLots > 0 || len(r.Renewed) > 0 || len(r.Expired) > 0
}
