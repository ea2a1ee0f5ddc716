package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditsResponse is the user's balance with the lots behind it
type CreditsResponse struct {
	Total int64         `json:"total"`
	Lots  []LotResponse `json:"lots"`
}

type LotResponse struct {
	ID           uuid.UUID `json:"id"`
	Amount       int64     `json:"amount"`
	PurchaseDate time.Time `json:"purchase_date"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Status       LotStatus `json:"status"`
	PackageID    uuid.UUID `json:"package_id"`
	PackageName  string    `json:"package_name"`
}

func LotToResponse(l CreditLot) LotResponse {
	return LotResponse{
		ID:           l.ID,
		Amount:       l.Amount,
		PurchaseDate: l.PurchaseDate,
		ExpiryDate:   l.ExpiryDate,
		Status:       l.Status,
		PackageID:    l.SourcePackageID,
		PackageName:  l.PackageName,
	}
}

type GrantResponse struct {
	ID           uuid.UUID   `json:"id"`
	ProductID    uuid.UUID   `json:"product_id"`
	ProductName  string      `json:"product_name"`
	PricePaid    int64       `json:"price_paid"`
	PurchaseDate time.Time   `json:"purchase_date"`
	ExpiryDate   time.Time   `json:"expiry_date"`
	Status       GrantStatus `json:"status"`
}

func GrantToResponse(g ProductGrant) GrantResponse {
	return GrantResponse{
		ID:           g.ID,
		ProductID:    g.ProductID,
		ProductName:  g.ProductName,
		PricePaid:    g.PricePaid,
		PurchaseDate: g.PurchaseDate,
		ExpiryDate:   g.ExpiryDate,
		Status:       g.Status,
	}
}

type UsageResponse struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Amount      int64     `json:"amount"`
	ProductName *string   `json:"product_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func UsageToResponse(u UsageRecord) UsageResponse {
	resp := UsageResponse{
		ID:        u.ID,
		Action:    u.Action,
		Amount:    u.Amount,
		CreatedAt: u.CreatedAt,
	}
	if u.ProductName.Valid {
		resp.ProductName = &u.ProductName.String
	}
	return resp
}

type PurchaseResponse struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Kind           PurchaseKind    `json:"kind"`
	ItemID         uuid.UUID       `json:"item_id"`
	ItemName       string          `json:"item_name"`
	MonetaryAmount decimal.Decimal `json:"monetary_amount"`
	Status         PurchaseStatus  `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

func PurchaseToResponse(p PendingPurchase) PurchaseResponse {
	resp := PurchaseResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		Kind:           p.Kind,
		ItemID:         p.ItemID,
		ItemName:       p.ItemName,
		MonetaryAmount: p.MonetaryAmount,
		Status:         p.Status,
		CreatedAt:      p.CreatedAt,
	}
	if p.ResolvedAt.Valid {
		resp.ResolvedAt = &p.ResolvedAt.Time
	}
	return resp
}

// ProductPurchaseResponse is returned by purchase and renewal
type ProductPurchaseResponse struct {
	Grant    GrantResponse `json:"grant"`
	Consumed []Consumption `json:"consumed"`
	Balance  int64         `json:"balance"`
}

type ApprovalResponse struct {
	Purchase PurchaseResponse `json:"purchase"`
	Lot      *LotResponse     `json:"lot,omitempty"`
	Grant    *GrantResponse   `json:"grant,omitempty"`
}

type SweepResponse struct {
	ExpiredLots    int             `json:"expired_lots"`
	ExpiredCredits int64           `json:"expired_credits"`
	Renewed        []GrantResponse `json:"renewed"`
	Expired        []GrantResponse `json:"expired"`
	Total          int64           `json:"total"`
}

type DownloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func grantsToResponse(gs []ProductGrant) []GrantResponse {
	out := make([]GrantResponse, len(gs))
	for i, g := range gs {
		out[i] = GrantToResponse(g)
	}
	return out
}
