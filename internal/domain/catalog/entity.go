package catalog

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a digital product sold for credits with time-limited access.
type Product struct {
	ID          uuid.UUID      `db:"id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Category    string         `db:"category"`
	Price       int64          `db:"price"` // credits
	ExpiryDays  int            `db:"expiry_days"`
	ImageKey    sql.NullString `db:"image_key"`
	ThumbKey    sql.NullString `db:"thumb_key"`
	AssetKey    sql.NullString `db:"asset_key"`
	Featured    bool           `db:"featured"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// HasAsset reports whether a downloadable file was uploaded.
func (p *Product) HasAsset() bool {
	return p.AssetKey.Valid && p.AssetKey.String != ""
}

// Package is a bundle of credits bought with real money.
type Package struct {
	ID          uuid.UUID       `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Credits     int64           `db:"credits"`
	Price       decimal.Decimal `db:"price"`
	ExpiryDays  int             `db:"expiry_days"`
	Featured    bool            `db:"featured"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Category     string
	FeaturedOnly bool
}
