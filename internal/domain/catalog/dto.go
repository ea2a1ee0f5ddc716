package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateProductRequest is the admin payload for a new product
type CreateProductRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Category    string `json:"category" validate:"required,category"`
	Price       int64  `json:"price" validate:"gte=0"`
	ExpiryDays  int    `json:"expiry_days" validate:"required,gte=1,lte=3650"`
	Featured    bool   `json:"featured"`
}

// UpdateProductRequest patches a product; nil fields are left unchanged
type UpdateProductRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Category    *string `json:"category" validate:"omitempty,category"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	ExpiryDays  *int    `json:"expiry_days" validate:"omitempty,gte=1,lte=3650"`
	Featured    *bool   `json:"featured"`
}

// CreatePackageRequest is the admin payload for a new credit package
type CreatePackageRequest struct {
	Name        string          `json:"name" validate:"required,min=2,max=100"`
	Description string          `json:"description" validate:"max=1000"`
	Credits     int64           `json:"credits" validate:"required,gte=1"`
	Price       decimal.Decimal `json:"price" validate:"money"`
	ExpiryDays  int             `json:"expiry_days" validate:"required,gte=1,lte=3650"`
	Featured    bool            `json:"featured"`
}

// UpdatePackageRequest patches a credit package; nil fields are left unchanged
type UpdatePackageRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=1000"`
	Credits     *int64           `json:"credits" validate:"omitempty,gte=1"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,money"`
	ExpiryDays  *int             `json:"expiry_days" validate:"omitempty,gte=1,lte=3650"`
	Featured    *bool            `json:"featured"`
}

// ProductResponse is the public view of a product
type ProductResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Price        int64     `json:"price"`
	ExpiryDays   int       `json:"expiry_days"`
	ImageURL     string    `json:"image_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	HasAsset     bool      `json:"has_asset"`
	Featured     bool      `json:"featured"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PackageResponse is the public view of a credit package
type PackageResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Credits     int64           `json:"credits"`
	Price       decimal.Decimal `json:"price"`
	ExpiryDays  int             `json:"expiry_days"`
	Featured    bool            `json:"featured"`
}

// PackageToResponse converts a package to its public view
func PackageToResponse(p *Package) PackageResponse {
	return PackageResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Credits:     p.Credits,
		Price:       p.Price,
		ExpiryDays:  p.ExpiryDays,
		Featured:    p.Featured,
	}
}
