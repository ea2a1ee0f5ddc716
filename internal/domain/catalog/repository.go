package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository persists the product catalog and credit packages.
type Repository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	ListPackages(ctx context.Context) ([]Package, error)
	GetPackage(ctx context.Context, id uuid.UUID) (*Package, error)
	CreatePackage(ctx context.Context, p *Package) error
	UpdatePackage(ctx context.Context, p *Package) error
	DeletePackage(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates a Postgres-backed catalog repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const productColumns = `id, name, description, category, price, expiry_days, image_key, thumb_key, asset_key, featured, created_at, updated_at`

func (r *repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + productColumns + ` FROM digital_products
		WHERE ($1 = '' OR category = $1) AND (NOT $2 OR featured)
		ORDER BY featured DESC, name ASC`

	products := []Product{}
	if err := r.db.SelectContext(ctx, &products, query, filter.Category, filter.FeaturedOnly); err != nil {
		return nil, fmt.Errorf("%w: list products: %v", ErrInternal, err)
	}
	return products, nil
}

func (r *repository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Product
	err := r.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM digital_products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get product: %v", ErrInternal, err)
	}
	return &p, nil
}

func (r *repository) CreateProduct(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO digital_products (` + productColumns + `)
		VALUES (:id, :name, :description, :category, :price, :expiry_days, :image_key, :thumb_key, :asset_key, :featured, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("%w: create product: %v", ErrInternal, err)
	}
	return nil
}

func (r *repository) UpdateProduct(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE digital_products SET
			name = :name, description = :description, category = :category,
			price = :price, expiry_days = :expiry_days,
			image_key = :image_key, thumb_key = :thumb_key, asset_key = :asset_key,
			featured = :featured, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("%w: update product: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM digital_products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete product: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

const packageColumns = `id, name, description, credits, price, expiry_days, featured, created_at, updated_at`

func (r *repository) ListPackages(ctx context.Context) ([]Package, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	packages := []Package{}
	err := r.db.SelectContext(ctx, &packages, `SELECT `+packageColumns+` FROM credit_packages ORDER BY credits ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list packages: %v", ErrInternal, err)
	}
	return packages, nil
}

func (r *repository) GetPackage(ctx context.Context, id uuid.UUID) (*Package, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Package
	err := r.db.GetContext(ctx, &p, `SELECT `+packageColumns+` FROM credit_packages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get package: %v", ErrInternal, err)
	}
	return &p, nil
}

func (r *repository) CreatePackage(ctx context.Context, p *Package) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO credit_packages (` + packageColumns + `)
		VALUES (:id, :name, :description, :credits, :price, :expiry_days, :featured, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("%w: create package: %v", ErrInternal, err)
	}
	return nil
}

func (r *repository) UpdatePackage(ctx context.Context, p *Package) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE credit_packages SET
			name = :name, description = :description, credits = :credits,
			price = :price, expiry_days = :expiry_days, featured = :featured,
			updated_at = :updated_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("%w: update package: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPackageNotFound
	}
	return nil
}

func (r *repository) DeletePackage(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM credit_packages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete package: %v", ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPackageNotFound
	}
	return nil
}
