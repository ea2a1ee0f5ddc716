package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/pkg/imaging"
	"github.com/creditshop/creditshop-api/internal/pkg/storage"
)

// Service manages the catalog and its stored assets.
// Storage is optional; uploads and downloads fail with ErrStorageDisabled without it.
type Service struct {
	repo   Repository
	store  storage.Storage
	images *imaging.Processor
	now    func() time.Time
}

// NewService creates catalog service
func NewService(repo Repository, store storage.Storage, images *imaging.Processor) *Service {
	if images == nil {
		images = imaging.NewProcessor(imaging.DefaultConfig())
	}
	return &Service{
		repo:   repo,
		store:  store,
		images: images,
		now:    time.Now,
	}
}

func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct adds a product to the catalog
func (s *Service) CreateProduct(ctx context.Context, req *CreateProductRequest) (*Product, error) {
	now := s.now().UTC()
	p := &Product{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		ExpiryDays:  req.ExpiryDays,
		Featured:    req.Featured,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	log.Info().Str("product_id", p.ID.String()).Int64("price", p.Price).Msg("product created")
	return p, nil
}

// UpdateProduct applies a partial update. Existing grants keep their snapshot terms.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, req *UpdateProductRequest) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.ExpiryDays != nil {
		p.ExpiryDays = *req.ExpiryDays
	}
	if req.Featured != nil {
		p.Featured = *req.Featured
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct removes the product row and then its stored objects
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.removeObjects(ctx, p.ImageKey, p.ThumbKey, p.AssetKey)
	log.Info().Str("product_id", id.String()).Msg("product deleted")
	return nil
}

// UploadCover stores a resized cover image and thumbnail for the product
func (s *Service) UploadCover(ctx context.Context, id uuid.UUID, r io.Reader) (*Product, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	data, _, err := storage.ValidateFile(r, storage.CategoryCover)
	if err != nil {
		return nil, err
	}
	img, err := s.images.Process(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	origKey, thumbKey := imaging.CoverPaths(p.ID.String(), img.ContentType)
	if err := s.store.Put(ctx, origKey, bytes.NewReader(img.Original), img.ContentType); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, thumbKey, bytes.NewReader(img.Thumbnail), img.ContentType); err != nil {
		return nil, err
	}

	oldImage, oldThumb := p.ImageKey, p.ThumbKey
	p.ImageKey = sql.NullString{String: origKey, Valid: true}
	p.ThumbKey = sql.NullString{String: thumbKey, Valid: true}
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}

	// Keys are stable per content type, so only a format change leaves stale objects
	if oldImage.String != origKey {
		s.removeObjects(ctx, oldImage, oldThumb)
	}
	return p, nil
}

// UploadAsset stores the downloadable file for the product
func (s *Service) UploadAsset(ctx context.Context, id uuid.UUID, r io.Reader) (*Product, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	data, mimeType, err := storage.ValidateFile(r, storage.CategoryAsset)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("products/%s/assets/%s%s", p.ID, uuid.New(), storage.GetExtensionForMime(mimeType))
	if err := s.store.Put(ctx, key, bytes.NewReader(data), mimeType); err != nil {
		return nil, err
	}

	old := p.AssetKey
	p.AssetKey = sql.NullString{String: key, Valid: true}
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.removeObjects(ctx, old)
	log.Info().Str("product_id", p.ID.String()).Int("size", len(data)).Msg("product asset uploaded")
	return p, nil
}

// DownloadURL returns a presigned link to the product's asset
func (s *Service) DownloadURL(ctx context.Context, productID uuid.UUID, ttl time.Duration) (string, error) {
	if s.store == nil {
		return "", ErrStorageDisabled
	}
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	if !p.HasAsset() {
		return "", ErrNoAsset
	}
	return s.store.PresignGet(ctx, p.AssetKey.String, ttl)
}

func (s *Service) ListPackages(ctx context.Context) ([]Package, error) {
	return s.repo.ListPackages(ctx)
}

func (s *Service) GetPackage(ctx context.Context, id uuid.UUID) (*Package, error) {
	return s.repo.GetPackage(ctx, id)
}

// CreatePackage adds a credit package
func (s *Service) CreatePackage(ctx context.Context, req *CreatePackageRequest) (*Package, error) {
	now := s.now().UTC()
	p := &Package{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Credits:     req.Credits,
		Price:       req.Price.Round(2),
		ExpiryDays:  req.ExpiryDays,
		Featured:    req.Featured,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreatePackage(ctx, p); err != nil {
		return nil, err
	}

	log.Info().Str("package_id", p.ID.String()).Int64("credits", p.Credits).Str("price", p.Price.StringFixed(2)).Msg("credit package created")
	return p, nil
}

// UpdatePackage applies a partial update. Issued lots keep their snapshot terms.
func (s *Service) UpdatePackage(ctx context.Context, id uuid.UUID, req *UpdatePackageRequest) (*Package, error) {
	p, err := s.repo.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Credits != nil {
		p.Credits = *req.Credits
	}
	if req.Price != nil {
		p.Price = req.Price.Round(2)
	}
	if req.ExpiryDays != nil {
		p.ExpiryDays = *req.ExpiryDays
	}
	if req.Featured != nil {
		p.Featured = *req.Featured
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdatePackage(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePackage(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeletePackage(ctx, id)
}

// ToResponse builds the public product view with object URLs resolved
func (s *Service) ToResponse(p *Product) ProductResponse {
	resp := ProductResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		ExpiryDays:  p.ExpiryDays,
		HasAsset:    p.HasAsset(),
		Featured:    p.Featured,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if s.store != nil {
		if p.ImageKey.Valid {
			resp.ImageURL = s.store.GetURL(p.ImageKey.String)
		}
		if p.ThumbKey.Valid {
			resp.ThumbnailURL = s.store.GetURL(p.ThumbKey.String)
		}
	}
	return resp
}

func (s *Service) removeObjects(ctx context.Context, keys ...sql.NullString) {
	if s.store == nil {
		return
	}
	for _, k := range keys {
		if !k.Valid || k.String == "" {
			continue
		}
		if err := s.store.Delete(ctx, k.String); err != nil {
			log.Warn().Err(err).Str("key", k.String).Msg("failed to delete stored object")
		}
	}
}
