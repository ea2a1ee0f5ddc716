package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditshop/creditshop-api/internal/pkg/errorhandler"
	"github.com/creditshop/creditshop-api/internal/pkg/response"
	"github.com/creditshop/creditshop-api/internal/pkg/storage"
	"github.com/creditshop/creditshop-api/internal/pkg/validator"
)

// Handler serves the public catalog and its admin management endpoints
type Handler struct {
	service *Service
}

// NewHandler creates catalog handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the public catalog
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)
	r.Get("/packages", h.ListPackages)
	return r
}

// AdminRoutes mounts catalog management; the caller applies admin middleware
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/products", h.CreateProduct)
	r.Patch("/products/{id}", h.UpdateProduct)
	r.Delete("/products/{id}", h.DeleteProduct)
	r.Put("/products/{id}/image", h.UploadImage)
	r.Put("/products/{id}/asset", h.UploadAsset)

	r.Post("/packages", h.CreatePackage)
	r.Patch("/packages/{id}", h.UpdatePackage)
	r.Delete("/packages/{id}", h.DeletePackage)
}

// ListProducts handles GET /catalog/products?category=&featured=
// @Summary List products
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response{data=[]ProductResponse}
// @Router /catalog/products [get]
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ProductFilter{
		Category:     q.Get("category"),
		FeaturedOnly: q.Get("featured") == "true",
	}

	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}

	items := make([]ProductResponse, len(products))
	for i := range products {
		items[i] = h.service.ToResponse(&products[i])
	}
	response.OK(w, items)
}

// GetProduct handles GET /catalog/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, h.service.ToResponse(p))
}

// ListPackages handles GET /catalog/packages
// @Summary List credit packages
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response{data=[]PackageResponse}
// @Router /catalog/packages [get]
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.ListPackages(r.Context())
	if err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}

	items := make([]PackageResponse, len(packages))
	for i := range packages {
		items[i] = PackageToResponse(&packages[i])
	}
	response.OK(w, items)
}

// CreateProduct handles POST /admin/products
// @Summary Create product
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateProductRequest true "Product"
// @Success 201 {object} response.Response{data=ProductResponse}
// @Failure 400,403,422 {object} response.Response
// @Router /admin/products [post]
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	p, err := h.service.CreateProduct(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, h.service.ToResponse(p))
}

// UpdateProduct handles PATCH /admin/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), id, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, h.service.ToResponse(p))
}

// DeleteProduct handles DELETE /admin/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	response.NoContent(w)
}

// UploadImage handles PUT /admin/products/{id}/image (multipart field "file")
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, storage.CategoryCover, h.service.UploadCover)
}

// UploadAsset handles PUT /admin/products/{id}/asset (multipart field "file")
func (h *Handler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, storage.CategoryAsset, h.service.UploadAsset)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, category string, store func(context.Context, uuid.UUID, io.Reader) (*Product, error)) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxFileSizes[category]+1<<20)
	file, _, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "Multipart field \"file\" is required")
		return
	}
	defer file.Close()

	p, err := store(r.Context(), id, file)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, h.service.ToResponse(p))
}

// CreatePackage handles POST /admin/packages
// @Summary Create credit package
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreatePackageRequest true "Package"
// @Success 201 {object} response.Response{data=PackageResponse}
// @Failure 400,403,422 {object} response.Response
// @Router /admin/packages [post]
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	p, err := h.service.CreatePackage(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, PackageToResponse(p))
}

// UpdatePackage handles PATCH /admin/packages/{id}
func (h *Handler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdatePackageRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	p, err := h.service.UpdatePackage(r.Context(), id, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, PackageToResponse(p))
}

// DeletePackage handles DELETE /admin/packages/{id}
func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePackage(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		response.NotFound(w, "Product not found")
	case errors.Is(err, ErrPackageNotFound):
		response.NotFound(w, "Credit package not found")
	case errors.Is(err, ErrStorageDisabled):
		response.Error(w, http.StatusServiceUnavailable, "STORAGE_DISABLED", "File storage is not configured")
	case errors.Is(err, storage.ErrFileTooLarge):
		response.Error(w, http.StatusRequestEntityTooLarge, response.CodeBadRequest, "File is too large")
	case errors.Is(err, storage.ErrInvalidMimeType), errors.Is(err, storage.ErrEmptyFile):
		response.BadRequest(w, err.Error())
	default:
		errorhandler.HandleInternal(r.Context(), w, err)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid ID")
		return uuid.Nil, false
	}
	return id, true
}
