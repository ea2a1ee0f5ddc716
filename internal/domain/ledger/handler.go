package ledger

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/middleware"
	"github.com/creditshop/creditshop-api/internal/pkg/errorhandler"
	"github.com/creditshop/creditshop-api/internal/pkg/response"
)

// Downloads issues short-lived links to product assets
type Downloads interface {
	DownloadURL(ctx context.Context, productID uuid.UUID, ttl time.Duration) (string, error)
}

// Handler handles ledger HTTP requests
type Handler struct {
	service     *Service
	downloads   Downloads
	downloadTTL time.Duration
}

// NewHandler creates ledger handler
func NewHandler(service *Service, downloads Downloads, downloadTTL time.Duration) *Handler {
	if downloadTTL <= 0 {
		downloadTTL = 15 * time.Minute
	}
	return &Handler{service: service, downloads: downloads, downloadTTL: downloadTTL}
}

// UserRoutes mounts the authenticated user's ledger endpoints
func (h *Handler) UserRoutes(r chi.Router) {
	r.Get("/credits", h.GetCredits)
	r.Get("/credits/history", h.GetHistory)
	r.Post("/products/{id}/purchase", h.PurchaseProduct)
	r.Post("/products/{id}/renew", h.RenewProduct)
	r.Post("/products/{id}/request", h.RequestProduct)
	r.Get("/grants", h.ListGrants)
	r.Get("/grants/{id}/download", h.Download)
	r.Post("/packages/{id}/purchase", h.PurchasePackage)
	r.Get("/purchases", h.ListPurchases)
}

// AdminRoutes mounts purchase review and user ledger tools; the caller applies admin middleware
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/purchases", h.ListPurchases)
	r.Post("/purchases/{id}/approve", h.Approve)
	r.Post("/purchases/{id}/reject", h.Reject)
	r.Post("/users/{id}/sweep", h.SweepUser)
	r.Get("/users/{id}/credits", h.GetUserCredits)
}

func actorFrom(r *http.Request) Actor {
	ctx := r.Context()
	return Actor{
		UserID: middleware.GetUserID(ctx),
		Role:   middleware.GetRole(ctx),
		Name:   middleware.GetUserName(ctx),
	}
}

// GetCredits handles GET /credits
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	h.writeCredits(w, r, middleware.GetUserID(r.Context()))
}

// GetUserCredits handles GET /admin/users/{id}/credits
func (h *Handler) GetUserCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "Invalid user ID")
	if !ok {
		return
	}
	h.writeCredits(w, r, userID)
}

func (h *Handler) writeCredits(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	lots, err := h.service.Lots(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	total, err := h.service.TotalCredits(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	resp := CreditsResponse{Total: total, Lots: make([]LotResponse, len(lots))}
	for i, l := range lots {
		resp.Lots[i] = LotToResponse(l)
	}
	response.OK(w, resp)
}

// GetHistory handles GET /credits/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			response.BadRequest(w, "Invalid limit")
			return
		}
		limit = v
	}

	records, err := h.service.UsageHistory(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		handleError(w, r, err)
		return
	}

	items := make([]UsageResponse, len(records))
	for i, rec := range records {
		items[i] = UsageToResponse(rec)
	}
	response.OK(w, items)
}

// PurchaseProduct handles POST /products/{id}/purchase
// @Summary Buy product access with credits
// @Tags ledger
// @Success 201 {object} response.Response{data=ProductPurchaseResponse}
// @Failure 409 {object} response.Response
func (h *Handler) PurchaseProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, r, "Invalid product ID")
	if !ok {
		return
	}

	result, err := h.service.PurchaseProduct(r.Context(), actorFrom(r), productID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	response.Created(w, toPurchaseResponse(result))
}

// RenewProduct handles POST /products/{id}/renew
func (h *Handler) RenewProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, r, "Invalid product ID")
	if !ok {
		return
	}

	result, err := h.service.RenewProductAccess(r.Context(), actorFrom(r), productID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	response.OK(w, toPurchaseResponse(result))
}

// RequestProduct handles POST /products/{id}/request
func (h *Handler) RequestProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, r, "Invalid product ID")
	if !ok {
		return
	}

	p, err := h.service.RequestProductPurchase(r.Context(), actorFrom(r), productID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	response.JSON(w, http.StatusAccepted, PurchaseToResponse(*p))
}

// PurchasePackage handles POST /packages/{id}/purchase
// @Summary Request a credit package; credits are issued once an admin approves
// @Tags ledger
// @Success 202 {object} response.Response{data=PurchaseResponse}
func (h *Handler) PurchasePackage(w http.ResponseWriter, r *http.Request) {
	packageID, ok := parseID(w, r, "Invalid package ID")
	if !ok {
		return
	}

	p, err := h.service.PurchaseCreditPackage(r.Context(), actorFrom(r), packageID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	response.JSON(w, http.StatusAccepted, PurchaseToResponse(*p))
}

// ListGrants handles GET /grants
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.Grants(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	response.OK(w, grantsToResponse(grants))
}

// Download handles GET /grants/{id}/download
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	grantID, ok := parseID(w, r, "Invalid grant ID")
	if !ok {
		return
	}

	grant, err := h.service.ActiveGrant(r.Context(), middleware.GetUserID(r.Context()), grantID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	url, err := h.downloads.DownloadURL(r.Context(), grant.ProductID, h.downloadTTL)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, catalog.ErrNoAsset):
			response.NotFound(w, "No downloadable file for this product")
		case errors.Is(err, catalog.ErrStorageDisabled):
			response.Error(w, http.StatusServiceUnavailable, "STORAGE_DISABLED", "File storage is not configured")
		default:
			errorhandler.HandleInternal(r.Context(), w, err)
		}
		return
	}

	response.OK(w, DownloadResponse{URL: url, ExpiresAt: time.Now().Add(h.downloadTTL).UTC()})
}

// ListPurchases handles GET /purchases and GET /admin/purchases
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := PurchaseFilter{Status: PurchaseStatus(q.Get("status"))}
	switch filter.Status {
	case "", PurchasePending, PurchaseApproved, PurchaseRejected:
	default:
		response.BadRequest(w, "Invalid status")
		return
	}
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "Invalid user ID")
			return
		}
		filter.UserID = &id
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		filter.Limit = l
	}
	if o, err := strconv.Atoi(q.Get("offset")); err == nil && o >= 0 {
		filter.Offset = o
	}

	purchases, err := h.service.ListPurchases(r.Context(), actorFrom(r), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}

	items := make([]PurchaseResponse, len(purchases))
	for i, p := range purchases {
		items[i] = PurchaseToResponse(p)
	}
	response.OK(w, items)
}

// Approve handles POST /admin/purchases/{id}/approve
// @Summary Approve a pending purchase
// @Tags admin
// @Success 200 {object} response.Response{data=ApprovalResponse}
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	purchaseID, ok := parseID(w, r, "Invalid purchase ID")
	if !ok {
		return
	}

	result, err := h.service.ApprovePendingPurchase(r.Context(), actorFrom(r), purchaseID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	resp := ApprovalResponse{Purchase: PurchaseToResponse(result.Purchase)}
	if result.Lot != nil {
		lot := LotToResponse(*result.Lot)
		resp.Lot = &lot
	}
	if result.Grant != nil {
		g := GrantToResponse(*result.Grant)
		resp.Grant = &g
	}
	response.OK(w, resp)
}

// Reject handles POST /admin/purchases/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	purchaseID, ok := parseID(w, r, "Invalid purchase ID")
	if !ok {
		return
	}

	p, err := h.service.RejectPendingPurchase(r.Context(), actorFrom(r), purchaseID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	response.OK(w, PurchaseToResponse(*p))
}

// SweepUser handles POST /admin/users/{id}/sweep
func (h *Handler) SweepUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(w, r, "Invalid user ID")
	if !ok {
		return
	}

	result, err := h.service.SweepExpiry(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	total, err := h.service.TotalCredits(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}

	response.OK(w, SweepResponse{
		ExpiredLots:    result.ExpiredLots,
		ExpiredCredits: result.ExpiredCredits,
		Renewed:        grantsToResponse(result.Renewed),
		Expired:        grantsToResponse(result.Expired),
		Total:          total,
	})
}

func toPurchaseResponse(res *PurchaseResult) ProductPurchaseResponse {
	return ProductPurchaseResponse{
		Grant:    GrantToResponse(res.Grant),
		Consumed: res.Consumed,
		Balance:  res.Balance,
	}
}

func parseID(w http.ResponseWriter, r *http.Request, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, msg)
		return uuid.Nil, false
	}
	return id, true
}

// handleError maps ledger errors onto the response envelope
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrInsufficientCredits):
		response.InsufficientCredits(w, "Not enough credits")
	case errors.Is(err, ErrUnauthorized):
		response.Forbidden(w, "Admin access required")
	case errors.Is(err, ErrInvalidState):
		response.InvalidState(w, err.Error())
	case errors.Is(err, ErrBusy):
		response.Locked(w)
	default:
		errorhandler.HandleInternal(r.Context(), w, err)
	}
}
