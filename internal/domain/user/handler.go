package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/creditshop/creditshop-api/internal/middleware"
	"github.com/creditshop/creditshop-api/internal/pkg/errorhandler"
	"github.com/creditshop/creditshop-api/internal/pkg/response"
	"github.com/creditshop/creditshop-api/internal/pkg/validator"
)

// Handler handles user HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates user handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /me router; the caller applies auth middleware
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Me)
	r.Put("/phone", h.UpdatePhone)
	return r
}

// Me handles GET /me
// @Summary Start a session: sync profile, run the expiry sweep, return balance
// @Tags user
// @Success 200 {object} response.Response{data=SessionResponse}
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp, err := h.service.StartSession(ctx, middleware.GetUserID(ctx), middleware.GetUserName(ctx), Role(middleware.GetRole(ctx)))
	if err != nil {
		errorhandler.HandleInternal(ctx, w, err)
		return
	}
	response.OK(w, resp)
}

// UpdatePhone handles PUT /me/phone
func (h *Handler) UpdatePhone(w http.ResponseWriter, r *http.Request) {
	var req UpdatePhoneRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	u, err := h.service.UpdatePhone(r.Context(), middleware.GetUserID(r.Context()), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(w, "Open a session first")
			return
		}
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}
	response.OK(w, ProfileFromEntity(u))
}
