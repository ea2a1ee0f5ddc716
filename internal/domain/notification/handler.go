package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditshop/creditshop-api/internal/middleware"
	"github.com/creditshop/creditshop-api/internal/pkg/errorhandler"
	"github.com/creditshop/creditshop-api/internal/pkg/jwt"
	"github.com/creditshop/creditshop-api/internal/pkg/response"
	"github.com/creditshop/creditshop-api/internal/pkg/secret"
	"github.com/creditshop/creditshop-api/internal/pkg/validator"
)

// Handler handles notification HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates notification handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func viewer(r *http.Request) Viewer {
	return Viewer{
		UserID:  middleware.GetUserID(r.Context()),
		IsAdmin: middleware.GetRole(r.Context()) == jwt.RoleAdmin,
	}
}

// List handles GET /notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	notifications, err := h.service.List(r.Context(), viewer(r), limit, offset)
	if err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}

	items := make([]*NotificationResponse, len(notifications))
	for i, n := range notifications {
		items[i] = NotificationResponseFromEntity(n)
	}

	response.OK(w, items)
}

// GetUnreadCount handles GET /notifications/unread-count
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.GetUnreadCount(r.Context(), viewer(r))
	if err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}
	response.OK(w, UnreadCountResponse{UnreadCount: count})
}

// MarkAsRead handles POST /notifications/{id}/read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid notification ID")
		return
	}

	if err := h.service.MarkAsRead(r.Context(), viewer(r), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "Notification not found")
			return
		}
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// MarkAllAsRead handles POST /notifications/read-all
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkAllAsRead(r.Context(), viewer(r)); err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}

	response.OK(w, map[string]string{"status": "ok"})
}

// Routes returns notification router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.List)
	r.Get("/unread-count", h.GetUnreadCount)
	r.Post("/{id}/read", h.MarkAsRead)
	r.Post("/read-all", h.MarkAllAsRead)

	return r
}

// AdminRoutes mounts template and messaging settings; the caller applies admin middleware
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/notification-templates", h.ListTemplates)
	r.Put("/notification-templates/{key}", h.UpdateTemplate)
	r.Put("/messaging/credential", h.SetCredential)
}

// ListTemplates handles GET /admin/notification-templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context())
	if err != nil {
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}
	response.OK(w, templates)
}

// UpdateTemplate handles PUT /admin/notification-templates/{key}
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req UpdateTemplateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	t, err := h.service.UpdateTemplate(r.Context(), chi.URLParam(r, "key"), &req)
	if err != nil {
		if errors.Is(err, ErrUnknownTemplate) {
			response.NotFound(w, "Template not found")
			return
		}
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}
	response.OK(w, t)
}

// SetCredential handles PUT /admin/messaging/credential
func (h *Handler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req SetCredentialRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	if err := h.service.SetRelayCredential(r.Context(), req.Credential); err != nil {
		if errors.Is(err, secret.ErrNoKey) {
			response.Error(w, http.StatusServiceUnavailable, "SECRETS_DISABLED", "Secrets key is not configured")
			return
		}
		errorhandler.HandleInternal(r.Context(), w, err)
		return
	}
	response.NoContent(w)
}
