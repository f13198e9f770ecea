package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/groundplane/groundplane/pkg/tenant"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

var validate = validator.New()

// TenantHandler handles tenant management API endpoints.
//
// The store it writes through is the change-trigger decorated one, so every
// successful mutation also publishes an event for the bootstrap consumer.
type TenantHandler struct {
	store             store.Store
	defaultTemplateID string
}

// NewTenantHandler creates a new TenantHandler. defaultTemplateID is applied
// to create requests that do not name a template.
func NewTenantHandler(s store.Store, defaultTemplateID string) *TenantHandler {
	return &TenantHandler{store: s, defaultTemplateID: defaultTemplateID}
}

// CreateTenantRequest is the request body for POST /api/v1/tenants.
//
// Status is not client-settable: new tenants always start in the created
// state and advance through the provisioning state machine.
type CreateTenantRequest struct {
	ID         string `json:"id,omitempty" validate:"omitempty,max=36"`
	Name       string `json:"name" validate:"required,max=255"`
	TemplateID string `json:"template_id,omitempty" validate:"omitempty,max=255"`
}

// UpdateTenantRequest is the request body for PUT /api/v1/tenants/{id}.
// Only provided fields are changed.
type UpdateTenantRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	TemplateID *string `json:"template_id,omitempty" validate:"omitempty,min=1,max=255"`
}

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TemplateID string    `json:"template_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Create handles POST /api/v1/tenants.
// Persists a new tenant; the change trigger publishes the create event that
// the bootstrap consumer provisions from.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := validate.Struct(req); err != nil {
		UnprocessableEntity(w, validationDetail(err))
		return
	}

	templateID := req.TemplateID
	if templateID == "" {
		templateID = h.defaultTemplateID
	}
	if templateID == "" {
		UnprocessableEntity(w, "No template id given and no default template configured")
		return
	}

	t := &tenant.Tenant{
		ID:         req.ID,
		Name:       req.Name,
		TemplateID: templateID,
		Status:     tenant.StatusCreated,
	}

	if _, err := h.store.CreateTenant(r.Context(), t); err != nil {
		switch {
		case errors.Is(err, tenant.ErrDuplicateTenant):
			Conflict(w, "Tenant already exists")
		case errors.Is(err, tenant.ErrInvalidTenant):
			UnprocessableEntity(w, err.Error())
		default:
			InternalServerError(w, "Failed to create tenant")
		}
		return
	}

	WriteJSONCreated(w, tenantToResponse(t))
}

// List handles GET /api/v1/tenants.
// Lists all tenants ordered by name.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list tenants")
		return
	}

	response := make([]TenantResponse, len(tenants))
	for i, t := range tenants {
		response[i] = tenantToResponse(t)
	}

	WriteJSONOK(w, response)
}

// Get handles GET /api/v1/tenants/{id}.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Tenant id is required")
		return
	}

	t, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		HandleStoreError(w, err)
		return
	}

	WriteJSONOK(w, tenantToResponse(t))
}

// Update handles PUT /api/v1/tenants/{id}.
// Updates a tenant's operator-facing fields; provisioning status is owned by
// the bootstrap consumer and cannot be set here.
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Tenant id is required")
		return
	}

	var req UpdateTenantRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := validate.Struct(req); err != nil {
		UnprocessableEntity(w, validationDetail(err))
		return
	}

	t, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			NotFound(w, "Tenant not found")
			return
		}
		InternalServerError(w, "Failed to get tenant")
		return
	}

	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.TemplateID != nil {
		t.TemplateID = *req.TemplateID
	}

	if err := h.store.UpdateTenant(r.Context(), t); err != nil {
		switch {
		case errors.Is(err, tenant.ErrDuplicateTenant):
			Conflict(w, "Tenant name already taken")
		case errors.Is(err, tenant.ErrTenantNotFound):
			NotFound(w, "Tenant not found")
		default:
			InternalServerError(w, "Failed to update tenant")
		}
		return
	}

	WriteJSONOK(w, tenantToResponse(t))
}

// Delete handles DELETE /api/v1/tenants/{id}.
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		BadRequest(w, "Tenant id is required")
		return
	}

	if err := h.store.DeleteTenant(r.Context(), id); err != nil {
		HandleStoreError(w, err)
		return
	}

	WriteNoContent(w)
}

// tenantToResponse converts a Tenant to a TenantResponse for API output.
func tenantToResponse(t *tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:         t.ID,
		Name:       t.Name,
		TemplateID: t.TemplateID,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// validationDetail flattens a validator error into a problem detail string.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		fields[i] = fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag())
	}
	return "Validation failed: " + strings.Join(fields, ", ")
}
