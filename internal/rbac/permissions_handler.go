package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/open-audit/open-audit/internal/platform/httpx"
	"github.com/open-audit/open-audit/internal/shared"
)

// PermissionsHandler manages the permission registry endpoints.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds a PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSettingsRead))
		r.Get("/", h.listPermissions)
		r.Get("/{name}/roles", h.rolesWithPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSettingsUpdate))
		r.Post("/", h.definePermission)
		r.Delete("/{name}", h.deletePermission)
	})
}

type permissionResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		respondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, perm := range perms {
		out = append(out, toPermissionResponse(perm))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

type definePermissionRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"required"`
}

func (h *PermissionsHandler) definePermission(w http.ResponseWriter, r *http.Request) {
	var req definePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.DefinePermission(r.Context(), req.Name, req.Description, req.Category)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

func (h *PermissionsHandler) deletePermission(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := h.service.DeletePermission(r.Context(), name, cascade); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) rolesWithPermission(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.RolesWithPermission(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func toPermissionResponse(perm Permission) permissionResponse {
	return permissionResponse{
		ID:          perm.ID,
		Name:        perm.Name,
		Description: perm.Description,
		Category:    perm.Category,
		CreatedAt:   perm.CreatedAt,
	}
}

// respondError maps RBAC sentinel errors onto RFC7807 responses.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate Name", err.Error())
	case errors.Is(err, ErrPermissionInUse):
		httpx.Problem(w, http.StatusConflict, "Permission In Use", err.Error())
	case errors.Is(err, ErrUnknownPermission), errors.Is(err, ErrUnknownRole), errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrSystemRoleProtected):
		httpx.Problem(w, http.StatusForbidden, "System Role Protected", err.Error())
	case errors.Is(err, ErrReservedName):
		httpx.Problem(w, http.StatusBadRequest, "Reserved Name", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
