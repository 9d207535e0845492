// catalogs.go — справочники: отделы, гранты, поставщики.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

type nameRequest struct {
	Name string `json:"name"`
}

type departmentResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at"`
}

type grantRequest struct {
	Name        string  `json:"name"`
	Code        *string `json:"code"`
	Description *string `json:"description"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
}

type grantResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Code        *string `json:"code,omitempty"`
	Description *string `json:"description,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type vendorResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func mapDepartment(d *model.Department) departmentResponse {
	return departmentResponse{ID: d.ID, Name: d.Name, Slug: d.Slug, CreatedAt: formatTime(d.CreatedAt)}
}

func mapGrant(g *model.Grant) grantResponse {
	return grantResponse{
		ID:          g.ID,
		Name:        g.Name,
		Code:        g.Code,
		Description: g.Description,
		StartDate:   formatDatePtr(g.StartDate),
		EndDate:     formatDatePtr(g.EndDate),
		CreatedAt:   formatTime(g.CreatedAt),
		UpdatedAt:   formatTime(g.UpdatedAt),
	}
}

func mapVendor(v *model.Vendor) vendorResponse {
	return vendorResponse{ID: v.ID, Name: v.Name, IsActive: v.IsActive, CreatedAt: formatTime(v.CreatedAt)}
}

func (req grantRequest) input() (service.GrantInput, error) {
	start, err := parseOptionalDate("start_date", req.StartDate)
	if err != nil {
		return service.GrantInput{}, err
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		return service.GrantInput{}, err
	}
	return service.GrantInput{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

// parseOptionalDate разбирает YYYY-MM-DD; nil и пустая строка дают nil.
func parseOptionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %q не является датой YYYY-MM-DD", field, *raw)
	}
	return &d, nil
}

// ListDepartments — GET /api/v1/departments.
func (h *APIHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Catalogs.ListDepartments(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения отделов")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[departmentResponse]{Items: mapAll(items, mapDepartment)})
}

// CreateDepartment — POST /api/v1/departments.
// Slug строится из имени и больше не меняется.
func (h *APIHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := h.svc.Catalogs.CreateDepartment(r.Context(), actor, req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания отдела")
		return
	}
	writeJSON(w, http.StatusCreated, mapDepartment(d))
}

// GetDepartment — GET /api/v1/departments/{departmentID}.
func (h *APIHandler) GetDepartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "departmentID")
	if !ok {
		return
	}
	d, err := h.svc.Catalogs.GetDepartment(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения отдела")
		return
	}
	writeJSON(w, http.StatusOK, mapDepartment(d))
}

// RenameDepartment — PATCH /api/v1/departments/{departmentID}.
func (h *APIHandler) RenameDepartment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "departmentID")
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := h.svc.Catalogs.RenameDepartment(r.Context(), actor, id, req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка переименования отдела")
		return
	}
	writeJSON(w, http.StatusOK, mapDepartment(d))
}

// ListGrants — GET /api/v1/grants.
func (h *APIHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Catalogs.ListGrants(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения грантов")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[grantResponse]{Items: mapAll(items, mapGrant)})
}

// CreateGrant — POST /api/v1/grants.
func (h *APIHandler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	g, err := h.svc.Catalogs.CreateGrant(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания гранта")
		return
	}
	writeJSON(w, http.StatusCreated, mapGrant(g))
}

// UpdateGrant — PUT /api/v1/grants/{grantID}.
func (h *APIHandler) UpdateGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}
	var req grantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	g, err := h.svc.Catalogs.UpdateGrant(r.Context(), actor, id, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения гранта")
		return
	}
	writeJSON(w, http.StatusOK, mapGrant(g))
}

// DeleteGrant — DELETE /api/v1/grants/{grantID} (мягкое удаление).
func (h *APIHandler) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "grantID")
	if !ok {
		return
	}

	if err := h.svc.Catalogs.DeleteGrant(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления гранта")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVendors — GET /api/v1/vendors[?active_only=true].
func (h *APIHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Catalogs.ListVendors(r.Context(), queryBool(r, "active_only", false))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения поставщиков")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[vendorResponse]{Items: mapAll(items, mapVendor)})
}

// CreateVendor — POST /api/v1/vendors.
func (h *APIHandler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.svc.Catalogs.CreateVendor(r.Context(), actor, req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания поставщика")
		return
	}
	writeJSON(w, http.StatusCreated, mapVendor(v))
}
