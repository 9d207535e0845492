// sites.go — обработчики /api/v1/sites: площадки и их настройки.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

type siteRequest struct {
	Name                       string  `json:"name"`
	IsActive                   *bool   `json:"is_active"`
	EmailCollectionDescription *string `json:"email_collection_description"`
}

type siteResponse struct {
	ID                         int64   `json:"id"`
	Name                       string  `json:"name"`
	IsActive                   bool    `json:"is_active"`
	EmailCollectionDescription *string `json:"email_collection_description,omitempty"`
	CreatedAt                  string  `json:"created_at"`
	UpdatedAt                  string  `json:"updated_at"`
}

type siteConfigResponse struct {
	SiteID int64             `json:"site_id"`
	Values map[string]string `json:"values"`
}

type configValueRequest struct {
	Value string `json:"value"`
}

type configValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func mapSite(s *model.Site) siteResponse {
	return siteResponse{
		ID:                         s.ID,
		Name:                       s.Name,
		IsActive:                   s.IsActive,
		EmailCollectionDescription: s.EmailCollectionDescription,
		CreatedAt:                  formatTime(s.CreatedAt),
		UpdatedAt:                  formatTime(s.UpdatedAt),
	}
}

func (req siteRequest) input() service.SiteInput {
	return service.SiteInput{
		Name:                       req.Name,
		IsActive:                   activeOrDefault(req.IsActive),
		EmailCollectionDescription: req.EmailCollectionDescription,
	}
}

// ListSites — GET /api/v1/sites[?active_only=true].
func (h *APIHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.svc.Sites.List(r.Context(), queryBool(r, "active_only", false))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения площадок")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[siteResponse]{Items: mapAll(sites, mapSite)})
}

// CreateSite — POST /api/v1/sites. Доступ: administrator.
func (h *APIHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req siteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	site, err := h.svc.Sites.Create(r.Context(), actor, req.input())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания площадки")
		return
	}
	writeJSON(w, http.StatusCreated, mapSite(site))
}

// GetSite — GET /api/v1/sites/{siteID}.
func (h *APIHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	site, err := h.svc.Sites.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения площадки")
		return
	}
	writeJSON(w, http.StatusOK, mapSite(site))
}

// UpdateSite — PUT /api/v1/sites/{siteID}.
func (h *APIHandler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	var req siteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	site, err := h.svc.Sites.Update(r.Context(), actor, id, req.input())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения площадки")
		return
	}
	writeJSON(w, http.StatusOK, mapSite(site))
}

// GetSiteConfig — GET /api/v1/sites/{siteID}/config.
func (h *APIHandler) GetSiteConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	cfg, err := h.svc.Sites.Config(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения настроек площадки")
		return
	}
	writeJSON(w, http.StatusOK, siteConfigResponse{SiteID: id, Values: cfg})
}

// SetSiteConfig — PUT /api/v1/sites/{siteID}/config/{key}.
// Значение нормализуется: булевы настройки хранятся как true/false.
func (h *APIHandler) SetSiteConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	var req configValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	value, err := h.svc.Sites.SetConfig(r.Context(), actor, id, key, req.Value)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка сохранения настройки площадки")
		return
	}
	writeJSON(w, http.StatusOK, configValueResponse{Key: key, Value: value})
}

// DeleteSiteConfig — DELETE /api/v1/sites/{siteID}/config/{key}.
func (h *APIHandler) DeleteSiteConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}

	if err := h.svc.Sites.DeleteConfig(r.Context(), actor, id, chi.URLParam(r, "key")); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления настройки площадки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
