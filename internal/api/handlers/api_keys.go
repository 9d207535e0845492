// api_keys.go — обработчики /api/v1/api-keys.
// Секрет ключа возвращается один раз, при создании.
package handlers

import (
	"net/http"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

type apiKeyRequest struct {
	Name             string   `json:"name"`
	Permissions      []string `json:"permissions"`
	AssociatedUserID *int64   `json:"associated_user_id"`
	AssociatedSiteID *int64   `json:"associated_site_id"`
}

type apiKeyResponse struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Permissions      []string `json:"permissions"`
	AssociatedUserID *int64   `json:"associated_user_id,omitempty"`
	AssociatedSiteID *int64   `json:"associated_site_id,omitempty"`
	CreatedAt        string   `json:"created_at"`
	LastUsedAt       *string  `json:"last_used_at,omitempty"`
	RevokedAt        *string  `json:"revoked_at,omitempty"`
}

type apiKeyWithSecretResponse struct {
	apiKeyResponse
	Key string `json:"key"`
}

func mapAPIKey(k *model.APIKey) apiKeyResponse {
	perms := k.Permissions
	if perms == nil {
		perms = []string{}
	}
	return apiKeyResponse{
		ID:               k.ID,
		Name:             k.Name,
		Permissions:      perms,
		AssociatedUserID: k.AssociatedUserID,
		AssociatedSiteID: k.AssociatedSiteID,
		CreatedAt:        formatTime(k.CreatedAt),
		LastUsedAt:       formatTimePtr(k.LastUsedAt),
		RevokedAt:        formatTimePtr(k.RevokedAt),
	}
}

// ListAPIKeys — GET /api/v1/api-keys[?include_revoked=true]. Доступ: administrator.
func (h *APIHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	keys, err := h.svc.APIKeys.List(r.Context(), actor, queryBool(r, "include_revoked", false))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения API-ключей")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[apiKeyResponse]{Items: mapAll(keys, mapAPIKey)})
}

// CreateAPIKey — POST /api/v1/api-keys. Доступ: administrator.
func (h *APIHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req apiKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.svc.APIKeys.Create(r.Context(), actor, service.APIKeyInput{
		Name:             req.Name,
		Permissions:      req.Permissions,
		AssociatedUserID: req.AssociatedUserID,
		AssociatedSiteID: req.AssociatedSiteID,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания API-ключа")
		return
	}
	writeJSON(w, http.StatusCreated, apiKeyWithSecretResponse{
		apiKeyResponse: mapAPIKey(created.APIKey),
		Key:            created.Secret,
	})
}

// GetAPIKey — GET /api/v1/api-keys/{keyID}.
func (h *APIHandler) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "keyID")
	if !ok {
		return
	}

	k, err := h.svc.APIKeys.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения API-ключа")
		return
	}
	writeJSON(w, http.StatusOK, mapAPIKey(k))
}

// RevokeAPIKey — DELETE /api/v1/api-keys/{keyID}.
// Ключ отзывается, запись остаётся для аудита.
func (h *APIHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "keyID")
	if !ok {
		return
	}

	if err := h.svc.APIKeys.Revoke(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, r, err, "Ошибка отзыва API-ключа")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
