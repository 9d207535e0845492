// notifiers.go — обработчики /api/v1/sites/{siteID}/notifiers.
package handlers

import (
	"net/http"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

type notifierRequest struct {
	StaffName  string `json:"staff_name"`
	StaffEmail string `json:"staff_email"`
	IsActive   *bool  `json:"is_active"`
}

type notifierResponse struct {
	ID         int64  `json:"id"`
	SiteID     int64  `json:"site_id"`
	StaffName  string `json:"staff_name"`
	StaffEmail string `json:"staff_email"`
	IsActive   bool   `json:"is_active"`
}

func mapNotifier(n *model.Notifier) notifierResponse {
	return notifierResponse{
		ID:         n.ID,
		SiteID:     n.SiteID,
		StaffName:  n.StaffName,
		StaffEmail: n.StaffEmail,
		IsActive:   n.IsActive,
	}
}

func (req notifierRequest) input() service.NotifierInput {
	return service.NotifierInput{
		StaffName:  req.StaffName,
		StaffEmail: req.StaffEmail,
		IsActive:   activeOrDefault(req.IsActive),
	}
}

// ListNotifiers — GET /api/v1/sites/{siteID}/notifiers.
func (h *APIHandler) ListNotifiers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}

	items, err := h.svc.Notifiers.List(r.Context(), actor, siteID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения получателей уведомлений")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[notifierResponse]{Items: mapAll(items, mapNotifier)})
}

// CreateNotifier — POST /api/v1/sites/{siteID}/notifiers.
func (h *APIHandler) CreateNotifier(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	var req notifierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.svc.Notifiers.Add(r.Context(), actor, siteID, req.input())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка добавления получателя уведомлений")
		return
	}
	writeJSON(w, http.StatusCreated, mapNotifier(n))
}

// UpdateNotifier — PUT /api/v1/sites/{siteID}/notifiers/{notifierID}.
func (h *APIHandler) UpdateNotifier(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "notifierID")
	if !ok {
		return
	}
	var req notifierRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.svc.Notifiers.Update(r.Context(), actor, siteID, id, req.input())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения получателя уведомлений")
		return
	}
	writeJSON(w, http.StatusOK, mapNotifier(n))
}

// DeleteNotifier — DELETE /api/v1/sites/{siteID}/notifiers/{notifierID}.
func (h *APIHandler) DeleteNotifier(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "notifierID")
	if !ok {
		return
	}

	if err := h.svc.Notifiers.Delete(r.Context(), actor, siteID, id); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления получателя уведомлений")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleNotifier — POST /api/v1/sites/{siteID}/notifiers/{notifierID}/toggle.
func (h *APIHandler) ToggleNotifier(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "notifierID")
	if !ok {
		return
	}

	active, err := h.svc.Notifiers.ToggleActive(r.Context(), actor, siteID, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка переключения получателя уведомлений")
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{IsActive: active})
}
