// checkins.go — регистрации посетителей: список для сотрудников и
// приём регистраций с киосков и интеграций по API-ключу.
package handlers

import (
	"net/http"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/api/middleware"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

type checkInRequest struct {
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Email     *string           `json:"email"`
	Answers   map[string]string `json:"answers"`
}

type checkInResponse struct {
	ID          int64             `json:"id"`
	SiteID      int64             `json:"site_id"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	ClientEmail *string           `json:"client_email,omitempty"`
	CheckInTime string            `json:"check_in_time"`
	APIKeyID    *int64            `json:"api_key_id,omitempty"`
	Answers     map[string]string `json:"answers"`
}

func mapCheckIn(c *model.CheckIn) checkInResponse {
	answers := c.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	return checkInResponse{
		ID:          c.ID,
		SiteID:      c.SiteID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		ClientEmail: c.ClientEmail,
		CheckInTime: formatTime(c.CheckInTime),
		APIKeyID:    c.APIKeyID,
		Answers:     answers,
	}
}

// ListCheckIns — GET /api/v1/sites/{siteID}/check-ins?limit=&offset=.
func (h *APIHandler) ListCheckIns(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, err := h.svc.CheckIns.ListBySite(r.Context(), actor, siteID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения регистраций")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[checkInResponse]{Items: mapAll(items, mapCheckIn)})
}

// RecordCheckIn — POST /api/v1/kiosk/sites/{siteID}/check-ins.
// Доступ: API-ключ с разрешением checkin:create.
func (h *APIHandler) RecordCheckIn(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	var req checkInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.svc.CheckIns.Record(r.Context(), service.CheckInInput{
		SiteID:    siteID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Answers:   req.Answers,
		APIKey:    middleware.APIKeyFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка сохранения регистрации")
		return
	}
	writeJSON(w, http.StatusCreated, mapCheckIn(c))
}
