// kiosk.go — чтение данных площадки для киосков и интеграций.
// Доступ по API-ключу; ключ, привязанный к площадке, видит только её.
package handlers

import (
	"fmt"
	"net/http"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/api/middleware"
)

// kioskSiteResponse — данные для экрана регистрации площадки.
type kioskSiteResponse struct {
	Site                 siteResponse `json:"site"`
	AllowEmailCollection bool         `json:"allow_email_collection"`
	AllowNotifier        bool         `json:"allow_notifier"`
}

// kioskSite проверяет привязку ключа и возвращает ID площадки.
func kioskSite(w http.ResponseWriter, r *http.Request) (int64, bool) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return 0, false
	}
	key := middleware.APIKeyFromContext(r.Context())
	if key != nil && key.AssociatedSiteID != nil && *key.AssociatedSiteID != siteID {
		apierrors.Forbidden(w, fmt.Sprintf("Ключ не действует для площадки %d", siteID))
		return 0, false
	}
	return siteID, true
}

// KioskSite — GET /api/v1/kiosk/sites/{siteID}. Разрешение sites:read.
// Неактивная площадка для киоска не существует.
func (h *APIHandler) KioskSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := kioskSite(w, r)
	if !ok {
		return
	}
	site, err := h.svc.Sites.Get(r.Context(), siteID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения площадки")
		return
	}
	if !site.IsActive {
		apierrors.NotFound(w, fmt.Sprintf("Площадка %d неактивна", siteID))
		return
	}
	writeJSON(w, http.StatusOK, kioskSiteResponse{
		Site:                 mapSite(site),
		AllowEmailCollection: h.svc.Sites.AllowsEmailCollection(r.Context(), siteID),
		AllowNotifier:        h.svc.Sites.AllowsNotifier(r.Context(), siteID),
	})
}

// KioskQuestions — GET /api/v1/kiosk/sites/{siteID}/questions.
// Только активные назначения по порядку. Разрешение questions:read.
func (h *APIHandler) KioskQuestions(w http.ResponseWriter, r *http.Request) {
	siteID, ok := kioskSite(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Questions.ListForSite(r.Context(), siteID, true)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения вопросов площадки")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[siteQuestionResponse]{Items: mapAll(items, mapSiteQuestion)})
}

// KioskAds — GET /api/v1/kiosk/sites/{siteID}/ads. Разрешение ads:read.
func (h *APIHandler) KioskAds(w http.ResponseWriter, r *http.Request) {
	siteID, ok := kioskSite(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Ads.ListForSite(r.Context(), siteID, true)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения объявлений площадки")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[siteAdResponse]{Items: mapAll(items, mapSiteAd)})
}

// KioskNotifiers — GET /api/v1/kiosk/sites/{siteID}/notifiers.
// Пустой список, если площадка не разрешает уведомления. Разрешение notifiers:read.
func (h *APIHandler) KioskNotifiers(w http.ResponseWriter, r *http.Request) {
	siteID, ok := kioskSite(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Notifiers.ListForKiosk(r.Context(), siteID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения получателей уведомлений")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[notifierResponse]{Items: mapAll(items, mapNotifier)})
}
