// ads.go — обработчики /api/v1/ads и назначений объявлений площадкам.
// Объявление с изображением принимается как multipart/form-data (поле image),
// текстовое — как multipart или JSON.
package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
	"github.com/rlarcher1021/seazwf-sub002/internal/storage/filestore"
)

// multipartMemory — часть формы, которая держится в памяти.
const multipartMemory = 1 << 20

type adRequest struct {
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	Text     *string `json:"text"`
	IsActive *bool   `json:"is_active"`
}

type adResponse struct {
	ID        int64   `json:"id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Text      *string `json:"text,omitempty"`
	ImagePath *string `json:"image_path,omitempty"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type siteAdResponse struct {
	ID           int64   `json:"id"`
	SiteID       int64   `json:"site_id"`
	GlobalAdID   int64   `json:"global_ad_id"`
	DisplayOrder int     `json:"display_order"`
	IsActive     bool    `json:"is_active"`
	Type         string  `json:"type,omitempty"`
	Title        string  `json:"title,omitempty"`
	Text         *string `json:"text,omitempty"`
	ImagePath    *string `json:"image_path,omitempty"`
}

type deleteAdResponse struct {
	Ad      adResponse `json:"ad"`
	Warning string     `json:"warning,omitempty"`
}

func mapAd(ad *model.GlobalAd) adResponse {
	return adResponse{
		ID:        ad.ID,
		Type:      ad.Type,
		Title:     ad.Title,
		Text:      ad.Text,
		ImagePath: ad.ImagePath,
		IsActive:  ad.IsActive,
		CreatedAt: formatTime(ad.CreatedAt),
		UpdatedAt: formatTime(ad.UpdatedAt),
	}
}

func mapSiteAd(sa *model.SiteAd) siteAdResponse {
	return siteAdResponse{
		ID:           sa.ID,
		SiteID:       sa.SiteID,
		GlobalAdID:   sa.GlobalAdID,
		DisplayOrder: sa.DisplayOrder,
		IsActive:     sa.IsActive,
		Type:         sa.Type,
		Title:        sa.Title,
		Text:         sa.Text,
		ImagePath:    sa.ImagePath,
	}
}

// readAdInput разбирает запрос создания/изменения объявления.
// Загруженный файл сохраняется в хранилище и передаётся сервису как
// StagedImage: дальше за его судьбу отвечает сервис.
func (h *APIHandler) readAdInput(w http.ResponseWriter, r *http.Request) (service.AdInput, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req adRequest
		if !decodeJSON(w, r, &req) {
			return service.AdInput{}, false
		}
		return service.AdInput{
			Type:     req.Type,
			Title:    req.Title,
			Text:     req.Text,
			IsActive: activeOrDefault(req.IsActive),
		}, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.images.MaxBytes()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return service.AdInput{}, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := service.AdInput{
		Type:     strings.TrimSpace(r.FormValue("type")),
		Title:    r.FormValue("title"),
		IsActive: true,
	}
	if text := r.FormValue("text"); text != "" {
		in.Text = &text
	}
	if raw := r.FormValue("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "is_active: ожидается true или false")
			return service.AdInput{}, false
		}
		in.IsActive = active
	}

	file, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, true
	case err != nil:
		apierrors.ValidationError(w, "Ошибка чтения файла: "+err.Error())
		return service.AdInput{}, false
	}
	defer file.Close()

	saved, err := h.images.Save(file)
	if err != nil {
		switch {
		case errors.Is(err, filestore.ErrTooLarge), errors.Is(err, filestore.ErrUnsupportedType):
			apierrors.ValidationError(w, err.Error())
		default:
			h.writeServiceError(w, r, err, "Ошибка сохранения изображения")
		}
		return service.AdInput{}, false
	}
	in.StagedImage = &saved.PublicPath
	return in, true
}

// ListAds — GET /api/v1/ads.
func (h *APIHandler) ListAds(w http.ResponseWriter, r *http.Request) {
	ads, err := h.svc.Ads.ListGlobal(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения каталога объявлений")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[adResponse]{Items: mapAll(ads, mapAd)})
}

// CreateAd — POST /api/v1/ads. Доступ: administrator.
func (h *APIHandler) CreateAd(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	in, ok := h.readAdInput(w, r)
	if !ok {
		return
	}

	ad, err := h.svc.Ads.CreateGlobal(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания объявления")
		return
	}
	writeJSON(w, http.StatusCreated, mapAd(ad))
}

// GetAd — GET /api/v1/ads/{adID}.
func (h *APIHandler) GetAd(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "adID")
	if !ok {
		return
	}
	ad, err := h.svc.Ads.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения объявления")
		return
	}
	writeJSON(w, http.StatusOK, mapAd(ad))
}

// UpdateAd — PUT /api/v1/ads/{adID}.
// Изображение без нового файла сохраняется прежним.
func (h *APIHandler) UpdateAd(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "adID")
	if !ok {
		return
	}
	in, ok := h.readAdInput(w, r)
	if !ok {
		return
	}

	ad, err := h.svc.Ads.UpdateGlobal(r.Context(), actor, id, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения объявления")
		return
	}
	writeJSON(w, http.StatusOK, mapAd(ad))
}

// DeleteAd — DELETE /api/v1/ads/{adID}.
func (h *APIHandler) DeleteAd(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "adID")
	if !ok {
		return
	}

	res, err := h.svc.Ads.DeleteGlobal(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления объявления")
		return
	}
	writeJSON(w, http.StatusOK, deleteAdResponse{Ad: mapAd(res.Ad), Warning: res.Warning})
}

// ListSiteAds — GET /api/v1/sites/{siteID}/ads[?active_only=true].
func (h *APIHandler) ListSiteAds(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	items, err := h.svc.Ads.ListForSite(r.Context(), siteID, queryBool(r, "active_only", false))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения объявлений площадки")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[siteAdResponse]{Items: mapAll(items, mapSiteAd)})
}

// AssignSiteAd — POST /api/v1/sites/{siteID}/ads.
func (h *APIHandler) AssignSiteAd(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sa, err := h.svc.Ads.AssignToSite(r.Context(), actor, siteID, req.ID, activeOrDefault(req.IsActive))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка назначения объявления")
		return
	}
	writeJSON(w, http.StatusCreated, mapSiteAd(sa))
}

// RemoveSiteAd — DELETE /api/v1/sites/{siteID}/ads/{assignmentID}.
func (h *APIHandler) RemoveSiteAd(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "assignmentID")
	if !ok {
		return
	}

	if err := h.svc.Ads.RemoveFromSite(r.Context(), actor, siteID, id); err != nil {
		h.writeServiceError(w, r, err, "Ошибка снятия объявления с площадки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleSiteAd — POST /api/v1/sites/{siteID}/ads/{assignmentID}/toggle.
func (h *APIHandler) ToggleSiteAd(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "assignmentID")
	if !ok {
		return
	}

	active, err := h.svc.Ads.ToggleActive(r.Context(), actor, siteID, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка переключения объявления")
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{IsActive: active})
}

// MoveSiteAd — POST /api/v1/sites/{siteID}/ads/{assignmentID}/move.
func (h *APIHandler) MoveSiteAd(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "assignmentID")
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	moved, err := h.svc.Ads.Reorder(r.Context(), actor, siteID, id, req.Direction)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка перемещения объявления")
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Moved: moved})
}

// UploadPrefix — публичный префикс загруженных изображений.
func (h *APIHandler) UploadPrefix() string {
	return h.images.URLPrefix()
}

// ServeUpload — GET {UploadPrefix}/{name}. Отдаёт изображение объявления
// из хранилища. Имена вне хранилища дают 404.
func (h *APIHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	path, err := h.images.DiskPath(h.images.URLPrefix() + "/" + chi.URLParam(r, "name"))
	if err != nil {
		apierrors.NotFound(w, "Файл не найден")
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
