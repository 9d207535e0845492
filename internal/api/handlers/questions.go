// questions.go — обработчики /api/v1/questions и назначений вопросов площадкам.
package handlers

import (
	"net/http"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

type questionRequest struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

type questionTextRequest struct {
	Text string `json:"text"`
}

type questionResponse struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type siteQuestionResponse struct {
	ID               int64  `json:"id"`
	SiteID           int64  `json:"site_id"`
	GlobalQuestionID int64  `json:"global_question_id"`
	DisplayOrder     int    `json:"display_order"`
	IsActive         bool   `json:"is_active"`
	Text             string `json:"text,omitempty"`
	Title            string `json:"title,omitempty"`
}

type assignRequest struct {
	ID       int64 `json:"id"`
	IsActive *bool `json:"is_active"`
}

type moveRequest struct {
	Direction string `json:"direction"`
}

type moveResponse struct {
	Moved bool `json:"moved"`
}

type toggleResponse struct {
	IsActive bool `json:"is_active"`
}

type deleteQuestionResponse struct {
	Question questionResponse `json:"question"`
	Warning  string           `json:"warning,omitempty"`
}

func mapQuestion(q *model.GlobalQuestion) questionResponse {
	return questionResponse{
		ID:        q.ID,
		Text:      q.Text,
		Title:     q.Title,
		CreatedAt: formatTime(q.CreatedAt),
		UpdatedAt: formatTime(q.UpdatedAt),
	}
}

func mapSiteQuestion(sq *model.SiteQuestion) siteQuestionResponse {
	return siteQuestionResponse{
		ID:               sq.ID,
		SiteID:           sq.SiteID,
		GlobalQuestionID: sq.GlobalQuestionID,
		DisplayOrder:     sq.DisplayOrder,
		IsActive:         sq.IsActive,
		Text:             sq.Text,
		Title:            sq.Title,
	}
}

// ListQuestions — GET /api/v1/questions.
func (h *APIHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.svc.Questions.ListGlobal(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения каталога вопросов")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[questionResponse]{Items: mapAll(qs, mapQuestion)})
}

// CreateQuestion — POST /api/v1/questions.
// Создаёт колонку ответа и вопрос каталога. Доступ: administrator.
func (h *APIHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req questionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.svc.Questions.AddGlobal(r.Context(), actor, req.Text, req.Title)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания вопроса")
		return
	}
	writeJSON(w, http.StatusCreated, mapQuestion(q))
}

// GetQuestion — GET /api/v1/questions/{questionID}.
func (h *APIHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	q, err := h.svc.Questions.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения вопроса")
		return
	}
	writeJSON(w, http.StatusOK, mapQuestion(q))
}

// UpdateQuestion — PATCH /api/v1/questions/{questionID}.
// Меняется только текст, slug неизменяем.
func (h *APIHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	var req questionTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	q, err := h.svc.Questions.UpdateText(r.Context(), actor, id, req.Text)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения вопроса")
		return
	}
	writeJSON(w, http.StatusOK, mapQuestion(q))
}

// DeleteQuestion — DELETE /api/v1/questions/{questionID}.
// Ошибка удаления колонки возвращается предупреждением, вопрос удаляется.
func (h *APIHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}

	res, err := h.svc.Questions.DeleteGlobal(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления вопроса")
		return
	}
	writeJSON(w, http.StatusOK, deleteQuestionResponse{Question: mapQuestion(res.Question), Warning: res.Warning})
}

// ListSiteQuestions — GET /api/v1/sites/{siteID}/questions[?active_only=true].
func (h *APIHandler) ListSiteQuestions(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteID")
	if !ok {
		return
	}
	items, err := h.svc.Questions.ListForSite(r.Context(), siteID, queryBool(r, "active_only", false))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения вопросов площадки")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[siteQuestionResponse]{Items: mapAll(items, mapSiteQuestion)})
}

// AssignSiteQuestion — POST /api/v1/sites/{siteID}/questions.
// Вопрос добавляется в конец списка площадки.
func (h *APIHandler) AssignSiteQuestion(w http.ResponseWriter, r *http.Request) {
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

	sq, err := h.svc.Questions.AssignToSite(r.Context(), actor, siteID, req.ID, activeOrDefault(req.IsActive))
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка назначения вопроса")
		return
	}
	writeJSON(w, http.StatusCreated, mapSiteQuestion(sq))
}

// RemoveSiteQuestion — DELETE /api/v1/sites/{siteID}/questions/{assignmentID}.
func (h *APIHandler) RemoveSiteQuestion(w http.ResponseWriter, r *http.Request) {
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

	if err := h.svc.Questions.RemoveFromSite(r.Context(), actor, siteID, id); err != nil {
		h.writeServiceError(w, r, err, "Ошибка снятия вопроса с площадки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleSiteQuestion — POST /api/v1/sites/{siteID}/questions/{assignmentID}/toggle.
func (h *APIHandler) ToggleSiteQuestion(w http.ResponseWriter, r *http.Request) {
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

	active, err := h.svc.Questions.ToggleActive(r.Context(), actor, siteID, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка переключения вопроса")
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{IsActive: active})
}

// MoveSiteQuestion — POST /api/v1/sites/{siteID}/questions/{assignmentID}/move.
// На границе списка возвращает moved=false.
func (h *APIHandler) MoveSiteQuestion(w http.ResponseWriter, r *http.Request) {
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

	moved, err := h.svc.Questions.Reorder(r.Context(), actor, siteID, id, req.Direction)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка перемещения вопроса")
		return
	}
	writeJSON(w, http.StatusOK, moveResponse{Moved: moved})
}

// activeOrDefault — новое назначение по умолчанию активно.
func activeOrDefault(v *bool) bool {
	return v == nil || *v
}
