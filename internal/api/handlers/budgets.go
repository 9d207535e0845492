// budgets.go — обработчики /api/v1/budgets и доступа финансового отдела.
package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

type budgetRequest struct {
	Name            string  `json:"name"`
	UserID          *int64  `json:"user_id"`
	GrantID         int64   `json:"grant_id"`
	DepartmentID    int64   `json:"department_id"`
	FiscalYearStart string  `json:"fiscal_year_start"`
	FiscalYearEnd   string  `json:"fiscal_year_end"`
	Type            string  `json:"type"`
	Notes           *string `json:"notes"`
}

type budgetResponse struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	UserID          *int64  `json:"user_id,omitempty"`
	GrantID         int64   `json:"grant_id"`
	DepartmentID    int64   `json:"department_id"`
	FiscalYearStart string  `json:"fiscal_year_start"`
	FiscalYearEnd   string  `json:"fiscal_year_end"`
	Type            string  `json:"type"`
	Notes           *string `json:"notes,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type financeAccessRequest struct {
	DepartmentIDs []int64 `json:"department_ids"`
}

type financeAccessResponse struct {
	UserID        int64   `json:"user_id"`
	DepartmentIDs []int64 `json:"department_ids"`
}

func mapBudget(b *model.Budget) budgetResponse {
	return budgetResponse{
		ID:              b.ID,
		Name:            b.Name,
		UserID:          b.UserID,
		GrantID:         b.GrantID,
		DepartmentID:    b.DepartmentID,
		FiscalYearStart: b.FiscalYearStart.Format(time.DateOnly),
		FiscalYearEnd:   b.FiscalYearEnd.Format(time.DateOnly),
		Type:            b.Type,
		Notes:           b.Notes,
		CreatedAt:       formatTime(b.CreatedAt),
		UpdatedAt:       formatTime(b.UpdatedAt),
	}
}

func (req budgetRequest) input() (service.BudgetInput, error) {
	start, err := parseOptionalDate("fiscal_year_start", &req.FiscalYearStart)
	if err != nil {
		return service.BudgetInput{}, err
	}
	end, err := parseOptionalDate("fiscal_year_end", &req.FiscalYearEnd)
	if err != nil {
		return service.BudgetInput{}, err
	}
	in := service.BudgetInput{
		Name:         req.Name,
		UserID:       req.UserID,
		GrantID:      req.GrantID,
		DepartmentID: req.DepartmentID,
		Type:         req.Type,
		Notes:        req.Notes,
	}
	// Пустые даты остаются нулевыми, их отклонит сервис
	if start != nil {
		in.FiscalYearStart = *start
	}
	if end != nil {
		in.FiscalYearEnd = *end
	}
	return in, nil
}

// ListBudgets — GET /api/v1/budgets?department_id=&grant_id=&type=&limit=&offset=.
// Видимость определяется ролью пользователя.
func (h *APIHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var (
		f   service.BudgetFilter
		err error
	)
	if f.DepartmentID, err = queryInt64(r, "department_id"); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if f.GrantID, err = queryInt64(r, "grant_id"); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	f.Type = queryString(r, "type")

	items, total, err := h.svc.Budgets.List(r.Context(), actor, f)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения бюджетов")
		return
	}
	limit, offset := service.BudgetPage(f.Limit, f.Offset)
	writeJSON(w, http.StatusOK, listResponse[budgetResponse]{
		Items:   mapAll(items, mapBudget),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	})
}

// CreateBudget — POST /api/v1/budgets. Доступ: administrator, director.
func (h *APIHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	b, err := h.svc.Budgets.Create(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания бюджета")
		return
	}
	writeJSON(w, http.StatusCreated, mapBudget(b))
}

// GetBudget — GET /api/v1/budgets/{budgetID}.
func (h *APIHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "budgetID")
	if !ok {
		return
	}

	b, err := h.svc.Budgets.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения бюджета")
		return
	}
	writeJSON(w, http.StatusOK, mapBudget(b))
}

// UpdateBudget — PUT /api/v1/budgets/{budgetID}.
func (h *APIHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "budgetID")
	if !ok {
		return
	}
	var req budgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	b, err := h.svc.Budgets.Update(r.Context(), actor, id, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения бюджета")
		return
	}
	writeJSON(w, http.StatusOK, mapBudget(b))
}

// DeleteBudget — DELETE /api/v1/budgets/{budgetID} (мягкое удаление).
func (h *APIHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "budgetID")
	if !ok {
		return
	}

	if err := h.svc.Budgets.Delete(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления бюджета")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFinanceAccess — GET /api/v1/users/{userID}/finance-access.
func (h *APIHandler) GetFinanceAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	ids, err := h.svc.Budgets.FinanceAccess(r.Context(), actor, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения доступа к отделам")
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, financeAccessResponse{UserID: userID, DepartmentIDs: ids})
}

// SetFinanceAccess — PUT /api/v1/users/{userID}/finance-access.
// Набор отделов заменяется целиком. Доступ: administrator.
func (h *APIHandler) SetFinanceAccess(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req financeAccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.Budgets.SetFinanceAccess(r.Context(), actor, userID, req.DepartmentIDs); err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения доступа к отделам")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
