// allocations.go — распределения бюджетов и отчёт по ним.
// Поля распределения передаются плоским JSON-объектом: имя поля → значение.
// Набор допустимых для записи полей определяется ролью и типом бюджета.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

type allocationResponse struct {
	ID                   int64              `json:"id"`
	BudgetID             int64              `json:"budget_id"`
	Fields               map[string]*string `json:"fields"`
	FinProcessedByUserID *int64             `json:"fin_processed_by_user_id,omitempty"`
	FinProcessedAt       *string            `json:"fin_processed_at,omitempty"`
	CreatedByUserID      *int64             `json:"created_by_user_id,omitempty"`
	UpdatedByUserID      *int64             `json:"updated_by_user_id,omitempty"`
	CreatedAt            string             `json:"created_at"`
	UpdatedAt            string             `json:"updated_at"`
}

type updateAllocationResponse struct {
	Allocation allocationResponse `json:"allocation"`
	Changed    []string           `json:"changed"`
}

type reportRowResponse struct {
	allocationResponse
	BudgetName     string  `json:"budget_name"`
	BudgetType     string  `json:"budget_type"`
	GrantID        int64   `json:"grant_id"`
	GrantName      string  `json:"grant_name"`
	DepartmentID   int64   `json:"department_id"`
	DepartmentName string  `json:"department_name"`
	VendorName     *string `json:"vendor_name,omitempty"`
	OwnerUserID    *int64  `json:"owner_user_id,omitempty"`
	OwnerName      *string `json:"owner_name,omitempty"`
}

func mapAllocation(a *model.Allocation) allocationResponse {
	fields := a.Fields
	if fields == nil {
		fields = map[string]*string{}
	}
	return allocationResponse{
		ID:                   a.ID,
		BudgetID:             a.BudgetID,
		Fields:               fields,
		FinProcessedByUserID: a.FinProcessedByUserID,
		FinProcessedAt:       formatTimePtr(a.FinProcessedAt),
		CreatedByUserID:      a.CreatedByUserID,
		UpdatedByUserID:      a.UpdatedByUserID,
		CreatedAt:            formatTime(a.CreatedAt),
		UpdatedAt:            formatTime(a.UpdatedAt),
	}
}

func mapReportRow(row *model.AllocationReportRow) reportRowResponse {
	return reportRowResponse{
		allocationResponse: mapAllocation(&row.Allocation),
		BudgetName:         row.BudgetName,
		BudgetType:         row.BudgetType,
		GrantID:            row.GrantID,
		GrantName:          row.GrantName,
		DepartmentID:       row.DepartmentID,
		DepartmentName:     row.DepartmentName,
		VendorName:         row.VendorName,
		OwnerUserID:        row.OwnerUserID,
		OwnerName:          row.OwnerName,
	}
}

// decodePayload читает объект полей распределения. Числа сохраняются
// как json.Number, чтобы суммы не теряли точность до нормализации.
func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return nil, false
	}
	if payload == nil {
		apierrors.ValidationError(w, "Ожидается JSON-объект с полями распределения")
		return nil, false
	}
	return payload, true
}

// ListAllocations — GET /api/v1/budgets/{budgetID}/allocations.
func (h *APIHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	budgetID, ok := pathID(w, r, "budgetID")
	if !ok {
		return
	}

	items, err := h.svc.Allocations.ListByBudget(r.Context(), actor, budgetID)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения распределений")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[allocationResponse]{Items: mapAll(items, mapAllocation)})
}

// CreateAllocation — POST /api/v1/budgets/{budgetID}/allocations.
func (h *APIHandler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	budgetID, ok := pathID(w, r, "budgetID")
	if !ok {
		return
	}
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	a, err := h.svc.Allocations.Create(r.Context(), actor, budgetID, payload)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка создания распределения")
		return
	}
	writeJSON(w, http.StatusCreated, mapAllocation(a))
}

// GetAllocation — GET /api/v1/allocations/{allocationID}.
func (h *APIHandler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "allocationID")
	if !ok {
		return
	}

	a, err := h.svc.Allocations.Get(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения распределения")
		return
	}
	writeJSON(w, http.StatusOK, mapAllocation(a))
}

// UpdateAllocation — PATCH /api/v1/allocations/{allocationID}.
// Записываются только изменившиеся поля, их имена возвращаются в changed.
func (h *APIHandler) UpdateAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "allocationID")
	if !ok {
		return
	}
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Allocations.Update(r.Context(), actor, id, payload)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка изменения распределения")
		return
	}
	changed := res.Changed
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, updateAllocationResponse{Allocation: mapAllocation(res.Allocation), Changed: changed})
}

// DeleteAllocation — DELETE /api/v1/allocations/{allocationID} (мягкое удаление).
func (h *APIHandler) DeleteAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "allocationID")
	if !ok {
		return
	}

	if err := h.svc.Allocations.Delete(r.Context(), actor, id); err != nil {
		h.writeServiceError(w, r, err, "Ошибка удаления распределения")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AllocationReport — GET /api/v1/reports/allocations.
// Фильтры: budget_id, grant_id, department_id, vendor_id, owner_user_id,
// budget_type, payment_status, date_from, date_to, q; сортировка sort_by,
// sort_order; пагинация limit, offset.
func (h *APIHandler) AllocationReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	params, err := parseReportParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	rows, total, err := h.svc.Allocations.Report(r.Context(), actor, params)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка построения отчёта")
		return
	}
	limit, offset := service.BudgetPage(params.Limit, params.Offset)
	writeJSON(w, http.StatusOK, listResponse[reportRowResponse]{
		Items:   mapAll(rows, mapReportRow),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(rows) < total,
	})
}

// parseReportParams разбирает параметры отчёта. Видимость (Scope)
// не принимается от клиента, её выставляет сервис.
func parseReportParams(r *http.Request) (repository.ReportParams, error) {
	var (
		p   repository.ReportParams
		err error
	)
	ids := []struct {
		name string
		dst  **int64
	}{
		{"budget_id", &p.BudgetID},
		{"grant_id", &p.GrantID},
		{"department_id", &p.DepartmentID},
		{"vendor_id", &p.VendorID},
		{"owner_user_id", &p.OwnerUserID},
	}
	for _, f := range ids {
		if *f.dst, err = queryInt64(r, f.name); err != nil {
			return p, err
		}
	}
	if p.DateFrom, err = queryDate(r, "date_from"); err != nil {
		return p, err
	}
	if p.DateTo, err = queryDate(r, "date_to"); err != nil {
		return p, err
	}
	if p.Limit, err = queryInt(r, "limit"); err != nil {
		return p, err
	}
	if p.Offset, err = queryInt(r, "offset"); err != nil {
		return p, err
	}
	p.BudgetType = queryString(r, "budget_type")
	p.PaymentStatus = queryString(r, "payment_status")
	p.Query = queryString(r, "q")
	if s := queryString(r, "sort_by"); s != nil {
		p.SortBy = *s
	}
	if s := queryString(r, "sort_order"); s != nil {
		p.SortOrder = *s
	}
	return p, nil
}
