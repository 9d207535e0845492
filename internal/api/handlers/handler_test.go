package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/api/middleware"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
	"github.com/rlarcher1021/seazwf-sub002/internal/storage/filestore"
)

var testAdmin = rbac.Actor{UserID: 1, Username: "admin", Role: rbac.RoleAdministrator}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHandler создаёт обработчик с хранилищем изображений во временной директории.
func newTestHandler(t *testing.T, svc Services) (*APIHandler, *filestore.FileStore) {
	t.Helper()
	images, err := filestore.New(t.TempDir(), "/uploads", 1024)
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	return NewAPIHandler(NewHealthHandler(nil, nil), svc, images, testLogger()), images
}

// withActor добавляет пользователя в контекст запроса.
func withActor(r *http.Request, actor rbac.Actor) *http.Request {
	return r.WithContext(middleware.WithActor(r.Context(), actor))
}

// withRouteParams добавляет параметры маршрута chi.
func withRouteParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// errorCode извлекает code из ответа ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ответа не JSON: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func TestWriteServiceError(t *testing.T) {
	h, _ := newTestHandler(t, Services{})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"валидация", fmt.Errorf("%w: пустой заголовок", service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"не найдено", fmt.Errorf("%w: вопрос 7", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"нет доступа", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"конфликт", fmt.Errorf("%w: дубликат", service.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"внутренняя", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/questions", nil)
			h.writeServiceError(rec, req, tt.err, "Ошибка операции")

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидалось %d", rec.Code, tt.wantStatus)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %q, ожидалось %q", code, tt.wantCode)
			}
		})
	}
}

// TestWriteServiceError_HidesInternalDetails проверяет, что текст внутренней
// ошибки не попадает клиенту.
func TestWriteServiceError_HidesInternalDetails(t *testing.T) {
	h, _ := newTestHandler(t, Services{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.writeServiceError(rec, req, errors.New("pq: password authentication failed"), "Ошибка получения данных")

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error.Message != "Ошибка получения данных" {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		raw    string
		wantOK bool
		wantID int64
	}{
		{"42", true, 42},
		{"0", false, 0},
		{"-3", false, 0},
		{"abc", false, 0},
		{"", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := withRouteParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"siteID": tt.raw})

			id, ok := pathID(rec, req, "siteID")
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("pathID(%q) = %d, %v; ожидалось %d, %v", tt.raw, id, ok, tt.wantID, tt.wantOK)
			}
			if !ok && rec.Code != http.StatusBadRequest {
				t.Errorf("статус = %d, ожидалось 400", rec.Code)
			}
		})
	}
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"text":"a","title":"b","extra":1}`))

	var dst questionRequest
	if decodeJSON(rec, req, &dst) {
		t.Fatal("неизвестное поле должно отклоняться")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидалось 400", rec.Code)
	}
}

func TestParseReportParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/reports/allocations?budget_id=3&department_id=9&date_from=2024-07-01&date_to=2024-07-31"+
			"&payment_status=P&q=%20office%20&sort_by=transaction_date&sort_order=desc&limit=25&offset=50", nil)

	p, err := parseReportParams(req)
	if err != nil {
		t.Fatalf("parseReportParams ошибка: %v", err)
	}
	if p.BudgetID == nil || *p.BudgetID != 3 {
		t.Errorf("BudgetID = %v", p.BudgetID)
	}
	if p.DepartmentID == nil || *p.DepartmentID != 9 {
		t.Errorf("DepartmentID = %v", p.DepartmentID)
	}
	if p.GrantID != nil || p.VendorID != nil || p.OwnerUserID != nil {
		t.Error("незаданные фильтры должны быть nil")
	}
	if p.DateFrom == nil || p.DateFrom.Format("2006-01-02") != "2024-07-01" {
		t.Errorf("DateFrom = %v", p.DateFrom)
	}
	if p.DateTo == nil || p.DateTo.Day() != 31 {
		t.Errorf("DateTo = %v", p.DateTo)
	}
	if p.PaymentStatus == nil || *p.PaymentStatus != "P" {
		t.Errorf("PaymentStatus = %v", p.PaymentStatus)
	}
	if p.Query == nil || *p.Query != "office" {
		t.Errorf("Query = %v", p.Query)
	}
	if p.SortBy != "transaction_date" || p.SortOrder != "desc" {
		t.Errorf("сортировка = %q %q", p.SortBy, p.SortOrder)
	}
	if p.Limit != 25 || p.Offset != 50 {
		t.Errorf("пагинация = %d/%d", p.Limit, p.Offset)
	}
}

func TestParseReportParams_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"id не число", "budget_id=abc"},
		{"неверная дата", "date_from=01.07.2024"},
		{"limit не число", "limit=ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/allocations?"+tt.query, nil)
			if _, err := parseReportParams(req); err == nil {
				t.Error("ожидалась ошибка")
			}
		})
	}
}

// TestAllocationReport_InvalidParams проверяет, что ошибка разбора даёт 400
// до обращения к сервису.
func TestAllocationReport_InvalidParams(t *testing.T) {
	h, _ := newTestHandler(t, Services{})
	rec := httptest.NewRecorder()
	req := withActor(httptest.NewRequest(http.MethodGet, "/api/v1/reports/allocations?vendor_id=x", nil), testAdmin)

	h.AllocationReport(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидалось 400", rec.Code)
	}
}

func TestActorFrom_Missing(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := actorFrom(rec, req); ok {
		t.Fatal("без пользователя в контексте ожидался отказ")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидалось 401", rec.Code)
	}
}

func TestQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?active_only=true&include_revoked=maybe", nil)

	if !queryBool(req, "active_only", false) {
		t.Error("active_only=true должно давать true")
	}
	if queryBool(req, "include_revoked", false) {
		t.Error("некорректное значение должно давать значение по умолчанию")
	}
	if !queryBool(req, "missing", true) {
		t.Error("отсутствующий параметр должен давать значение по умолчанию")
	}
}
