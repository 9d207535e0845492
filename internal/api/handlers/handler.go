// handler.go — основной обработчик REST API Frontdesk.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/api/middleware"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
	"github.com/rlarcher1021/seazwf-sub002/internal/storage/filestore"
)

// maxJSONBody — предел тела JSON-запроса.
const maxJSONBody = 1 << 20

// Services — сервисы, которые использует API.
type Services struct {
	Questions   *service.QuestionService
	Ads         *service.AdService
	Notifiers   *service.NotifierService
	Sites       *service.SiteService
	CheckIns    *service.CheckInService
	Catalogs    *service.CatalogService
	Budgets     *service.BudgetService
	Allocations *service.AllocationService
	APIKeys     *service.APIKeyService
}

// APIHandler — основной обработчик API Frontdesk.
type APIHandler struct {
	health *HealthHandler
	svc    Services
	images *filestore.FileStore
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// images — хранилище загружаемых изображений объявлений.
func NewAPIHandler(health *HealthHandler, svc Services, images *filestore.FileStore, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health: health,
		svc:    svc,
		images: images,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля — ошибка.
// При ошибке ответ уже записан.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// actorFrom возвращает пользователя запроса. При отсутствии пишет 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Отсутствует контекст пользователя")
	}
	return actor, ok
}

// pathID разбирает положительный целочисленный параметр маршрута.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %q", name, raw))
		return 0, false
	}
	return id, true
}

// queryInt64 — необязательный целочисленный параметр запроса.
func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("параметр %s: %q не является числом", name, raw)
	}
	return &v, nil
}

// queryInt — целочисленный параметр с нулём по умолчанию.
func queryInt(r *http.Request, name string) (int, error) {
	v, err := queryInt64(r, name)
	if err != nil || v == nil {
		return 0, err
	}
	return int(*v), nil
}

// queryString — необязательный строковый параметр запроса.
func queryString(r *http.Request, name string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	return &raw
}

// queryDate — необязательная дата YYYY-MM-DD.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("параметр %s: %q не является датой YYYY-MM-DD", name, raw)
	}
	return &d, nil
}

// queryBool — флаг запроса; пустое значение даёт def.
func queryBool(r *http.Request, name string, def bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
// Непредвиденные ошибки логируются, клиент получает общее сообщение op.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op,
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, op)
	}
}

// listResponse — ответ со списком и пагинацией.
type listResponse[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// itemsResponse — ответ со списком без пагинации.
type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

// mapAll применяет f к каждому элементу.
func mapAll[S any, T any](in []S, f func(S) T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

// formatTime — RFC3339 в UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}
