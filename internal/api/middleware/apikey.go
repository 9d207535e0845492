// apikey.go — аутентификация интеграций и киосков по API-ключу.
// Каждая проверка ключа стоит O(число активных ключей) сравнений bcrypt,
// поэтому неудачные попытки ограничиваются по адресу клиента.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	apierrors "github.com/rlarcher1021/seazwf-sub002/internal/api/errors"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/service"
)

// APIKeyValidator проверяет открытый ключ. Реализуется service.APIKeyService.
type APIKeyValidator interface {
	Validate(ctx context.Context, plaintext string) (*model.APIKey, error)
}

// FailLimiter считает неудачные проверки ключей по клиенту.
type FailLimiter interface {
	// Blocked — исчерпан ли лимит неудачных попыток клиента.
	Blocked(ctx context.Context, client string) (bool, error)
	// RecordFailure учитывает неудачную попытку.
	RecordFailure(ctx context.Context, client string) error
}

// APIKeyAuth — middleware проверки API-ключа.
type APIKeyAuth struct {
	validator APIKeyValidator
	limiter   FailLimiter
	header    string
	logger    *slog.Logger
}

// NewAPIKeyAuth создаёт middleware. header — имя заголовка с ключом,
// limiter может быть nil (лимит отключён).
func NewAPIKeyAuth(validator APIKeyValidator, limiter FailLimiter, header string, logger *slog.Logger) *APIKeyAuth {
	return &APIKeyAuth{
		validator: validator,
		limiter:   limiter,
		header:    header,
		logger:    logger.With(slog.String("component", "api_key_auth")),
	}
}

// Middleware проверяет ключ из заголовка и помещает его в контекст.
func (a *APIKeyAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plaintext := r.Header.Get(a.header)
			if plaintext == "" {
				apierrors.Unauthorized(w, fmt.Sprintf("Отсутствует заголовок %s", a.header))
				return
			}

			client := clientAddr(r)
			if a.blocked(r.Context(), client) {
				apierrors.TooManyRequests(w, "Слишком много неудачных попыток, повторите позже")
				return
			}

			key, err := a.validator.Validate(r.Context(), plaintext)
			if err != nil {
				if errors.Is(err, service.ErrInvalidAPIKey) {
					a.recordFailure(r.Context(), client)
					a.logger.Warn("Неверный API-ключ",
						slog.String("client", client),
						slog.String("path", r.URL.Path),
					)
					apierrors.Unauthorized(w, "Недействительный API-ключ")
					return
				}
				a.logger.Error("Ошибка проверки API-ключа", slog.String("error", err.Error()))
				apierrors.InternalError(w, "Ошибка проверки API-ключа")
				return
			}

			setSubject(r.Context(), fmt.Sprintf("api_key:%d", key.ID))
			next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
		})
	}
}

// blocked при недоступности хранилища лимита пропускает запрос:
// киоски не должны останавливаться из-за Redis.
func (a *APIKeyAuth) blocked(ctx context.Context, client string) bool {
	if a.limiter == nil {
		return false
	}
	blocked, err := a.limiter.Blocked(ctx, client)
	if err != nil {
		a.logger.Warn("Лимит неудачных попыток недоступен", slog.String("error", err.Error()))
		return false
	}
	return blocked
}

func (a *APIKeyAuth) recordFailure(ctx context.Context, client string) {
	if a.limiter == nil {
		return
	}
	if err := a.limiter.RecordFailure(ctx, client); err != nil {
		a.logger.Warn("Не удалось учесть неудачную попытку", slog.String("error", err.Error()))
	}
}

// RequirePermission пропускает запрос, только если у ключа есть разрешение.
// Должен использоваться ПОСЛЕ APIKeyAuth.Middleware().
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := APIKeyFromContext(r.Context())
			if key == nil {
				apierrors.Unauthorized(w, "Отсутствует API-ключ в контексте")
				return
			}
			if !key.HasPermission(perm) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется разрешение %s", perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr — адрес клиента без порта.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- Redis ---

// RedisFailLimiter — счётчик неудачных попыток в Redis с окном window.
// Окно отсчитывается от первой неудачи.
type RedisFailLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisFailLimiter создаёт лимитер. limit — допустимое число неудач в окне.
func NewRedisFailLimiter(client *redis.Client, limit int, window time.Duration) *RedisFailLimiter {
	return &RedisFailLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "frontdesk:apikey:fail:",
	}
}

// Blocked проверяет счётчик клиента.
func (l *RedisFailLimiter) Blocked(ctx context.Context, client string) (bool, error) {
	n, err := l.client.Get(ctx, l.prefix+client).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("чтение счётчика: %w", err)
	}
	return n >= l.limit, nil
}

// RecordFailure увеличивает счётчик; первая неудача открывает окно.
func (l *RedisFailLimiter) RecordFailure(ctx context.Context, client string) error {
	key := l.prefix + client
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("увеличение счётчика: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("установка окна: %w", err)
		}
	}
	return nil
}
