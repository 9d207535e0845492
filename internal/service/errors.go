// Пакет service — бизнес-логика frontdesk: каталоги вопросов и рекламы,
// назначения площадкам, уведомления, бюджеты и распределения, API-ключи,
// настройки площадок и регистрации посетителей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// Ошибки бизнес-логики. Используются handlers для маппинга на HTTP-статусы.
var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrForbidden — недостаточно прав для операции.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (ресурс уже существует).
	ErrConflict = errors.New("конфликт")
	// ErrInvalidAPIKey — ключ не найден, неверен или отозван.
	ErrInvalidAPIKey = errors.New("недействительный API-ключ")
)

// mapRepoErr переводит ошибки репозитория в ошибки сервиса.
// Прочие ошибки оборачиваются сообщением what.
// Имена ограничений БД в сообщение не попадают.
func mapRepoErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrConcurrentUpdate):
		return fmt.Errorf("%w: параллельное изменение (%s), повторите операцию", ErrConflict, what)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	default:
		return fmt.Errorf("ошибка: %s: %w", what, err)
	}
}

// deny логирует отказ в доступе с контекстом пользователя и возвращает ErrForbidden.
func deny(ctx context.Context, logger *slog.Logger, actor rbac.Actor, op string, attrs ...any) error {
	args := []any{
		slog.String("op", op),
		slog.Int64("user_id", actor.UserID),
		slog.String("username", actor.Username),
		slog.String("role", actor.Role),
		slog.Bool("site_admin", actor.IsSiteAdmin),
	}
	if actor.SiteID != nil {
		args = append(args, slog.Int64("actor_site_id", *actor.SiteID))
	}
	if actor.DepartmentID != nil {
		args = append(args, slog.Int64("actor_department_id", *actor.DepartmentID))
	}
	args = append(args, attrs...)
	logger.WarnContext(ctx, "Доступ запрещён", args...)
	return fmt.Errorf("%w: %s", ErrForbidden, op)
}
