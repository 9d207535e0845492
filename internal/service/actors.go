package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// ErrUnknownUser — пользователь из токена не заведён в frontdesk.
var ErrUnknownUser = errors.New("пользователь не зарегистрирован")

// ActorResolver строит rbac.Actor по имени пользователя из JWT.
// Роль, площадка и отдел берутся из таблицы users, а не из токена.
type ActorResolver struct {
	users       repository.UserRepository
	catalog     repository.CatalogRepository
	financeSlug string
	logger      *slog.Logger
}

// NewActorResolver создаёт резолвер. financeSlug — slug финансового отдела.
func NewActorResolver(
	users repository.UserRepository,
	catalog repository.CatalogRepository,
	financeSlug string,
	logger *slog.Logger,
) *ActorResolver {
	return &ActorResolver{
		users:       users,
		catalog:     catalog,
		financeSlug: financeSlug,
		logger:      logger.With(slog.String("component", "actor_resolver")),
	}
}

// Resolve возвращает контекст пользователя. Незаведённый пользователь
// или роль вне перечня — ErrUnknownUser.
func (r *ActorResolver) Resolve(ctx context.Context, username string) (rbac.Actor, error) {
	u, err := r.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return rbac.Actor{}, fmt.Errorf("%w: %s", ErrUnknownUser, username)
		}
		return rbac.Actor{}, fmt.Errorf("ошибка получения пользователя %q: %w", username, err)
	}
	if !rbac.IsValidRole(u.Role) {
		r.logger.WarnContext(ctx, "Пользователь с неизвестной ролью",
			slog.String("username", username),
			slog.String("role", u.Role),
		)
		return rbac.Actor{}, fmt.Errorf("%w: роль %q", ErrUnknownUser, u.Role)
	}

	actor := rbac.Actor{
		UserID:       u.ID,
		Username:     u.Username,
		Role:         u.Role,
		SiteID:       u.SiteID,
		DepartmentID: u.DepartmentID,
		IsSiteAdmin:  u.IsSiteAdmin,
	}

	if u.Role == rbac.RoleStaff && u.DepartmentID != nil {
		d, err := r.catalog.GetDepartment(ctx, *u.DepartmentID)
		switch {
		case err == nil:
			actor.IsFinance = d.Slug == r.financeSlug
		case errors.Is(err, repository.ErrNotFound):
			// отдел удалён — обычный сотрудник
		default:
			return rbac.Actor{}, fmt.Errorf("ошибка получения отдела пользователя: %w", err)
		}
	}
	return actor, nil
}
