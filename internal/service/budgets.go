package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// Пагинация списков бюджетов и отчёта.
const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// BudgetPage возвращает фактические limit и offset, которые применяются
// к списку бюджетов и отчёту.
func BudgetPage(limit, offset int) (int, int) {
	return clampPage(limit, offset, defaultPageLimit, maxPageLimit)
}

// BudgetInput — данные бюджета при создании и изменении.
type BudgetInput struct {
	Name            string
	UserID          *int64
	GrantID         int64
	DepartmentID    int64
	FiscalYearStart time.Time
	FiscalYearEnd   time.Time
	Type            string
	Notes           *string
}

// BudgetFilter — фильтры списка бюджетов.
type BudgetFilter struct {
	DepartmentID *int64
	GrantID      *int64
	Type         *string
	Limit        int
	Offset       int
}

// BudgetService — бюджеты и доступ финансового отдела к отделам.
type BudgetService struct {
	budgets repository.BudgetRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

// NewBudgetService создаёт сервис бюджетов.
func NewBudgetService(budgets repository.BudgetRepository, users repository.UserRepository, logger *slog.Logger) *BudgetService {
	return &BudgetService{
		budgets: budgets,
		users:   users,
		logger:  logger.With(slog.String("component", "budget_service")),
	}
}

// Create создаёт бюджет. Staff-бюджет требует владельца с ролью azwk_staff.
func (s *BudgetService) Create(ctx context.Context, actor rbac.Actor, in BudgetInput) (*model.Budget, error) {
	if !actor.CanManageBudgets() {
		return nil, deny(ctx, s.logger, actor, "budget.create")
	}
	b := &model.Budget{}
	if err := s.applyInput(ctx, b, in); err != nil {
		return nil, err
	}
	if err := s.budgets.Create(ctx, b); err != nil {
		return nil, mapRepoErr(err, "грант или отдел бюджета")
	}
	s.logger.InfoContext(ctx, "Бюджет создан",
		slog.Int64("budget_id", b.ID),
		slog.String("type", b.Type),
		slog.String("created_by", actor.Username),
	)
	return b, nil
}

// Get возвращает бюджет, если он виден пользователю.
func (s *BudgetService) Get(ctx context.Context, actor rbac.Actor, id int64) (*model.Budget, error) {
	b, err := s.budgets.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("бюджет %d", id))
	}
	scope, err := ResolveScope(ctx, s.budgets, actor)
	if err != nil {
		return nil, err
	}
	if !budgetVisible(scope, b) {
		// Невидимый бюджет неотличим от отсутствующего
		return nil, fmt.Errorf("%w: бюджет %d", ErrNotFound, id)
	}
	return b, nil
}

// List возвращает бюджеты, видимые пользователю.
func (s *BudgetService) List(ctx context.Context, actor rbac.Actor, f BudgetFilter) ([]*model.Budget, int, error) {
	scope, err := ResolveScope(ctx, s.budgets, actor)
	if err != nil {
		return nil, 0, err
	}
	limit, offset := clampPage(f.Limit, f.Offset, defaultPageLimit, maxPageLimit)
	items, total, err := s.budgets.List(ctx, repository.BudgetListParams{
		Scope:        scope,
		DepartmentID: f.DepartmentID,
		GrantID:      f.GrantID,
		Type:         f.Type,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения бюджетов: %w", err)
	}
	return items, total, nil
}

// Update изменяет бюджет.
func (s *BudgetService) Update(ctx context.Context, actor rbac.Actor, id int64, in BudgetInput) (*model.Budget, error) {
	if !actor.CanManageBudgets() {
		return nil, deny(ctx, s.logger, actor, "budget.update", slog.Int64("budget_id", id))
	}
	b, err := s.budgets.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("бюджет %d", id))
	}
	if err := s.applyInput(ctx, b, in); err != nil {
		return nil, err
	}
	if err := s.budgets.Update(ctx, b); err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("бюджет %d", id))
	}
	return b, nil
}

// Delete мягко удаляет бюджет. Его распределения исчезают из отчёта.
func (s *BudgetService) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if !actor.CanManageBudgets() {
		return deny(ctx, s.logger, actor, "budget.delete", slog.Int64("budget_id", id))
	}
	if err := s.budgets.SoftDelete(ctx, id); err != nil {
		return mapRepoErr(err, fmt.Sprintf("бюджет %d", id))
	}
	s.logger.InfoContext(ctx, "Бюджет удалён",
		slog.Int64("budget_id", id),
		slog.String("deleted_by", actor.Username),
	)
	return nil
}

// FinanceAccess возвращает отделы, доступные финансовому сотруднику.
// Администратор видит списки всех, сотрудник — только свой.
func (s *BudgetService) FinanceAccess(ctx context.Context, actor rbac.Actor, userID int64) ([]int64, error) {
	if !actor.IsAdministrator() && actor.UserID != userID {
		return nil, deny(ctx, s.logger, actor, "finance_access.get", slog.Int64("target_user_id", userID))
	}
	ids, err := s.budgets.AccessibleDepartments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения доступа к отделам: %w", err)
	}
	return ids, nil
}

// SetFinanceAccess заменяет набор отделов, доступных финансовому сотруднику.
func (s *BudgetService) SetFinanceAccess(ctx context.Context, actor rbac.Actor, userID int64, departmentIDs []int64) error {
	if !actor.IsAdministrator() {
		return deny(ctx, s.logger, actor, "finance_access.set", slog.Int64("target_user_id", userID))
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return mapRepoErr(err, fmt.Sprintf("пользователь %d", userID))
	}
	if u.Role != rbac.RoleStaff {
		return fmt.Errorf("%w: доступ к отделам назначается только сотрудникам %s", ErrValidation, rbac.RoleStaff)
	}

	ids := slices.Clone(departmentIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("%w: некорректный ID отдела %d", ErrValidation, id)
		}
	}

	if err := s.budgets.SetAccessibleDepartments(ctx, userID, ids); err != nil {
		return mapRepoErr(err, "отдел из списка доступа")
	}
	s.logger.InfoContext(ctx, "Доступ финансового сотрудника к отделам обновлён",
		slog.Int64("target_user_id", userID),
		slog.Int("departments", len(ids)),
		slog.String("updated_by", actor.Username),
	)
	return nil
}

func (s *BudgetService) applyInput(ctx context.Context, b *model.Budget, in BudgetInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: название бюджета обязательно", ErrValidation)
	}
	if in.Type != model.BudgetTypeStaff && in.Type != model.BudgetTypeAdmin {
		return fmt.Errorf("%w: недопустимый тип бюджета %q", ErrValidation, in.Type)
	}
	if in.GrantID <= 0 || in.DepartmentID <= 0 {
		return fmt.Errorf("%w: грант и отдел обязательны", ErrValidation)
	}
	if in.FiscalYearStart.IsZero() || in.FiscalYearEnd.IsZero() {
		return fmt.Errorf("%w: границы финансового года обязательны", ErrValidation)
	}
	if in.FiscalYearEnd.Before(in.FiscalYearStart) {
		return fmt.Errorf("%w: конец финансового года раньше начала", ErrValidation)
	}

	if in.Type == model.BudgetTypeStaff && in.UserID == nil {
		return fmt.Errorf("%w: у Staff-бюджета должен быть владелец", ErrValidation)
	}
	if in.UserID != nil {
		owner, err := s.users.GetByID(ctx, *in.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: владелец %d не найден", ErrValidation, *in.UserID)
			}
			return fmt.Errorf("ошибка проверки владельца бюджета: %w", err)
		}
		if in.Type == model.BudgetTypeStaff && owner.Role != rbac.RoleStaff {
			return fmt.Errorf("%w: владелец Staff-бюджета должен иметь роль %s", ErrValidation, rbac.RoleStaff)
		}
	}

	b.Name = name
	b.Type = in.Type
	b.UserID = in.UserID
	b.GrantID = in.GrantID
	b.DepartmentID = in.DepartmentID
	b.FiscalYearStart = in.FiscalYearStart
	b.FiscalYearEnd = in.FiscalYearEnd
	b.Notes = trimmedOrNil(in.Notes)
	return nil
}

// ResolveScope строит область видимости бюджетов и распределений для actor.
// Для финансового сотрудника загружается список доступных отделов.
func ResolveScope(ctx context.Context, budgets repository.BudgetRepository, actor rbac.Actor) (repository.VisibilityScope, error) {
	scope := repository.VisibilityScope{
		Visibility: rbac.ReportVisibility(actor),
		UserID:     actor.UserID,
	}
	if scope.Visibility == rbac.VisibleDepartments {
		ids, err := budgets.AccessibleDepartments(ctx, actor.UserID)
		if err != nil {
			return repository.VisibilityScope{}, fmt.Errorf("ошибка получения доступа к отделам: %w", err)
		}
		scope.Departments = ids
	}
	return scope, nil
}

// budgetVisible проверяет бюджет по области видимости.
func budgetVisible(scope repository.VisibilityScope, b *model.Budget) bool {
	switch scope.Visibility {
	case rbac.VisibleAll:
		return true
	case rbac.VisibleDepartments:
		return slices.Contains(scope.Departments, b.DepartmentID)
	case rbac.VisibleOwn:
		return b.IsOwnedBy(scope.UserID)
	default:
		return false
	}
}
