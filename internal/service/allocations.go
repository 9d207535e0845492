// allocations.go — распределения бюджета и матрица прав записи полей.
// Права выводятся на каждый вызов из бюджета, перечитанного из БД:
// тип и владелец бюджета из запроса не используются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// requiredAllocationField — поле, без которого распределение не создаётся.
const requiredAllocationField = "transaction_date"

// UpdateAllocationResult — результат изменения распределения.
// Changed пуст, если новые значения совпали с сохранёнными.
type UpdateAllocationResult struct {
	Allocation *model.Allocation
	Changed    []string
}

// AllocationService — создание, изменение, удаление распределений и отчёт.
type AllocationService struct {
	allocations repository.AllocationRepository
	budgets     repository.BudgetRepository
	logger      *slog.Logger
}

// NewAllocationService создаёт сервис распределений.
func NewAllocationService(
	allocations repository.AllocationRepository,
	budgets repository.BudgetRepository,
	logger *slog.Logger,
) *AllocationService {
	return &AllocationService{
		allocations: allocations,
		budgets:     budgets,
		logger:      logger.With(slog.String("component", "allocation_service")),
	}
}

// Create создаёт распределение в бюджете budgetID.
// payload — значения полей из JSON. Поле вне разрешённых групп
// отклоняет весь запрос.
func (s *AllocationService) Create(ctx context.Context, actor rbac.Actor, budgetID int64, payload map[string]any) (*model.Allocation, error) {
	budget, groups, err := s.writableBudget(ctx, actor, budgetID, "allocation.create")
	if err != nil {
		return nil, err
	}

	fields, err := s.normalizePayload(ctx, actor, budget, groups, payload, "allocation.create")
	if err != nil {
		return nil, err
	}
	if fields[requiredAllocationField] == nil {
		return nil, fmt.Errorf("%w: поле %s обязательно", ErrValidation, requiredAllocationField)
	}

	a := &model.Allocation{
		BudgetID:        budget.ID,
		Fields:          fields,
		CreatedByUserID: &actor.UserID,
	}
	if actor.IsFinanceStaff() && touchesFinance(fields) {
		a.FinProcessedByUserID = &actor.UserID
	}

	if err := s.allocations.Create(ctx, a); err != nil {
		return nil, mapRepoErr(err, "распределение")
	}

	s.logger.InfoContext(ctx, "Распределение создано",
		slog.Int64("allocation_id", a.ID),
		slog.Int64("budget_id", budget.ID),
		slog.Int64("user_id", actor.UserID),
	)
	return a, nil
}

// Get возвращает распределение, если его бюджет виден пользователю.
func (s *AllocationService) Get(ctx context.Context, actor rbac.Actor, id int64) (*model.Allocation, error) {
	a, err := s.allocations.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("распределение %d", id))
	}
	if _, err := s.visibleBudget(ctx, actor, a.BudgetID); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByBudget возвращает распределения видимого бюджета.
func (s *AllocationService) ListByBudget(ctx context.Context, actor rbac.Actor, budgetID int64) ([]*model.Allocation, error) {
	if _, err := s.visibleBudget(ctx, actor, budgetID); err != nil {
		return nil, err
	}
	items, err := s.allocations.ListByBudget(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения распределений бюджета %d: %w", budgetID, err)
	}
	return items, nil
}

// Update изменяет распределение. Записываются только поля, нормализованное
// значение которых отличается от сохранённого. Если отличий нет, хранилище
// не затрагивается. Изменение финансовых полей финансовым сотрудником
// отмечает распределение как обработанное.
func (s *AllocationService) Update(ctx context.Context, actor rbac.Actor, id int64, payload map[string]any) (*UpdateAllocationResult, error) {
	existing, err := s.allocations.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("распределение %d", id))
	}

	budget, groups, err := s.writableBudget(ctx, actor, existing.BudgetID, "allocation.update")
	if err != nil {
		return nil, err
	}

	incoming, err := s.normalizePayload(ctx, actor, budget, groups, payload, "allocation.update")
	if err != nil {
		return nil, err
	}

	changes := make(map[string]*string)
	for name, v := range incoming {
		f, _ := model.LookupAllocationField(name)
		if !f.Equal(existing.Fields[name], v) {
			changes[name] = v
		}
	}
	if v, ok := changes[requiredAllocationField]; ok && v == nil {
		return nil, fmt.Errorf("%w: поле %s обязательно", ErrValidation, requiredAllocationField)
	}

	if len(changes) == 0 {
		return &UpdateAllocationResult{Allocation: existing, Changed: []string{}}, nil
	}

	financeProcessed := actor.IsFinanceStaff() && touchesFinance(changes)
	updated, err := s.allocations.Update(ctx, id, changes, actor.UserID, financeProcessed)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("распределение %d", id))
	}

	changed := make([]string, 0, len(changes))
	for name := range changes {
		changed = append(changed, name)
	}
	sort.Strings(changed)

	s.logger.InfoContext(ctx, "Распределение изменено",
		slog.Int64("allocation_id", id),
		slog.Int64("budget_id", budget.ID),
		slog.Int64("user_id", actor.UserID),
		slog.Any("fields", changed),
		slog.Bool("finance_processed", financeProcessed),
	)
	return &UpdateAllocationResult{Allocation: updated, Changed: changed}, nil
}

// Delete мягко удаляет распределение.
func (s *AllocationService) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	existing, err := s.allocations.Get(ctx, id)
	if err != nil {
		return mapRepoErr(err, fmt.Sprintf("распределение %d", id))
	}
	budget, err := s.budgets.Get(ctx, existing.BudgetID)
	if err != nil {
		return mapRepoErr(err, fmt.Sprintf("бюджет %d", existing.BudgetID))
	}
	if !rbac.CanDeleteAllocation(actor, budget) {
		return deny(ctx, s.logger, actor, "allocation.delete",
			slog.Int64("allocation_id", id),
			slog.Int64("budget_id", budget.ID),
			slog.String("budget_type", budget.Type),
		)
	}
	if err := s.allocations.SoftDelete(ctx, id, actor.UserID); err != nil {
		return mapRepoErr(err, fmt.Sprintf("распределение %d", id))
	}
	s.logger.InfoContext(ctx, "Распределение удалено",
		slog.Int64("allocation_id", id),
		slog.Int64("user_id", actor.UserID),
	)
	return nil
}

// Report возвращает страницу отчёта по распределениям.
// Видимость строк определяется ролью и не расширяется фильтрами.
func (s *AllocationService) Report(ctx context.Context, actor rbac.Actor, params repository.ReportParams) ([]*model.AllocationReportRow, int, error) {
	scope, err := ResolveScope(ctx, s.budgets, actor)
	if err != nil {
		return nil, 0, err
	}
	if scope.Visibility == rbac.VisibleNone {
		s.logger.WarnContext(ctx, "Отчёт запрошен пользователем без видимости",
			slog.Int64("user_id", actor.UserID),
			slog.String("role", actor.Role),
		)
	}
	if params.DateFrom != nil && params.DateTo != nil && params.DateTo.Before(*params.DateFrom) {
		return nil, 0, fmt.Errorf("%w: конец периода раньше начала", ErrValidation)
	}

	params.Scope = scope
	params.Limit, params.Offset = clampPage(params.Limit, params.Offset, defaultPageLimit, maxPageLimit)

	rows, total, err := s.allocations.Report(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка построения отчёта: %w", err)
	}
	return rows, total, nil
}

// writableBudget перечитывает бюджет и возвращает группы полей,
// доступные actor для записи. Пустой набор — отказ.
func (s *AllocationService) writableBudget(ctx context.Context, actor rbac.Actor, budgetID int64, op string) (*model.Budget, []model.FieldGroup, error) {
	budget, err := s.budgets.Get(ctx, budgetID)
	if err != nil {
		return nil, nil, mapRepoErr(err, fmt.Sprintf("бюджет %d", budgetID))
	}

	var accessible []int64
	if actor.IsFinanceStaff() {
		accessible, err = s.budgets.AccessibleDepartments(ctx, actor.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка получения доступа к отделам: %w", err)
		}
	}

	groups := rbac.AllowedAllocationGroups(actor, budget, accessible)
	if len(groups) == 0 {
		return nil, nil, deny(ctx, s.logger, actor, op,
			slog.Int64("budget_id", budget.ID),
			slog.String("budget_type", budget.Type),
		)
	}
	return budget, groups, nil
}

// normalizePayload проверяет имена полей, права на запись и приводит
// значения к каноническому виду.
func (s *AllocationService) normalizePayload(
	ctx context.Context,
	actor rbac.Actor,
	budget *model.Budget,
	groups []model.FieldGroup,
	payload map[string]any,
	op string,
) (map[string]*string, error) {
	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]*string, len(payload))
	var denied []string
	for _, name := range names {
		f, ok := model.LookupAllocationField(name)
		if !ok {
			return nil, fmt.Errorf("%w: неизвестное поле %q", ErrValidation, name)
		}
		if !rbac.CanWriteField(groups, f) {
			denied = append(denied, name)
			continue
		}
		v, err := f.Normalize(payload[name])
		if err != nil {
			if errors.Is(err, model.ErrInvalidFieldValue) {
				return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
			}
			return nil, err
		}
		out[name] = v
	}

	if len(denied) > 0 {
		return nil, deny(ctx, s.logger, actor, op,
			slog.Int64("budget_id", budget.ID),
			slog.Any("fields", denied),
		)
	}
	return out, nil
}

// visibleBudget возвращает бюджет, если он виден actor; иначе ErrNotFound.
func (s *AllocationService) visibleBudget(ctx context.Context, actor rbac.Actor, budgetID int64) (*model.Budget, error) {
	budget, err := s.budgets.Get(ctx, budgetID)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("бюджет %d", budgetID))
	}
	scope, err := ResolveScope(ctx, s.budgets, actor)
	if err != nil {
		return nil, err
	}
	if !budgetVisible(scope, budget) {
		return nil, fmt.Errorf("%w: бюджет %d", ErrNotFound, budgetID)
	}
	return budget, nil
}

// touchesFinance — есть ли среди полей отмечающие обработку финансовым отделом.
func touchesFinance(fields map[string]*string) bool {
	return slices.ContainsFunc(model.AllocationFields, func(f model.AllocationField) bool {
		_, ok := fields[f.Name]
		return ok && f.TriggersFinanceProcessing()
	})
}
