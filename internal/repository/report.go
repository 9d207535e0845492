package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
)

// VisibilityScope — ограничение строк по роли действующего пользователя.
type VisibilityScope struct {
	Visibility rbac.Visibility
	// UserID — владелец бюджетов для VisibleOwn
	UserID int64
	// Departments — доступные отделы для VisibleDepartments
	Departments []int64
}

// conditions строит условия видимости для таблицы budgets с алиасом alias.
// ok == false — пользователю не видна ни одна строка, запрос выполнять не нужно.
func (s VisibilityScope) conditions(alias string, startArg int) (conds []string, args []any, ok bool) {
	switch s.Visibility {
	case rbac.VisibleAll:
		return nil, nil, true
	case rbac.VisibleDepartments:
		if len(s.Departments) == 0 {
			return nil, nil, false
		}
		return []string{fmt.Sprintf("%s.department_id = ANY($%d)", alias, startArg)},
			[]any{s.Departments}, true
	case rbac.VisibleOwn:
		return []string{fmt.Sprintf("%s.user_id = $%d", alias, startArg)},
			[]any{s.UserID}, true
	default:
		return nil, nil, false
	}
}

// ReportParams — параметры отчёта по распределениям.
// Все фильтры — указатели, nil = фильтр не применяется.
type ReportParams struct {
	// Scope — видимость по роли, применяется всегда
	Scope VisibilityScope
	// BudgetID — конкретный бюджет
	BudgetID *int64
	// GrantID — грант
	GrantID *int64
	// DepartmentID — отдел бюджета
	DepartmentID *int64
	// VendorID — поставщик
	VendorID *int64
	// OwnerUserID — владелец бюджета
	OwnerUserID *int64
	// BudgetType — тип бюджета (Staff, Admin)
	BudgetType *string
	// PaymentStatus — статус оплаты
	PaymentStatus *string
	// DateFrom — transaction_date >= DateFrom
	DateFrom *time.Time
	// DateTo — transaction_date <= DateTo
	DateTo *time.Time
	// Query — подстрока в имени клиента, номере ваучера или пояснении
	Query *string
	// SortBy — transaction_date, created_at, client_name, budget_name
	SortBy string
	// SortOrder — asc, desc
	SortOrder string
	Limit     int
	Offset    int
}

const reportFrom = `
	FROM budget_allocations a
	JOIN budgets b ON b.id = a.budget_id AND b.deleted_at IS NULL
	JOIN grants g ON g.id = b.grant_id
	JOIN departments d ON d.id = b.department_id
	LEFT JOIN vendors v ON v.id = a.vendor_id
	LEFT JOIN users u ON u.id = b.user_id`

// buildReportWhere строит WHERE отчёта. ok == false — видимость пустая.
//
//nolint:cyclop // сложность обусловлена количеством фильтров
func buildReportWhere(params ReportParams, startArg int) (where string, args []any, ok bool) {
	conditions, args, ok := params.Scope.conditions("b", startArg)
	if !ok {
		return "", nil, false
	}
	conditions = append(conditions, "a.deleted_at IS NULL")
	argNum := startArg + len(args)

	if params.BudgetID != nil {
		conditions = append(conditions, fmt.Sprintf("a.budget_id = $%d", argNum))
		args = append(args, *params.BudgetID)
		argNum++
	}
	if params.GrantID != nil {
		conditions = append(conditions, fmt.Sprintf("b.grant_id = $%d", argNum))
		args = append(args, *params.GrantID)
		argNum++
	}
	// Фильтр по отделу сужает видимость, но не расширяет её
	if params.DepartmentID != nil {
		conditions = append(conditions, fmt.Sprintf("b.department_id = $%d", argNum))
		args = append(args, *params.DepartmentID)
		argNum++
	}
	if params.VendorID != nil {
		conditions = append(conditions, fmt.Sprintf("a.vendor_id = $%d", argNum))
		args = append(args, *params.VendorID)
		argNum++
	}
	if params.OwnerUserID != nil {
		conditions = append(conditions, fmt.Sprintf("b.user_id = $%d", argNum))
		args = append(args, *params.OwnerUserID)
		argNum++
	}
	if params.BudgetType != nil && *params.BudgetType != "" {
		conditions = append(conditions, fmt.Sprintf("b.budget_type = $%d", argNum))
		args = append(args, *params.BudgetType)
		argNum++
	}
	if params.PaymentStatus != nil && *params.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("a.payment_status = $%d", argNum))
		args = append(args, *params.PaymentStatus)
		argNum++
	}
	if params.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.transaction_date >= $%d", argNum))
		args = append(args, *params.DateFrom)
		argNum++
	}
	if params.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.transaction_date <= $%d", argNum))
		args = append(args, *params.DateTo)
		argNum++
	}
	if params.Query != nil && *params.Query != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(a.client_name ILIKE $%[1]d OR a.voucher_number ILIKE $%[1]d OR a.program_explanation ILIKE $%[1]d)",
			argNum))
		args = append(args, "%"+escapeLike(*params.Query)+"%")
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, true
}

// likeEscaper экранирует спецсимволы LIKE; в PostgreSQL экранирующий
// символ по умолчанию — обратная косая черта.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike превращает пользовательский текст в литерал для LIKE/ILIKE.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

const defaultReportSort = "a.transaction_date"

// buildReportOrderBy строит ORDER BY по whitelist полей.
func buildReportOrderBy(sortBy, sortOrder string) string {
	column := defaultReportSort
	switch sortBy {
	case "created_at":
		column = "a.created_at"
	case "client_name":
		column = "a.client_name"
	case "budget_name":
		column = "b.name"
	}

	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}

	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, a.id %s", column, direction, direction)
}

func (r *allocationRepo) Report(ctx context.Context, params ReportParams) ([]*model.AllocationReportRow, int, error) {
	where, args, ok := buildReportWhere(params, 1)
	if !ok {
		// Неизвестная роль или пустой список отделов — ни одной строки
		return nil, 0, nil
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) `+reportFrom+` `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта строк отчёта: %w", err)
	}

	argNum := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s,
			b.name, b.budget_type, g.id, g.name, d.id, d.name, v.name, u.id, u.full_name
		%s
		%s
		%s
		LIMIT $%d OFFSET $%d`,
		allocationColumns, reportFrom, where,
		buildReportOrderBy(params.SortBy, params.SortOrder), argNum, argNum+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка построения отчёта: %w", err)
	}
	defer rows.Close()

	var result []*model.AllocationReportRow
	for rows.Next() {
		s := newAllocationScanner()
		row := &model.AllocationReportRow{}
		targets := append(s.targets(),
			&row.BudgetName, &row.BudgetType, &row.GrantID, &row.GrantName,
			&row.DepartmentID, &row.DepartmentName, &row.VendorName,
			&row.OwnerUserID, &row.OwnerName,
		)
		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования строки отчёта: %w", err)
		}
		row.Allocation = *s.result()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации отчёта: %w", err)
	}

	return result, total, nil
}
