package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// BudgetListParams — параметры выборки бюджетов.
type BudgetListParams struct {
	Scope        VisibilityScope
	DepartmentID *int64
	GrantID      *int64
	Type         *string
	Limit        int
	Offset       int
}

// BudgetRepository — бюджеты и доступ финансового отдела к отделам.
type BudgetRepository interface {
	Create(ctx context.Context, b *model.Budget) error
	// Get возвращает неудалённый бюджет.
	Get(ctx context.Context, id int64) (*model.Budget, error)
	Update(ctx context.Context, b *model.Budget) error
	SoftDelete(ctx context.Context, id int64) error
	List(ctx context.Context, params BudgetListParams) ([]*model.Budget, int, error)

	// AccessibleDepartments возвращает отделы, доступные финансовому сотруднику.
	AccessibleDepartments(ctx context.Context, financeUserID int64) ([]int64, error)
	// SetAccessibleDepartments заменяет набор доступных отделов целиком.
	SetAccessibleDepartments(ctx context.Context, financeUserID int64, departmentIDs []int64) error
}

type budgetRepo struct {
	db DBTX
}

// NewBudgetRepository создаёт репозиторий бюджетов.
func NewBudgetRepository(db DBTX) BudgetRepository {
	return &budgetRepo{db: db}
}

const budgetColumns = `b.id, b.name, b.user_id, b.grant_id, b.department_id,
	b.fiscal_year_start, b.fiscal_year_end, b.budget_type, b.notes,
	b.created_at, b.updated_at, b.deleted_at`

func scanBudget(row pgx.Row) (*model.Budget, error) {
	b := &model.Budget{}
	err := row.Scan(&b.ID, &b.Name, &b.UserID, &b.GrantID, &b.DepartmentID,
		&b.FiscalYearStart, &b.FiscalYearEnd, &b.Type, &b.Notes,
		&b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	return b, err
}

func (r *budgetRepo) Create(ctx context.Context, b *model.Budget) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO budgets (name, user_id, grant_id, department_id,
			fiscal_year_start, fiscal_year_end, budget_type, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		b.Name, b.UserID, b.GrantID, b.DepartmentID,
		b.FiscalYearStart, b.FiscalYearEnd, b.Type, b.Notes,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
		}
		return fmt.Errorf("ошибка создания бюджета: %w", err)
	}
	return nil
}

func (r *budgetRepo) Get(ctx context.Context, id int64) (*model.Budget, error) {
	query := fmt.Sprintf(`SELECT %s FROM budgets b WHERE b.id = $1 AND b.deleted_at IS NULL`, budgetColumns)
	b, err := scanBudget(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения бюджета: %w", err)
	}
	return b, nil
}

func (r *budgetRepo) Update(ctx context.Context, b *model.Budget) error {
	err := r.db.QueryRow(ctx, `
		UPDATE budgets
		SET name = $2, user_id = $3, grant_id = $4, department_id = $5,
			fiscal_year_start = $6, fiscal_year_end = $7, budget_type = $8, notes = $9,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`,
		b.ID, b.Name, b.UserID, b.GrantID, b.DepartmentID,
		b.FiscalYearStart, b.FiscalYearEnd, b.Type, b.Notes,
	).Scan(&b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
		}
		return fmt.Errorf("ошибка обновления бюджета: %w", err)
	}
	return nil
}

func (r *budgetRepo) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE budgets SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления бюджета: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *budgetRepo) List(ctx context.Context, params BudgetListParams) ([]*model.Budget, int, error) {
	conditions, args, ok := params.Scope.conditions("b", 1)
	if !ok {
		return nil, 0, nil
	}
	conditions = append(conditions, "b.deleted_at IS NULL")
	argNum := len(args) + 1

	if params.DepartmentID != nil {
		conditions = append(conditions, fmt.Sprintf("b.department_id = $%d", argNum))
		args = append(args, *params.DepartmentID)
		argNum++
	}
	if params.GrantID != nil {
		conditions = append(conditions, fmt.Sprintf("b.grant_id = $%d", argNum))
		args = append(args, *params.GrantID)
		argNum++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("b.budget_type = $%d", argNum))
		args = append(args, *params.Type)
		argNum++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM budgets b `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта бюджетов: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM budgets b
		%s
		ORDER BY b.fiscal_year_start DESC, b.name, b.id
		LIMIT $%d OFFSET $%d`, budgetColumns, where, argNum, argNum+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка бюджетов: %w", err)
	}
	defer rows.Close()

	var result []*model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования бюджета: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации бюджетов: %w", err)
	}
	return result, total, nil
}

func (r *budgetRepo) AccessibleDepartments(ctx context.Context, financeUserID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT accessible_department_id FROM finance_department_access
		WHERE finance_user_id = $1
		ORDER BY accessible_department_id`, financeUserID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения доступных отделов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения доступных отделов: %w", err)
	}
	return ids, nil
}

func (r *budgetRepo) SetAccessibleDepartments(ctx context.Context, financeUserID int64, departmentIDs []int64) error {
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM finance_department_access WHERE finance_user_id = $1`, financeUserID); err != nil {
			return fmt.Errorf("ошибка очистки доступа к отделам: %w", err)
		}
		if len(departmentIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO finance_department_access (finance_user_id, accessible_department_id)
			SELECT $1, d FROM unnest($2::bigint[]) AS d
			ON CONFLICT DO NOTHING`, financeUserID, departmentIDs)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
			}
			return fmt.Errorf("ошибка сохранения доступа к отделам: %w", err)
		}
		return nil
	})
}
