package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// AllocationRepository — строки распределений бюджетов.
// Значения полей передаются в нормализованном текстовом виде и
// приводятся к типу колонки на стороне PostgreSQL.
type AllocationRepository interface {
	// Create вставляет распределение с полями из a.Fields.
	Create(ctx context.Context, a *model.Allocation) error
	// Get возвращает неудалённое распределение.
	Get(ctx context.Context, id int64) (*model.Allocation, error)
	// Update записывает только переданные поля. financeProcessed — проставить
	// fin_processed_by_user_id/fin_processed_at на actorID.
	Update(ctx context.Context, id int64, changes map[string]*string, actorID int64, financeProcessed bool) (*model.Allocation, error)
	// SoftDelete проставляет deleted_at и updated_by_user_id.
	SoftDelete(ctx context.Context, id, actorID int64) error
	ListByBudget(ctx context.Context, budgetID int64) ([]*model.Allocation, error)
	// Report — отчёт с фильтрами, видимостью по роли и пагинацией.
	Report(ctx context.Context, params ReportParams) ([]*model.AllocationReportRow, int, error)
}

type allocationRepo struct {
	db DBTX
}

// NewAllocationRepository создаёт репозиторий распределений.
func NewAllocationRepository(db DBTX) AllocationRepository {
	return &allocationRepo{db: db}
}

// allocationColumns — колонки распределения с префиксом a.
// Поля читаются как text, чтобы значения совпадали с нормализованными.
var allocationColumns = func() string {
	cols := []string{"a.id", "a.budget_id"}
	for _, f := range model.AllocationFields {
		cols = append(cols, fmt.Sprintf("a.%s::text", f.Name))
	}
	cols = append(cols,
		"a.fin_processed_by_user_id", "a.fin_processed_at",
		"a.created_by_user_id", "a.updated_by_user_id",
		"a.created_at", "a.updated_at", "a.deleted_at",
	)
	return strings.Join(cols, ", ")
}()

// allocationScanner собирает распределение из строки с allocationColumns.
type allocationScanner struct {
	a      *model.Allocation
	values []*string
}

func newAllocationScanner() *allocationScanner {
	return &allocationScanner{
		a:      &model.Allocation{},
		values: make([]*string, len(model.AllocationFields)),
	}
}

func (s *allocationScanner) targets() []any {
	t := []any{&s.a.ID, &s.a.BudgetID}
	for i := range s.values {
		t = append(t, &s.values[i])
	}
	return append(t,
		&s.a.FinProcessedByUserID, &s.a.FinProcessedAt,
		&s.a.CreatedByUserID, &s.a.UpdatedByUserID,
		&s.a.CreatedAt, &s.a.UpdatedAt, &s.a.DeletedAt,
	)
}

func (s *allocationScanner) result() *model.Allocation {
	s.a.Fields = make(map[string]*string, len(s.values))
	for i, f := range model.AllocationFields {
		s.a.Fields[f.Name] = s.values[i]
	}
	return s.a
}

func scanAllocation(row pgx.Row) (*model.Allocation, error) {
	s := newAllocationScanner()
	if err := row.Scan(s.targets()...); err != nil {
		return nil, err
	}
	return s.result(), nil
}

// fieldParam возвращает placeholder с приведением к типу колонки.
func fieldParam(f model.AllocationField, argNum int) string {
	return fmt.Sprintf("$%d::text::%s", argNum, f.SQLType())
}

func (r *allocationRepo) Create(ctx context.Context, a *model.Allocation) error {
	cols := []string{"budget_id", "created_by_user_id", "updated_by_user_id", "fin_processed_by_user_id", "fin_processed_at"}
	params := []string{"$1", "$2", "$2", "$3", "CASE WHEN $3::bigint IS NULL THEN NULL ELSE NOW() END"}
	args := []any{a.BudgetID, a.CreatedByUserID, a.FinProcessedByUserID}
	argNum := len(args) + 1

	// Порядок полей фиксирован перечнем AllocationFields
	for _, f := range model.AllocationFields {
		v, ok := a.Fields[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, f.Name)
		params = append(params, fieldParam(f, argNum))
		args = append(args, v)
		argNum++
	}

	query := fmt.Sprintf(`
		WITH a AS (
			INSERT INTO budget_allocations (%s)
			VALUES (%s)
			RETURNING *
		)
		SELECT %s FROM a`,
		strings.Join(cols, ", "), strings.Join(params, ", "), allocationColumns)

	created, err := scanAllocation(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
		}
		return fmt.Errorf("ошибка создания распределения: %w", err)
	}
	*a = *created
	return nil
}

func (r *allocationRepo) Get(ctx context.Context, id int64) (*model.Allocation, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_allocations a WHERE a.id = $1 AND a.deleted_at IS NULL`, allocationColumns)
	a, err := scanAllocation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения распределения: %w", err)
	}
	return a, nil
}

func (r *allocationRepo) Update(ctx context.Context, id int64, changes map[string]*string, actorID int64, financeProcessed bool) (*model.Allocation, error) {
	sets := []string{"updated_by_user_id = $2", "updated_at = NOW()"}
	args := []any{id, actorID}
	argNum := len(args) + 1

	for _, f := range model.AllocationFields {
		v, ok := changes[f.Name]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", f.Name, fieldParam(f, argNum)))
		args = append(args, v)
		argNum++
	}
	if len(args) == 2 {
		return nil, fmt.Errorf("пустой набор изменений распределения %d", id)
	}
	if financeProcessed {
		sets = append(sets, "fin_processed_by_user_id = $2", "fin_processed_at = NOW()")
	}

	query := fmt.Sprintf(`
		WITH a AS (
			UPDATE budget_allocations
			SET %s
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING *
		)
		SELECT %s FROM a`, strings.Join(sets, ", "), allocationColumns)

	a, err := scanAllocation(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
		}
		return nil, fmt.Errorf("ошибка обновления распределения: %w", err)
	}
	return a, nil
}

func (r *allocationRepo) SoftDelete(ctx context.Context, id, actorID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE budget_allocations
		SET deleted_at = NOW(), updated_by_user_id = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, actorID)
	if err != nil {
		return fmt.Errorf("ошибка удаления распределения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *allocationRepo) ListByBudget(ctx context.Context, budgetID int64) ([]*model.Allocation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM budget_allocations a
		WHERE a.budget_id = $1 AND a.deleted_at IS NULL
		ORDER BY a.transaction_date DESC, a.id DESC`, allocationColumns)

	rows, err := r.db.Query(ctx, query, budgetID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения распределений бюджета: %w", err)
	}
	defer rows.Close()

	var result []*model.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования распределения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
