package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// CatalogRepository — справочники бюджетного модуля: отделы, гранты, поставщики.
type CatalogRepository interface {
	// CreateDepartment создаёт отдел. Занятый slug — ErrConflict.
	CreateDepartment(ctx context.Context, d *model.Department) error
	GetDepartment(ctx context.Context, id int64) (*model.Department, error)
	ListDepartments(ctx context.Context) ([]*model.Department, error)
	// RenameDepartment меняет только имя, slug остаётся прежним.
	RenameDepartment(ctx context.Context, id int64, name string) (*model.Department, error)
	// SlugExists проверяет, занят ли slug.
	SlugExists(ctx context.Context, slug string) (bool, error)

	CreateGrant(ctx context.Context, g *model.Grant) error
	GetGrant(ctx context.Context, id int64) (*model.Grant, error)
	ListGrants(ctx context.Context) ([]*model.Grant, error)
	UpdateGrant(ctx context.Context, g *model.Grant) error
	SoftDeleteGrant(ctx context.Context, id int64) error

	CreateVendor(ctx context.Context, v *model.Vendor) error
	ListVendors(ctx context.Context, activeOnly bool) ([]*model.Vendor, error)
}

type catalogRepo struct {
	db DBTX
}

// NewCatalogRepository создаёт репозиторий справочников.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepo{db: db}
}

// --- Отделы ---

func (r *catalogRepo) CreateDepartment(ctx context.Context, d *model.Department) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO departments (name, slug) VALUES ($1, $2)
		RETURNING id, created_at`, d.Name, d.Slug,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug отдела %q занят", ErrConflict, d.Slug)
		}
		return fmt.Errorf("ошибка создания отдела: %w", err)
	}
	return nil
}

func (r *catalogRepo) GetDepartment(ctx context.Context, id int64) (*model.Department, error) {
	d := &model.Department{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, slug, created_at FROM departments WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Slug, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения отдела: %w", err)
	}
	return d, nil
}

func (r *catalogRepo) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, slug, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка отделов: %w", err)
	}
	defer rows.Close()

	var result []*model.Department
	for rows.Next() {
		d := &model.Department{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Slug, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования отдела: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *catalogRepo) RenameDepartment(ctx context.Context, id int64, name string) (*model.Department, error) {
	d := &model.Department{}
	err := r.db.QueryRow(ctx, `
		UPDATE departments SET name = $2 WHERE id = $1
		RETURNING id, name, slug, created_at`, id, name,
	).Scan(&d.ID, &d.Name, &d.Slug, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка переименования отдела: %w", err)
	}
	return d, nil
}

func (r *catalogRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки slug отдела: %w", err)
	}
	return exists, nil
}

// --- Гранты ---

const grantColumns = `id, name, grant_code, description, start_date, end_date, created_at, updated_at, deleted_at`

func scanGrant(row pgx.Row) (*model.Grant, error) {
	g := &model.Grant{}
	err := row.Scan(&g.ID, &g.Name, &g.Code, &g.Description, &g.StartDate, &g.EndDate,
		&g.CreatedAt, &g.UpdatedAt, &g.DeletedAt)
	return g, err
}

func (r *catalogRepo) CreateGrant(ctx context.Context, g *model.Grant) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO grants (name, grant_code, description, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		g.Name, g.Code, g.Description, g.StartDate, g.EndDate,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: грант с таким кодом уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания гранта: %w", err)
	}
	return nil
}

func (r *catalogRepo) GetGrant(ctx context.Context, id int64) (*model.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM grants WHERE id = $1 AND deleted_at IS NULL`, grantColumns)
	g, err := scanGrant(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения гранта: %w", err)
	}
	return g, nil
}

func (r *catalogRepo) ListGrants(ctx context.Context) ([]*model.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM grants WHERE deleted_at IS NULL ORDER BY name`, grantColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка грантов: %w", err)
	}
	defer rows.Close()

	var result []*model.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования гранта: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (r *catalogRepo) UpdateGrant(ctx context.Context, g *model.Grant) error {
	err := r.db.QueryRow(ctx, `
		UPDATE grants
		SET name = $2, grant_code = $3, description = $4, start_date = $5, end_date = $6,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`,
		g.ID, g.Name, g.Code, g.Description, g.StartDate, g.EndDate,
	).Scan(&g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: грант с таким кодом уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления гранта: %w", err)
	}
	return nil
}

func (r *catalogRepo) SoftDeleteGrant(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE grants SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления гранта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Поставщики ---

func (r *catalogRepo) CreateVendor(ctx context.Context, v *model.Vendor) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO vendors (name, is_active) VALUES ($1, $2)
		RETURNING id, created_at`, v.Name, v.IsActive,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: поставщик %q уже существует", ErrConflict, v.Name)
		}
		return fmt.Errorf("ошибка создания поставщика: %w", err)
	}
	return nil
}

func (r *catalogRepo) ListVendors(ctx context.Context, activeOnly bool) ([]*model.Vendor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, is_active, created_at FROM vendors
		WHERE ($1 = FALSE OR is_active)
		ORDER BY name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка поставщиков: %w", err)
	}
	defer rows.Close()

	var result []*model.Vendor
	for rows.Next() {
		v := &model.Vendor{}
		if err := rows.Scan(&v.ID, &v.Name, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования поставщика: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
