package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// NotifierRepository — CRUD уведомляемых сотрудников площадки.
// Все изменяющие операции ограничены site_id вызывающего.
type NotifierRepository interface {
	Create(ctx context.Context, n *model.Notifier) error
	Get(ctx context.Context, siteID, id int64) (*model.Notifier, error)
	ListBySite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.Notifier, error)
	Update(ctx context.Context, n *model.Notifier) error
	Delete(ctx context.Context, siteID, id int64) error
	ToggleActive(ctx context.Context, siteID, id int64) (bool, error)
}

type notifierRepo struct {
	db DBTX
}

// NewNotifierRepository создаёт репозиторий уведомляемых сотрудников.
func NewNotifierRepository(db DBTX) NotifierRepository {
	return &notifierRepo{db: db}
}

const notifierColumns = `id, site_id, staff_name, staff_email, is_active, created_at, updated_at`

func scanNotifier(row pgx.Row) (*model.Notifier, error) {
	n := &model.Notifier{}
	err := row.Scan(&n.ID, &n.SiteID, &n.StaffName, &n.StaffEmail, &n.IsActive, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func (r *notifierRepo) Create(ctx context.Context, n *model.Notifier) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifiers (site_id, staff_name, staff_email, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		n.SiteID, n.StaffName, n.StaffEmail, n.IsActive,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка создания уведомления: %w", err)
	}
	return nil
}

func (r *notifierRepo) Get(ctx context.Context, siteID, id int64) (*model.Notifier, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifiers WHERE id = $1 AND site_id = $2`, notifierColumns)
	n, err := scanNotifier(r.db.QueryRow(ctx, query, id, siteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения уведомления: %w", err)
	}
	return n, nil
}

func (r *notifierRepo) ListBySite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.Notifier, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM notifiers
		WHERE site_id = $1 AND ($2 = FALSE OR is_active)
		ORDER BY staff_name, id`, notifierColumns)

	rows, err := r.db.Query(ctx, query, siteID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений площадки: %w", err)
	}
	defer rows.Close()

	var result []*model.Notifier
	for rows.Next() {
		n, err := scanNotifier(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *notifierRepo) Update(ctx context.Context, n *model.Notifier) error {
	err := r.db.QueryRow(ctx, `
		UPDATE notifiers
		SET staff_name = $3, staff_email = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1 AND site_id = $2
		RETURNING updated_at`,
		n.ID, n.SiteID, n.StaffName, n.StaffEmail, n.IsActive,
	).Scan(&n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления уведомления: %w", err)
	}
	return nil
}

func (r *notifierRepo) Delete(ctx context.Context, siteID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifiers WHERE id = $1 AND site_id = $2`, id, siteID)
	if err != nil {
		return fmt.Errorf("ошибка удаления уведомления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notifierRepo) ToggleActive(ctx context.Context, siteID, id int64) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `
		UPDATE notifiers SET is_active = NOT is_active, updated_at = NOW()
		WHERE id = $1 AND site_id = $2
		RETURNING is_active`, id, siteID,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("ошибка переключения активности уведомления: %w", err)
	}
	return active, nil
}
