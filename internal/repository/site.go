package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// SiteRepository — площадки и их настройки (site_configurations).
type SiteRepository interface {
	Create(ctx context.Context, s *model.Site) error
	Get(ctx context.Context, id int64) (*model.Site, error)
	List(ctx context.Context, activeOnly bool) ([]*model.Site, error)
	// Update сохраняет имя, флаг активности и описание сбора email.
	Update(ctx context.Context, s *model.Site) error

	// ListConfig возвращает все настройки площадки.
	ListConfig(ctx context.Context, siteID int64) ([]model.SiteConfiguration, error)
	// SetConfig создаёт или обновляет настройку (upsert по ключу).
	SetConfig(ctx context.Context, siteID int64, key, value string) error
	// DeleteConfig удаляет настройку. Отсутствующий ключ — ErrNotFound.
	DeleteConfig(ctx context.Context, siteID int64, key string) error
}

type siteRepo struct {
	db DBTX
}

// NewSiteRepository создаёт репозиторий площадок.
func NewSiteRepository(db DBTX) SiteRepository {
	return &siteRepo{db: db}
}

const siteColumns = `id, name, is_active, email_collection_description, created_at, updated_at`

func scanSite(row pgx.Row) (*model.Site, error) {
	s := &model.Site{}
	err := row.Scan(&s.ID, &s.Name, &s.IsActive, &s.EmailCollectionDescription, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *siteRepo) Create(ctx context.Context, s *model.Site) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sites (name, is_active, email_collection_description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		s.Name, s.IsActive, s.EmailCollectionDescription,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: площадка %q уже существует", ErrConflict, s.Name)
		}
		return fmt.Errorf("ошибка создания площадки: %w", err)
	}
	return nil
}

func (r *siteRepo) Get(ctx context.Context, id int64) (*model.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE id = $1`, siteColumns)
	s, err := scanSite(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения площадки: %w", err)
	}
	return s, nil
}

func (r *siteRepo) List(ctx context.Context, activeOnly bool) ([]*model.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE ($1 = FALSE OR is_active) ORDER BY name`, siteColumns)
	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка площадок: %w", err)
	}
	defer rows.Close()

	var result []*model.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования площадки: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *siteRepo) Update(ctx context.Context, s *model.Site) error {
	err := r.db.QueryRow(ctx, `
		UPDATE sites
		SET name = $2, is_active = $3, email_collection_description = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Name, s.IsActive, s.EmailCollectionDescription,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: площадка %q уже существует", ErrConflict, s.Name)
		}
		return fmt.Errorf("ошибка обновления площадки: %w", err)
	}
	return nil
}

func (r *siteRepo) ListConfig(ctx context.Context, siteID int64) ([]model.SiteConfiguration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT site_id, key, value, updated_at
		FROM site_configurations
		WHERE site_id = $1
		ORDER BY key`, siteID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек площадки %d: %w", siteID, err)
	}
	defer rows.Close()

	var result []model.SiteConfiguration
	for rows.Next() {
		var c model.SiteConfiguration
		if err := rows.Scan(&c.SiteID, &c.Key, &c.Value, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования настройки: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// SetConfig — INSERT ... ON CONFLICT DO UPDATE по (site_id, key).
func (r *siteRepo) SetConfig(ctx context.Context, siteID int64, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO site_configurations (site_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (site_id, key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = NOW()`,
		siteID, key, value)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка сохранения настройки %d[%s]: %w", siteID, key, err)
	}
	return nil
}

func (r *siteRepo) DeleteConfig(ctx context.Context, siteID int64, key string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM site_configurations WHERE site_id = $1 AND key = $2`, siteID, key)
	if err != nil {
		return fmt.Errorf("ошибка удаления настройки %d[%s]: %w", siteID, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
