package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// AdRepository — глобальный каталог рекламы и её назначения площадкам.
type AdRepository interface {
	CreateGlobal(ctx context.Context, ad *model.GlobalAd) error
	GetGlobal(ctx context.Context, id int64) (*model.GlobalAd, error)
	ListGlobal(ctx context.Context) ([]*model.GlobalAd, error)
	// UpdateGlobal сохраняет объявление, заполняет created_at и updated_at
	// и возвращает image_path, который был у записи до обновления.
	UpdateGlobal(ctx context.Context, ad *model.GlobalAd) (previousImage *string, err error)
	// DeleteGlobal удаляет объявление с назначениями и перенумеровывает
	// затронутые площадки. Возвращает удалённую запись.
	DeleteGlobal(ctx context.Context, id int64) (*model.GlobalAd, error)

	AssignToSite(ctx context.Context, siteID, globalAdID int64, isActive bool) (*model.SiteAd, error)
	ListForSite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteAd, error)
	RemoveFromSite(ctx context.Context, siteID, siteAdID int64) error
	ToggleActive(ctx context.Context, siteID, siteAdID int64) (bool, error)
	Reorder(ctx context.Context, siteID, siteAdID int64, dir Direction) (bool, error)
}

type adRepo struct {
	db DBTX
}

// NewAdRepository создаёт репозиторий рекламы.
func NewAdRepository(db DBTX) AdRepository {
	return &adRepo{db: db}
}

const globalAdColumns = `id, ad_type, title, ad_text, image_path, is_active, created_at, updated_at`

func scanGlobalAd(row pgx.Row) (*model.GlobalAd, error) {
	ad := &model.GlobalAd{}
	err := row.Scan(&ad.ID, &ad.Type, &ad.Title, &ad.Text, &ad.ImagePath,
		&ad.IsActive, &ad.CreatedAt, &ad.UpdatedAt)
	return ad, err
}

func (r *adRepo) CreateGlobal(ctx context.Context, ad *model.GlobalAd) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO global_ads (ad_type, title, ad_text, image_path, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		ad.Type, ad.Title, ad.Text, ad.ImagePath, ad.IsActive,
	).Scan(&ad.ID, &ad.CreatedAt, &ad.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания объявления: %w", err)
	}
	return nil
}

func (r *adRepo) GetGlobal(ctx context.Context, id int64) (*model.GlobalAd, error) {
	query := fmt.Sprintf(`SELECT %s FROM global_ads WHERE id = $1`, globalAdColumns)
	ad, err := scanGlobalAd(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения объявления: %w", err)
	}
	return ad, nil
}

func (r *adRepo) ListGlobal(ctx context.Context) ([]*model.GlobalAd, error) {
	query := fmt.Sprintf(`SELECT %s FROM global_ads ORDER BY created_at DESC, id DESC`, globalAdColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога рекламы: %w", err)
	}
	defer rows.Close()

	var result []*model.GlobalAd
	for rows.Next() {
		ad, err := scanGlobalAd(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования объявления: %w", err)
		}
		result = append(result, ad)
	}
	return result, rows.Err()
}

func (r *adRepo) UpdateGlobal(ctx context.Context, ad *model.GlobalAd) (*string, error) {
	var previous *string
	err := r.db.QueryRow(ctx, `
		UPDATE global_ads AS g
		SET ad_type = $2, title = $3, ad_text = $4, image_path = $5,
			is_active = $6, updated_at = NOW()
		FROM (SELECT id, image_path FROM global_ads WHERE id = $1 FOR UPDATE) AS old
		WHERE g.id = old.id
		RETURNING old.image_path, g.created_at, g.updated_at`,
		ad.ID, ad.Type, ad.Title, ad.Text, ad.ImagePath, ad.IsActive,
	).Scan(&previous, &ad.CreatedAt, &ad.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления объявления: %w", err)
	}
	return previous, nil
}

func (r *adRepo) DeleteGlobal(ctx context.Context, id int64) (*model.GlobalAd, error) {
	var deleted *model.GlobalAd

	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`DELETE FROM site_ads WHERE global_ad_id = $1 RETURNING site_id`, id)
		if err != nil {
			return fmt.Errorf("ошибка удаления назначений объявления: %w", err)
		}
		sites, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("ошибка удаления назначений объявления: %w", err)
		}

		query := fmt.Sprintf(`DELETE FROM global_ads WHERE id = $1 RETURNING %s`, globalAdColumns)
		deleted, err = scanGlobalAd(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка удаления объявления: %w", err)
		}

		for _, siteID := range sites {
			if err := renumberGroup(ctx, tx, siteAdsOrder, siteID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *adRepo) AssignToSite(ctx context.Context, siteID, globalAdID int64, isActive bool) (*model.SiteAd, error) {
	sa := &model.SiteAd{SiteID: siteID, GlobalAdID: globalAdID, IsActive: isActive}

	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		next, err := nextDisplayOrder(ctx, tx, siteAdsOrder, siteID)
		if err != nil {
			return err
		}
		sa.DisplayOrder = next

		err = tx.QueryRow(ctx, `
			INSERT INTO site_ads (site_id, global_ad_id, display_order, is_active)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			siteID, globalAdID, next, isActive,
		).Scan(&sa.ID, &sa.CreatedAt)
		if err != nil {
			switch {
			case isUniqueViolation(err):
				return fmt.Errorf("%w: объявление уже назначено площадке", ErrConflict)
			case isForeignKeyViolation(err):
				return ErrNotFound
			}
			return fmt.Errorf("ошибка назначения объявления: %w", err)
		}

		return tx.QueryRow(ctx,
			`SELECT ad_type, title, ad_text, image_path FROM global_ads WHERE id = $1`,
			globalAdID,
		).Scan(&sa.Type, &sa.Title, &sa.Text, &sa.ImagePath)
	})
	if err != nil {
		return nil, err
	}
	return sa, nil
}

func (r *adRepo) ListForSite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteAd, error) {
	// Для киоска (activeOnly) объявление должно быть активно и глобально
	query := `
		SELECT sa.id, sa.site_id, sa.global_ad_id, sa.display_order, sa.is_active, sa.created_at,
			ga.ad_type, ga.title, ga.ad_text, ga.image_path
		FROM site_ads sa
		JOIN global_ads ga ON ga.id = sa.global_ad_id
		WHERE sa.site_id = $1 AND ($2 = FALSE OR (sa.is_active AND ga.is_active))
		ORDER BY sa.display_order, sa.id`

	rows, err := r.db.Query(ctx, query, siteID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рекламы площадки: %w", err)
	}
	defer rows.Close()

	var result []*model.SiteAd
	for rows.Next() {
		sa := &model.SiteAd{}
		if err := rows.Scan(
			&sa.ID, &sa.SiteID, &sa.GlobalAdID, &sa.DisplayOrder, &sa.IsActive, &sa.CreatedAt,
			&sa.Type, &sa.Title, &sa.Text, &sa.ImagePath,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования рекламы площадки: %w", err)
		}
		result = append(result, sa)
	}
	return result, rows.Err()
}

func (r *adRepo) RemoveFromSite(ctx context.Context, siteID, siteAdID int64) error {
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM site_ads WHERE id = $1 AND site_id = $2`, siteAdID, siteID)
		if err != nil {
			return fmt.Errorf("ошибка удаления рекламы площадки: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return renumberGroup(ctx, tx, siteAdsOrder, siteID)
	})
}

func (r *adRepo) ToggleActive(ctx context.Context, siteID, siteAdID int64) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `
		UPDATE site_ads SET is_active = NOT is_active
		WHERE id = $1 AND site_id = $2
		RETURNING is_active`,
		siteAdID, siteID,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("ошибка переключения активности рекламы: %w", err)
	}
	return active, nil
}

func (r *adRepo) Reorder(ctx context.Context, siteID, siteAdID int64, dir Direction) (bool, error) {
	return reorder(ctx, r.db, siteAdsOrder, siteID, siteAdID, dir)
}
