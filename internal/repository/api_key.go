package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// APIKeyRepository — хранилище API-ключей (только bcrypt-хэши).
type APIKeyRepository interface {
	Create(ctx context.Context, k *model.APIKey) error
	GetByID(ctx context.Context, id int64) (*model.APIKey, error)
	// List возвращает ключи без хэшей, опционально включая отозванные.
	List(ctx context.Context, includeRevoked bool) ([]*model.APIKey, error)
	// ListActive возвращает неотозванные ключи с хэшами для проверки секрета.
	ListActive(ctx context.Context) ([]*model.APIKey, error)
	// TouchLastUsed проставляет last_used_at = NOW().
	TouchLastUsed(ctx context.Context, id int64) error
	// Revoke проставляет revoked_at, если ключ ещё активен.
	// Возвращает false, если ключ уже был отозван.
	Revoke(ctx context.Context, id int64) (bool, error)
}

type apiKeyRepo struct {
	db DBTX
}

// NewAPIKeyRepository создаёт репозиторий API-ключей.
func NewAPIKeyRepository(db DBTX) APIKeyRepository {
	return &apiKeyRepo{db: db}
}

const apiKeyColumns = `id, name, key_hash, permissions, associated_user_id, associated_site_id,
	created_at, last_used_at, revoked_at`

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	k := &model.APIKey{}
	err := row.Scan(&k.ID, &k.Name, &k.KeyHash, &k.Permissions,
		&k.AssociatedUserID, &k.AssociatedSiteID,
		&k.CreatedAt, &k.LastUsedAt, &k.RevokedAt)
	return k, err
}

func (r *apiKeyRepo) Create(ctx context.Context, k *model.APIKey) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO api_keys (name, key_hash, permissions, associated_user_id, associated_site_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		k.Name, k.KeyHash, k.Permissions, k.AssociatedUserID, k.AssociatedSiteID,
	).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
		}
		return fmt.Errorf("ошибка создания API-ключа: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) GetByID(ctx context.Context, id int64) (*model.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE id = $1`, apiKeyColumns)
	k, err := scanAPIKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения API-ключа: %w", err)
	}
	k.KeyHash = ""
	return k, nil
}

func (r *apiKeyRepo) list(ctx context.Context, where string) ([]*model.APIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM api_keys %s ORDER BY id`, apiKeyColumns, where)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения API-ключей: %w", err)
	}
	defer rows.Close()

	var result []*model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования API-ключа: %w", err)
		}
		result = append(result, k)
	}
	return result, rows.Err()
}

func (r *apiKeyRepo) List(ctx context.Context, includeRevoked bool) ([]*model.APIKey, error) {
	where := "WHERE revoked_at IS NULL"
	if includeRevoked {
		where = ""
	}
	keys, err := r.list(ctx, where)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		k.KeyHash = ""
	}
	return keys, nil
}

func (r *apiKeyRepo) ListActive(ctx context.Context) ([]*model.APIKey, error) {
	return r.list(ctx, "WHERE revoked_at IS NULL")
}

func (r *apiKeyRepo) TouchLastUsed(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления last_used_at: %w", err)
	}
	return nil
}

func (r *apiKeyRepo) Revoke(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("ошибка отзыва API-ключа: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Ноль строк: ключ уже отозван или не существует
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM api_keys WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки API-ключа: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}
