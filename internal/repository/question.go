package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// QuestionRepository — глобальный каталог вопросов и их назначения площадкам.
type QuestionRepository interface {
	// CreateGlobal добавляет вопрос в каталог. Дублирующийся slug — ErrConflict.
	CreateGlobal(ctx context.Context, q *model.GlobalQuestion) error
	GetGlobal(ctx context.Context, id int64) (*model.GlobalQuestion, error)
	GetGlobalByTitle(ctx context.Context, title string) (*model.GlobalQuestion, error)
	ListGlobal(ctx context.Context) ([]*model.GlobalQuestion, error)
	// UpdateGlobalText меняет только текст вопроса, slug неизменяем.
	UpdateGlobalText(ctx context.Context, id int64, text string) (*model.GlobalQuestion, error)
	// DeleteGlobal удаляет вопрос с его назначениями и перенумеровывает
	// затронутые площадки в одной транзакции. Возвращает удалённую запись.
	DeleteGlobal(ctx context.Context, id int64) (*model.GlobalQuestion, error)

	// AssignToSite назначает вопрос площадке в конец списка.
	// Повторное назначение — ErrConflict.
	AssignToSite(ctx context.Context, siteID, globalQuestionID int64, isActive bool) (*model.SiteQuestion, error)
	// ListForSite возвращает назначения площадки по display_order.
	ListForSite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteQuestion, error)
	// RemoveFromSite удаляет назначение площадки и закрывает пропуск в порядке.
	RemoveFromSite(ctx context.Context, siteID, siteQuestionID int64) error
	// ToggleActive инвертирует флаг активности и возвращает новое значение.
	ToggleActive(ctx context.Context, siteID, siteQuestionID int64) (bool, error)
	// Reorder перемещает назначение вверх/вниз; dir == "" — перенумерация.
	Reorder(ctx context.Context, siteID, siteQuestionID int64, dir Direction) (bool, error)
}

type questionRepo struct {
	db DBTX
}

// NewQuestionRepository создаёт репозиторий вопросов.
func NewQuestionRepository(db DBTX) QuestionRepository {
	return &questionRepo{db: db}
}

const globalQuestionColumns = `id, question_text, question_title, created_at, updated_at`

func scanGlobalQuestion(row pgx.Row) (*model.GlobalQuestion, error) {
	q := &model.GlobalQuestion{}
	err := row.Scan(&q.ID, &q.Text, &q.Title, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (r *questionRepo) CreateGlobal(ctx context.Context, q *model.GlobalQuestion) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO global_questions (question_text, question_title)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		q.Text, q.Title,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: вопрос с заголовком %q уже существует", ErrConflict, q.Title)
		}
		return fmt.Errorf("ошибка создания вопроса: %w", err)
	}
	return nil
}

func (r *questionRepo) GetGlobal(ctx context.Context, id int64) (*model.GlobalQuestion, error) {
	query := fmt.Sprintf(`SELECT %s FROM global_questions WHERE id = $1`, globalQuestionColumns)
	q, err := scanGlobalQuestion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вопроса: %w", err)
	}
	return q, nil
}

func (r *questionRepo) GetGlobalByTitle(ctx context.Context, title string) (*model.GlobalQuestion, error) {
	query := fmt.Sprintf(`SELECT %s FROM global_questions WHERE question_title = $1`, globalQuestionColumns)
	q, err := scanGlobalQuestion(r.db.QueryRow(ctx, query, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вопроса по заголовку: %w", err)
	}
	return q, nil
}

func (r *questionRepo) ListGlobal(ctx context.Context) ([]*model.GlobalQuestion, error) {
	query := fmt.Sprintf(`SELECT %s FROM global_questions ORDER BY question_title`, globalQuestionColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога вопросов: %w", err)
	}
	defer rows.Close()

	var result []*model.GlobalQuestion
	for rows.Next() {
		q, err := scanGlobalQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования вопроса: %w", err)
		}
		result = append(result, q)
	}
	return result, rows.Err()
}

func (r *questionRepo) UpdateGlobalText(ctx context.Context, id int64, text string) (*model.GlobalQuestion, error) {
	query := fmt.Sprintf(`
		UPDATE global_questions
		SET question_text = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, globalQuestionColumns)

	q, err := scanGlobalQuestion(r.db.QueryRow(ctx, query, id, text))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления текста вопроса: %w", err)
	}
	return q, nil
}

func (r *questionRepo) DeleteGlobal(ctx context.Context, id int64) (*model.GlobalQuestion, error) {
	var deleted *model.GlobalQuestion

	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`DELETE FROM site_questions WHERE global_question_id = $1 RETURNING site_id`, id)
		if err != nil {
			return fmt.Errorf("ошибка удаления назначений вопроса: %w", err)
		}
		sites, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("ошибка удаления назначений вопроса: %w", err)
		}

		query := fmt.Sprintf(`DELETE FROM global_questions WHERE id = $1 RETURNING %s`, globalQuestionColumns)
		deleted, err = scanGlobalQuestion(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка удаления вопроса: %w", err)
		}

		for _, siteID := range sites {
			if err := renumberGroup(ctx, tx, siteQuestionsOrder, siteID); err != nil {
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

func (r *questionRepo) AssignToSite(ctx context.Context, siteID, globalQuestionID int64, isActive bool) (*model.SiteQuestion, error) {
	sq := &model.SiteQuestion{
		SiteID:           siteID,
		GlobalQuestionID: globalQuestionID,
		IsActive:         isActive,
	}

	err := runInTx(ctx, r.db, func(tx pgx.Tx) error {
		next, err := nextDisplayOrder(ctx, tx, siteQuestionsOrder, siteID)
		if err != nil {
			return err
		}
		sq.DisplayOrder = next

		err = tx.QueryRow(ctx, `
			INSERT INTO site_questions (site_id, global_question_id, display_order, is_active)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			siteID, globalQuestionID, next, isActive,
		).Scan(&sq.ID, &sq.CreatedAt)
		if err != nil {
			switch {
			case isUniqueViolation(err):
				return fmt.Errorf("%w: вопрос уже назначен площадке", ErrConflict)
			case isForeignKeyViolation(err):
				return ErrNotFound
			}
			return fmt.Errorf("ошибка назначения вопроса: %w", err)
		}

		return tx.QueryRow(ctx,
			`SELECT question_text, question_title FROM global_questions WHERE id = $1`,
			globalQuestionID,
		).Scan(&sq.Text, &sq.Title)
	})
	if err != nil {
		return nil, err
	}
	return sq, nil
}

func (r *questionRepo) ListForSite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteQuestion, error) {
	query := `
		SELECT sq.id, sq.site_id, sq.global_question_id, sq.display_order, sq.is_active,
			sq.created_at, gq.question_text, gq.question_title
		FROM site_questions sq
		JOIN global_questions gq ON gq.id = sq.global_question_id
		WHERE sq.site_id = $1 AND ($2 = FALSE OR sq.is_active)
		ORDER BY sq.display_order, sq.id`

	rows, err := r.db.Query(ctx, query, siteID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вопросов площадки: %w", err)
	}
	defer rows.Close()

	var result []*model.SiteQuestion
	for rows.Next() {
		sq := &model.SiteQuestion{}
		if err := rows.Scan(
			&sq.ID, &sq.SiteID, &sq.GlobalQuestionID, &sq.DisplayOrder, &sq.IsActive,
			&sq.CreatedAt, &sq.Text, &sq.Title,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования вопроса площадки: %w", err)
		}
		result = append(result, sq)
	}
	return result, rows.Err()
}

func (r *questionRepo) RemoveFromSite(ctx context.Context, siteID, siteQuestionID int64) error {
	return runInTx(ctx, r.db, func(tx pgx.Tx) error {
		// Условие по site_id отсекает чужие назначения с подделанным id
		tag, err := tx.Exec(ctx,
			`DELETE FROM site_questions WHERE id = $1 AND site_id = $2`,
			siteQuestionID, siteID)
		if err != nil {
			return fmt.Errorf("ошибка удаления вопроса площадки: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return renumberGroup(ctx, tx, siteQuestionsOrder, siteID)
	})
}

func (r *questionRepo) ToggleActive(ctx context.Context, siteID, siteQuestionID int64) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `
		UPDATE site_questions SET is_active = NOT is_active
		WHERE id = $1 AND site_id = $2
		RETURNING is_active`,
		siteQuestionID, siteID,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("ошибка переключения активности вопроса: %w", err)
	}
	return active, nil
}

func (r *questionRepo) Reorder(ctx context.Context, siteID, siteQuestionID int64, dir Direction) (bool, error) {
	return reorder(ctx, r.db, siteQuestionsOrder, siteID, siteQuestionID, dir)
}
