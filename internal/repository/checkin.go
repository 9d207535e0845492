package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// CheckInRepository — регистрации посетителей с ответами в колонках q_<slug>.
type CheckInRepository interface {
	// Create сохраняет регистрацию. Ключи c.Answers — slug вопросов,
	// для каждого должна существовать колонка ответа.
	Create(ctx context.Context, c *model.CheckIn) error
	// ListBySite возвращает регистрации площадки (новые первыми)
	// с ответами на вопросы из answerSlugs.
	ListBySite(ctx context.Context, siteID int64, answerSlugs []string, limit, offset int) ([]*model.CheckIn, error)
}

type checkInRepo struct {
	db DBTX
}

// NewCheckInRepository создаёт репозиторий регистраций.
func NewCheckInRepository(db DBTX) CheckInRepository {
	return &checkInRepo{db: db}
}

func (r *checkInRepo) Create(ctx context.Context, c *model.CheckIn) error {
	cols := []string{"site_id", "first_name", "last_name", "client_email", "api_key_id"}
	params := []string{"$1", "$2", "$3", "$4", "$5"}
	args := []any{c.SiteID, c.FirstName, c.LastName, c.ClientEmail, c.APIKeyID}

	for slug, answer := range c.Answers {
		col, err := AnswerColumn(slug)
		if err != nil {
			return err
		}
		args = append(args, answer)
		cols = append(cols, pgx.Identifier{col}.Sanitize())
		params = append(params, fmt.Sprintf("$%d::text::yes_no", len(args)))
	}

	query := fmt.Sprintf(`
		INSERT INTO check_ins (%s)
		VALUES (%s)
		RETURNING id, check_in_time`,
		strings.Join(cols, ", "), strings.Join(params, ", "))

	if err := r.db.QueryRow(ctx, query, args...).Scan(&c.ID, &c.CheckInTime); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
		}
		return fmt.Errorf("ошибка сохранения регистрации: %w", err)
	}
	return nil
}

func (r *checkInRepo) ListBySite(ctx context.Context, siteID int64, answerSlugs []string, limit, offset int) ([]*model.CheckIn, error) {
	cols := []string{"id", "site_id", "first_name", "last_name", "client_email", "check_in_time", "api_key_id"}
	for _, slug := range answerSlugs {
		col, err := AnswerColumn(slug)
		if err != nil {
			return nil, err
		}
		cols = append(cols, pgx.Identifier{col}.Sanitize()+"::text")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM check_ins
		WHERE site_id = $1
		ORDER BY check_in_time DESC, id DESC
		LIMIT $2 OFFSET $3`, strings.Join(cols, ", "))

	rows, err := r.db.Query(ctx, query, siteID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения регистраций площадки: %w", err)
	}
	defer rows.Close()

	var result []*model.CheckIn
	for rows.Next() {
		c := &model.CheckIn{Answers: make(map[string]string, len(answerSlugs))}
		answers := make([]*string, len(answerSlugs))
		targets := []any{&c.ID, &c.SiteID, &c.FirstName, &c.LastName, &c.ClientEmail, &c.CheckInTime, &c.APIKeyID}
		for i := range answers {
			targets = append(targets, &answers[i])
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования регистрации: %w", err)
		}
		for i, slug := range answerSlugs {
			if answers[i] != nil {
				c.Answers[slug] = *answers[i]
			}
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
