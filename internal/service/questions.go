package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// DeleteQuestionResult — результат удаления вопроса каталога.
// Warning заполняется, если строка каталога удалена, а колонка ответа осталась.
type DeleteQuestionResult struct {
	Question *model.GlobalQuestion
	Warning  string
}

// QuestionService — глобальный каталог вопросов и назначения площадкам.
// Каждый вопрос каталога связан с колонкой ответа q_<title> в check_ins.
type QuestionService struct {
	questions repository.QuestionRepository
	schema    repository.SchemaManager
	logger    *slog.Logger
}

// NewQuestionService создаёт сервис вопросов.
func NewQuestionService(
	questions repository.QuestionRepository,
	schema repository.SchemaManager,
	logger *slog.Logger,
) *QuestionService {
	return &QuestionService{
		questions: questions,
		schema:    schema,
		logger:    logger.With(slog.String("component", "question_service")),
	}
}

// AddGlobal создаёт вопрос каталога. Колонка ответа создаётся до вставки
// строки: если DDL не удался, вопрос не создаётся. Если не удалась вставка,
// созданная этим вызовом колонка удаляется.
func (s *QuestionService) AddGlobal(ctx context.Context, actor rbac.Actor, text, title string) (*model.GlobalQuestion, error) {
	if !actor.CanManageCatalog() {
		return nil, deny(ctx, s.logger, actor, "question.add_global")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: текст вопроса обязателен", ErrValidation)
	}
	if _, err := repository.AnswerColumn(title); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	existing, err := s.questions.GetGlobalByTitle(ctx, title)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("ошибка проверки slug %q: %w", title, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: вопрос со slug %q уже существует", ErrConflict, title)
	}

	created, err := s.schema.EnsureColumn(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания колонки ответа для %q: %w", title, err)
	}

	q := &model.GlobalQuestion{Text: text, Title: title}
	if err := s.questions.CreateGlobal(ctx, q); err != nil {
		// При конфликте колонку уже использует параллельно созданный вопрос
		if created && !errors.Is(err, repository.ErrConflict) {
			s.dropOrphanColumn(ctx, title, err)
		}
		return nil, mapRepoErr(err, "создание вопроса")
	}

	s.logger.InfoContext(ctx, "Вопрос каталога создан",
		slog.Int64("question_id", q.ID),
		slog.String("title", q.Title),
		slog.String("created_by", actor.Username),
	)
	return q, nil
}

// Get возвращает вопрос каталога по ID.
func (s *QuestionService) Get(ctx context.Context, id int64) (*model.GlobalQuestion, error) {
	q, err := s.questions.GetGlobal(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("вопрос %d", id))
	}
	return q, nil
}

// ListGlobal возвращает весь каталог вопросов.
func (s *QuestionService) ListGlobal(ctx context.Context) ([]*model.GlobalQuestion, error) {
	items, err := s.questions.ListGlobal(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога вопросов: %w", err)
	}
	return items, nil
}

// UpdateText меняет только текст вопроса. Slug неизменяем.
func (s *QuestionService) UpdateText(ctx context.Context, actor rbac.Actor, id int64, text string) (*model.GlobalQuestion, error) {
	if !actor.CanManageCatalog() {
		return nil, deny(ctx, s.logger, actor, "question.update_text", slog.Int64("question_id", id))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: текст вопроса обязателен", ErrValidation)
	}

	q, err := s.questions.UpdateGlobalText(ctx, id, text)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("вопрос %d", id))
	}
	s.logger.InfoContext(ctx, "Текст вопроса изменён",
		slog.Int64("question_id", id),
		slog.String("updated_by", actor.Username),
	)
	return q, nil
}

// DeleteGlobal удаляет вопрос каталога вместе с назначениями площадкам,
// затем удаляет колонку ответа. Ошибка удаления колонки не откатывает
// удаление и возвращается как Warning.
func (s *QuestionService) DeleteGlobal(ctx context.Context, actor rbac.Actor, id int64) (*DeleteQuestionResult, error) {
	if !actor.CanManageCatalog() {
		return nil, deny(ctx, s.logger, actor, "question.delete_global", slog.Int64("question_id", id))
	}

	q, err := s.questions.DeleteGlobal(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("вопрос %d", id))
	}

	result := &DeleteQuestionResult{Question: q}
	if err := s.schema.DropColumn(ctx, q.Title); err != nil {
		s.logger.ErrorContext(ctx, "Вопрос удалён, колонка ответа осталась",
			slog.Int64("question_id", id),
			slog.String("title", q.Title),
			slog.String("error", err.Error()),
		)
		result.Warning = fmt.Sprintf("вопрос удалён, но колонку ответа q_%s удалить не удалось", q.Title)
	}

	s.logger.InfoContext(ctx, "Вопрос каталога удалён",
		slog.Int64("question_id", id),
		slog.String("title", q.Title),
		slog.String("deleted_by", actor.Username),
	)
	return result, nil
}

// AssignToSite назначает вопрос площадке последним в списке.
// Повторное назначение — ErrConflict («уже назначен»). Столкновение
// позиций с параллельным назначением — ErrConflict с предложением повторить.
func (s *QuestionService) AssignToSite(ctx context.Context, actor rbac.Actor, siteID, questionID int64, isActive bool) (*model.SiteQuestion, error) {
	if !actor.CanManageSite(siteID) {
		return nil, deny(ctx, s.logger, actor, "question.assign", slog.Int64("site_id", siteID))
	}

	sq, err := s.questions.AssignToSite(ctx, siteID, questionID, isActive)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: вопрос уже назначен площадке", ErrConflict)
		}
		return nil, mapRepoErr(err, fmt.Sprintf("вопрос %d или площадка %d", questionID, siteID))
	}
	s.logger.InfoContext(ctx, "Вопрос назначен площадке",
		slog.Int64("site_id", siteID),
		slog.Int64("question_id", questionID),
		slog.Int("display_order", sq.DisplayOrder),
	)
	return sq, nil
}

// ListForSite возвращает вопросы площадки в порядке отображения.
func (s *QuestionService) ListForSite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteQuestion, error) {
	items, err := s.questions.ListForSite(ctx, siteID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вопросов площадки %d: %w", siteID, err)
	}
	return items, nil
}

// RemoveFromSite снимает вопрос с площадки и уплотняет порядок.
func (s *QuestionService) RemoveFromSite(ctx context.Context, actor rbac.Actor, siteID, siteQuestionID int64) error {
	if !actor.CanManageSite(siteID) {
		return deny(ctx, s.logger, actor, "question.remove", slog.Int64("site_id", siteID))
	}
	if err := s.questions.RemoveFromSite(ctx, siteID, siteQuestionID); err != nil {
		return mapRepoErr(err, fmt.Sprintf("назначение %d площадки %d", siteQuestionID, siteID))
	}
	s.logger.InfoContext(ctx, "Вопрос снят с площадки",
		slog.Int64("site_id", siteID),
		slog.Int64("site_question_id", siteQuestionID),
	)
	return nil
}

// ToggleActive переключает активность назначения. Возвращает новое состояние.
func (s *QuestionService) ToggleActive(ctx context.Context, actor rbac.Actor, siteID, siteQuestionID int64) (bool, error) {
	if !actor.CanManageSite(siteID) {
		return false, deny(ctx, s.logger, actor, "question.toggle", slog.Int64("site_id", siteID))
	}
	active, err := s.questions.ToggleActive(ctx, siteID, siteQuestionID)
	if err != nil {
		return false, mapRepoErr(err, fmt.Sprintf("назначение %d площадки %d", siteQuestionID, siteID))
	}
	return active, nil
}

// Reorder перемещает назначение на одну позицию.
// false без ошибки — элемент уже на границе списка.
func (s *QuestionService) Reorder(ctx context.Context, actor rbac.Actor, siteID, siteQuestionID int64, direction string) (bool, error) {
	if !actor.CanManageSite(siteID) {
		return false, deny(ctx, s.logger, actor, "question.reorder", slog.Int64("site_id", siteID))
	}
	dir, err := repository.ParseDirection(direction)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	moved, err := s.questions.Reorder(ctx, siteID, siteQuestionID, dir)
	if err != nil {
		return false, mapRepoErr(err, fmt.Sprintf("назначение %d площадки %d", siteQuestionID, siteID))
	}
	return moved, nil
}

// dropOrphanColumn удаляет колонку ответа, оставшуюся без вопроса каталога.
// Удаление выполняется и при отменённом контексте запроса.
func (s *QuestionService) dropOrphanColumn(ctx context.Context, title string, cause error) {
	s.logger.WarnContext(ctx, "Вопрос не создан, удаляем колонку ответа",
		slog.String("column", "q_"+title),
		slog.String("error", cause.Error()),
	)
	if err := s.schema.DropColumn(context.WithoutCancel(ctx), title); err != nil {
		s.logger.ErrorContext(ctx, "Колонка ответа осталась без вопроса каталога",
			slog.String("column", "q_"+title),
			slog.String("error", err.Error()),
		)
	}
}
