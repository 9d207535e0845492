package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

const maxNameLen = 100

// Пагинация списков регистраций.
const (
	defaultCheckInLimit = 50
	maxCheckInLimit     = 500
)

// CheckInInput — регистрация посетителя.
type CheckInInput struct {
	SiteID    int64
	FirstName string
	LastName  string
	Email     *string
	// Answers — ответы по slug вопроса: YES или NO
	Answers map[string]string
	// APIKey — ключ интеграции, через который пришла регистрация (nil для киоска)
	APIKey *model.APIKey
}

// CheckInService — регистрация посетителей и ответы на вопросы площадки.
type CheckInService struct {
	checkIns  repository.CheckInRepository
	questions repository.QuestionRepository
	sites     repository.SiteRepository
	settings  SiteSettings
	logger    *slog.Logger
}

// NewCheckInService создаёт сервис регистраций.
func NewCheckInService(
	checkIns repository.CheckInRepository,
	questions repository.QuestionRepository,
	sites repository.SiteRepository,
	settings SiteSettings,
	logger *slog.Logger,
) *CheckInService {
	return &CheckInService{
		checkIns:  checkIns,
		questions: questions,
		sites:     sites,
		settings:  settings,
		logger:    logger.With(slog.String("component", "checkin_service")),
	}
}

// Record сохраняет регистрацию. Принимаются ответы только на вопросы,
// активно назначенные площадке. Email сохраняется, только если площадка
// разрешает его сбор.
func (s *CheckInService) Record(ctx context.Context, in CheckInInput) (*model.CheckIn, error) {
	if in.APIKey != nil && in.APIKey.AssociatedSiteID != nil && *in.APIKey.AssociatedSiteID != in.SiteID {
		s.logger.WarnContext(ctx, "API-ключ привязан к другой площадке",
			slog.Int64("api_key_id", in.APIKey.ID),
			slog.Int64("key_site_id", *in.APIKey.AssociatedSiteID),
			slog.Int64("site_id", in.SiteID),
		)
		return nil, fmt.Errorf("%w: ключ не действует для площадки %d", ErrForbidden, in.SiteID)
	}

	first, err := requireName(in.FirstName, "имя")
	if err != nil {
		return nil, err
	}
	last, err := requireName(in.LastName, "фамилия")
	if err != nil {
		return nil, err
	}

	site, err := s.sites.Get(ctx, in.SiteID)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("площадка %d", in.SiteID))
	}
	if !site.IsActive {
		return nil, fmt.Errorf("%w: площадка %d неактивна", ErrValidation, in.SiteID)
	}

	active, err := s.questions.ListForSite(ctx, in.SiteID, true)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вопросов площадки %d: %w", in.SiteID, err)
	}
	assigned := make(map[string]bool, len(active))
	for _, q := range active {
		assigned[q.Title] = true
	}

	answers := make(map[string]string, len(in.Answers))
	for slug, raw := range in.Answers {
		if !assigned[slug] {
			return nil, fmt.Errorf("%w: вопрос %q не назначен площадке", ErrValidation, slug)
		}
		answer := strings.ToUpper(strings.TrimSpace(raw))
		if answer != model.AnswerYes && answer != model.AnswerNo {
			return nil, fmt.Errorf("%w: ответ на %q должен быть YES или NO", ErrValidation, slug)
		}
		answers[slug] = answer
	}

	c := &model.CheckIn{
		SiteID:    in.SiteID,
		FirstName: first,
		LastName:  last,
		Answers:   answers,
	}
	if in.APIKey != nil {
		c.APIKeyID = &in.APIKey.ID
	}
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" && s.settings.AllowsEmailCollection(ctx, in.SiteID) {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		c.ClientEmail = &email
	}

	if err := s.checkIns.Create(ctx, c); err != nil {
		return nil, mapRepoErr(err, "сохранение регистрации")
	}

	s.logger.InfoContext(ctx, "Посетитель зарегистрирован",
		slog.Int64("checkin_id", c.ID),
		slog.Int64("site_id", c.SiteID),
		slog.Int("answers", len(answers)),
	)
	return c, nil
}

// ListBySite возвращает регистрации площадки с ответами на все
// назначенные ей вопросы.
func (s *CheckInService) ListBySite(ctx context.Context, actor rbac.Actor, siteID int64, limit, offset int) ([]*model.CheckIn, error) {
	if !actor.CanManageSite(siteID) {
		return nil, deny(ctx, s.logger, actor, "checkin.list", slog.Int64("site_id", siteID))
	}
	limit, offset = clampPage(limit, offset, defaultCheckInLimit, maxCheckInLimit)

	assigned, err := s.questions.ListForSite(ctx, siteID, false)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения вопросов площадки %d: %w", siteID, err)
	}
	slugs := make([]string, 0, len(assigned))
	for _, q := range assigned {
		slugs = append(slugs, q.Title)
	}

	items, err := s.checkIns.ListBySite(ctx, siteID, slugs, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения регистраций площадки %d: %w", siteID, err)
	}
	return items, nil
}

func requireName(raw, what string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("%w: поле %q обязательно", ErrValidation, what)
	}
	if utf8.RuneCountInString(v) > maxNameLen {
		return "", fmt.Errorf("%w: поле %q длиннее %d символов", ErrValidation, what, maxNameLen)
	}
	return v, nil
}

// clampPage приводит параметры пагинации к допустимому диапазону.
func clampPage(limit, offset, def, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
