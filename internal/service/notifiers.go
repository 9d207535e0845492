package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// SiteSettings — типизированные флаги настроек площадки.
type SiteSettings interface {
	AllowsNotifier(ctx context.Context, siteID int64) bool
	AllowsEmailCollection(ctx context.Context, siteID int64) bool
}

// NotifierInput — данные сотрудника, получающего уведомления.
type NotifierInput struct {
	StaffName  string
	StaffEmail string
	IsActive   bool
}

// NotifierService — получатели уведомлений площадки.
// Каждая операция проверяет принадлежность записи площадке из запроса.
type NotifierService struct {
	notifiers repository.NotifierRepository
	settings  SiteSettings
	logger    *slog.Logger
}

// NewNotifierService создаёт сервис уведомлений.
func NewNotifierService(notifiers repository.NotifierRepository, settings SiteSettings, logger *slog.Logger) *NotifierService {
	return &NotifierService{
		notifiers: notifiers,
		settings:  settings,
		logger:    logger.With(slog.String("component", "notifier_service")),
	}
}

// Add добавляет получателя уведомлений площадке.
func (s *NotifierService) Add(ctx context.Context, actor rbac.Actor, siteID int64, in NotifierInput) (*model.Notifier, error) {
	if !actor.CanManageSite(siteID) {
		return nil, deny(ctx, s.logger, actor, "notifier.add", slog.Int64("site_id", siteID))
	}
	n := &model.Notifier{SiteID: siteID, IsActive: in.IsActive}
	if err := applyNotifierInput(n, in); err != nil {
		return nil, err
	}
	if err := s.notifiers.Create(ctx, n); err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("площадка %d", siteID))
	}
	s.logger.InfoContext(ctx, "Получатель уведомлений добавлен",
		slog.Int64("site_id", siteID),
		slog.Int64("notifier_id", n.ID),
	)
	return n, nil
}

// List возвращает всех получателей площадки.
func (s *NotifierService) List(ctx context.Context, actor rbac.Actor, siteID int64) ([]*model.Notifier, error) {
	if !actor.CanManageSite(siteID) {
		return nil, deny(ctx, s.logger, actor, "notifier.list", slog.Int64("site_id", siteID))
	}
	items, err := s.notifiers.ListBySite(ctx, siteID, false)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений площадки %d: %w", siteID, err)
	}
	return items, nil
}

// ListForKiosk возвращает активных получателей, которых посетитель может
// выбрать при регистрации. Если площадка не разрешает уведомления — пусто.
func (s *NotifierService) ListForKiosk(ctx context.Context, siteID int64) ([]*model.Notifier, error) {
	if !s.settings.AllowsNotifier(ctx, siteID) {
		return []*model.Notifier{}, nil
	}
	items, err := s.notifiers.ListBySite(ctx, siteID, true)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений площадки %d: %w", siteID, err)
	}
	return items, nil
}

// Update изменяет получателя уведомлений.
func (s *NotifierService) Update(ctx context.Context, actor rbac.Actor, siteID, id int64, in NotifierInput) (*model.Notifier, error) {
	if !actor.CanManageSite(siteID) {
		return nil, deny(ctx, s.logger, actor, "notifier.update", slog.Int64("site_id", siteID))
	}
	n, err := s.notifiers.Get(ctx, siteID, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("получатель %d площадки %d", id, siteID))
	}
	n.IsActive = in.IsActive
	if err := applyNotifierInput(n, in); err != nil {
		return nil, err
	}
	if err := s.notifiers.Update(ctx, n); err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("получатель %d площадки %d", id, siteID))
	}
	return n, nil
}

// Delete удаляет получателя уведомлений.
func (s *NotifierService) Delete(ctx context.Context, actor rbac.Actor, siteID, id int64) error {
	if !actor.CanManageSite(siteID) {
		return deny(ctx, s.logger, actor, "notifier.delete", slog.Int64("site_id", siteID))
	}
	if err := s.notifiers.Delete(ctx, siteID, id); err != nil {
		return mapRepoErr(err, fmt.Sprintf("получатель %d площадки %d", id, siteID))
	}
	s.logger.InfoContext(ctx, "Получатель уведомлений удалён",
		slog.Int64("site_id", siteID),
		slog.Int64("notifier_id", id),
	)
	return nil
}

// ToggleActive переключает активность получателя.
func (s *NotifierService) ToggleActive(ctx context.Context, actor rbac.Actor, siteID, id int64) (bool, error) {
	if !actor.CanManageSite(siteID) {
		return false, deny(ctx, s.logger, actor, "notifier.toggle", slog.Int64("site_id", siteID))
	}
	active, err := s.notifiers.ToggleActive(ctx, siteID, id)
	if err != nil {
		return false, mapRepoErr(err, fmt.Sprintf("получатель %d площадки %d", id, siteID))
	}
	return active, nil
}

func applyNotifierInput(n *model.Notifier, in NotifierInput) error {
	name := strings.TrimSpace(in.StaffName)
	if name == "" {
		return fmt.Errorf("%w: имя сотрудника обязательно", ErrValidation)
	}
	email, err := normalizeEmail(in.StaffEmail)
	if err != nil {
		return err
	}
	n.StaffName = name
	n.StaffEmail = email
	return nil
}

// normalizeEmail проверяет адрес и возвращает его без отображаемого имени.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: некорректный email %q", ErrValidation, raw)
	}
	return strings.ToLower(addr.Address), nil
}
