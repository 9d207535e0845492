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

// ImageStore — файловое хранилище изображений объявлений.
// Файл адресуется публичным путём, который хранится в image_path.
type ImageStore interface {
	Remove(publicPath string) error
}

// AdInput — данные объявления каталога при создании и изменении.
type AdInput struct {
	Type     string
	Title    string
	Text     *string
	IsActive bool
	// StagedImage — публичный путь только что загруженного файла.
	// Если операция не завершилась успешно, файл удаляется.
	StagedImage *string
}

// DeleteAdResult — результат удаления объявления каталога.
type DeleteAdResult struct {
	Ad      *model.GlobalAd
	Warning string
}

// AdService — глобальный каталог рекламных объявлений и назначения площадкам.
// Файл изображения синхронизирован с image_path: старый файл удаляется
// только после успешной записи в БД, загруженный файл — при любой ошибке.
type AdService struct {
	ads    repository.AdRepository
	images ImageStore
	logger *slog.Logger
}

// NewAdService создаёт сервис рекламы.
func NewAdService(ads repository.AdRepository, images ImageStore, logger *slog.Logger) *AdService {
	return &AdService{
		ads:    ads,
		images: images,
		logger: logger.With(slog.String("component", "ad_service")),
	}
}

// CreateGlobal создаёт объявление каталога.
func (s *AdService) CreateGlobal(ctx context.Context, actor rbac.Actor, in AdInput) (ad *model.GlobalAd, err error) {
	defer s.discardStagedOnError(ctx, in.StagedImage, &err)

	if !actor.CanManageCatalog() {
		return nil, deny(ctx, s.logger, actor, "ad.create_global")
	}

	ad = &model.GlobalAd{IsActive: in.IsActive}
	if err := s.applyInput(ad, in); err != nil {
		return nil, err
	}

	if err := s.ads.CreateGlobal(ctx, ad); err != nil {
		return nil, mapRepoErr(err, "создание объявления")
	}

	s.logger.InfoContext(ctx, "Объявление каталога создано",
		slog.Int64("ad_id", ad.ID),
		slog.String("type", ad.Type),
		slog.String("created_by", actor.Username),
	)
	return ad, nil
}

// Get возвращает объявление каталога.
func (s *AdService) Get(ctx context.Context, id int64) (*model.GlobalAd, error) {
	ad, err := s.ads.GetGlobal(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("объявление %d", id))
	}
	return ad, nil
}

// ListGlobal возвращает каталог объявлений.
func (s *AdService) ListGlobal(ctx context.Context) ([]*model.GlobalAd, error) {
	items, err := s.ads.ListGlobal(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога объявлений: %w", err)
	}
	return items, nil
}

// UpdateGlobal изменяет объявление каталога. Для image без нового файла
// сохраняется текущее изображение. Прежний файл удаляется после успешной
// записи, если на него больше нет ссылки.
func (s *AdService) UpdateGlobal(ctx context.Context, actor rbac.Actor, id int64, in AdInput) (ad *model.GlobalAd, err error) {
	defer s.discardStagedOnError(ctx, in.StagedImage, &err)

	if !actor.CanManageCatalog() {
		return nil, deny(ctx, s.logger, actor, "ad.update_global", slog.Int64("ad_id", id))
	}

	current, err := s.ads.GetGlobal(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("объявление %d", id))
	}

	ad = &model.GlobalAd{
		ID:        id,
		IsActive:  in.IsActive,
		ImagePath: current.ImagePath,
		CreatedAt: current.CreatedAt,
	}
	if err := s.applyInput(ad, in); err != nil {
		return nil, err
	}

	previous, err := s.ads.UpdateGlobal(ctx, ad)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("объявление %d", id))
	}

	if previous != nil && (ad.ImagePath == nil || *ad.ImagePath != *previous) {
		s.removeImage(ctx, *previous)
	}

	s.logger.InfoContext(ctx, "Объявление каталога изменено",
		slog.Int64("ad_id", id),
		slog.String("type", ad.Type),
		slog.String("updated_by", actor.Username),
	)
	return ad, nil
}

// DeleteGlobal удаляет объявление каталога вместе с назначениями и файлом.
// Ошибка удаления файла возвращается как Warning.
func (s *AdService) DeleteGlobal(ctx context.Context, actor rbac.Actor, id int64) (*DeleteAdResult, error) {
	if !actor.CanManageCatalog() {
		return nil, deny(ctx, s.logger, actor, "ad.delete_global", slog.Int64("ad_id", id))
	}

	ad, err := s.ads.DeleteGlobal(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("объявление %d", id))
	}

	result := &DeleteAdResult{Ad: ad}
	if ad.ImagePath != nil {
		if !s.removeImage(ctx, *ad.ImagePath) {
			result.Warning = "объявление удалено, но файл изображения удалить не удалось"
		}
	}

	s.logger.InfoContext(ctx, "Объявление каталога удалено",
		slog.Int64("ad_id", id),
		slog.String("deleted_by", actor.Username),
	)
	return result, nil
}

// AssignToSite назначает объявление площадке последним в списке.
func (s *AdService) AssignToSite(ctx context.Context, actor rbac.Actor, siteID, adID int64, isActive bool) (*model.SiteAd, error) {
	if !actor.CanManageSite(siteID) {
		return nil, deny(ctx, s.logger, actor, "ad.assign", slog.Int64("site_id", siteID))
	}

	sa, err := s.ads.AssignToSite(ctx, siteID, adID, isActive)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: объявление уже назначено площадке", ErrConflict)
		}
		return nil, mapRepoErr(err, fmt.Sprintf("объявление %d или площадка %d", adID, siteID))
	}
	s.logger.InfoContext(ctx, "Объявление назначено площадке",
		slog.Int64("site_id", siteID),
		slog.Int64("ad_id", adID),
		slog.Int("display_order", sa.DisplayOrder),
	)
	return sa, nil
}

// ListForSite возвращает объявления площадки в порядке отображения.
// activeOnly — только активные и на площадке, и в каталоге (показ в киоске).
func (s *AdService) ListForSite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteAd, error) {
	items, err := s.ads.ListForSite(ctx, siteID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения объявлений площадки %d: %w", siteID, err)
	}
	return items, nil
}

// RemoveFromSite снимает объявление с площадки и уплотняет порядок.
func (s *AdService) RemoveFromSite(ctx context.Context, actor rbac.Actor, siteID, siteAdID int64) error {
	if !actor.CanManageSite(siteID) {
		return deny(ctx, s.logger, actor, "ad.remove", slog.Int64("site_id", siteID))
	}
	if err := s.ads.RemoveFromSite(ctx, siteID, siteAdID); err != nil {
		return mapRepoErr(err, fmt.Sprintf("назначение %d площадки %d", siteAdID, siteID))
	}
	return nil
}

// ToggleActive переключает активность назначения.
func (s *AdService) ToggleActive(ctx context.Context, actor rbac.Actor, siteID, siteAdID int64) (bool, error) {
	if !actor.CanManageSite(siteID) {
		return false, deny(ctx, s.logger, actor, "ad.toggle", slog.Int64("site_id", siteID))
	}
	active, err := s.ads.ToggleActive(ctx, siteID, siteAdID)
	if err != nil {
		return false, mapRepoErr(err, fmt.Sprintf("назначение %d площадки %d", siteAdID, siteID))
	}
	return active, nil
}

// Reorder перемещает назначение на одну позицию.
func (s *AdService) Reorder(ctx context.Context, actor rbac.Actor, siteID, siteAdID int64, direction string) (bool, error) {
	if !actor.CanManageSite(siteID) {
		return false, deny(ctx, s.logger, actor, "ad.reorder", slog.Int64("site_id", siteID))
	}
	dir, err := repository.ParseDirection(direction)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	moved, err := s.ads.Reorder(ctx, siteID, siteAdID, dir)
	if err != nil {
		return false, mapRepoErr(err, fmt.Sprintf("назначение %d площадки %d", siteAdID, siteID))
	}
	return moved, nil
}

// applyInput валидирует in и переносит его в ad.
// ad.ImagePath на входе — текущее изображение (nil при создании).
func (s *AdService) applyInput(ad *model.GlobalAd, in AdInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return fmt.Errorf("%w: заголовок объявления обязателен", ErrValidation)
	}
	ad.Title = title
	ad.Type = in.Type

	switch in.Type {
	case model.AdTypeText:
		if in.StagedImage != nil {
			return fmt.Errorf("%w: текстовое объявление не содержит изображения", ErrValidation)
		}
		if in.Text == nil || strings.TrimSpace(*in.Text) == "" {
			return fmt.Errorf("%w: текст объявления обязателен", ErrValidation)
		}
		text := strings.TrimSpace(*in.Text)
		ad.Text = &text
		ad.ImagePath = nil
	case model.AdTypeImage:
		if in.StagedImage != nil {
			ad.ImagePath = in.StagedImage
		}
		if ad.ImagePath == nil {
			return fmt.Errorf("%w: для объявления с изображением нужен файл", ErrValidation)
		}
		ad.Text = nil
		if in.Text != nil && strings.TrimSpace(*in.Text) != "" {
			text := strings.TrimSpace(*in.Text)
			ad.Text = &text
		}
	default:
		return fmt.Errorf("%w: недопустимый тип объявления %q", ErrValidation, in.Type)
	}
	return nil
}

// discardStagedOnError удаляет загруженный файл, если операция завершилась ошибкой.
func (s *AdService) discardStagedOnError(ctx context.Context, staged *string, errp *error) {
	if *errp == nil || staged == nil {
		return
	}
	s.removeImage(ctx, *staged)
}

// removeImage удаляет файл изображения. Ошибка логируется и не прерывает операцию.
func (s *AdService) removeImage(ctx context.Context, publicPath string) bool {
	if err := s.images.Remove(publicPath); err != nil {
		s.logger.WarnContext(ctx, "Не удалось удалить файл изображения",
			slog.String("path", publicPath),
			slog.String("error", err.Error()),
		)
		return false
	}
	s.logger.DebugContext(ctx, "Файл изображения удалён", slog.String("path", publicPath))
	return true
}
