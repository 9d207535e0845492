// sites.go — площадки и их настройки.
// Настройки читаются на каждой регистрации посетителя, поэтому
// кэшируются в LRU с TTL и сбрасываются при записи.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// Ключи настроек площадки.
const (
	ConfigAllowEmailCollection       = "allow_email_collection"
	ConfigAllowNotifier              = "allow_notifier"
	ConfigAllowClientLogin           = "allow_client_login"
	ConfigAIAgentEmailEnabled        = "ai_agent_email_enabled"
	ConfigAIAgentEmailAddress        = "ai_agent_email_address"
	ConfigEmailCollectionDescription = "email_collection_description"
)

type configKind int

const (
	configBool configKind = iota
	configEmail
	configText
)

// Допустимые ключи настроек и тип значения.
var validConfigKeys = map[string]configKind{
	ConfigAllowEmailCollection:       configBool,
	ConfigAllowNotifier:              configBool,
	ConfigAllowClientLogin:           configBool,
	ConfigAIAgentEmailEnabled:        configBool,
	ConfigAIAgentEmailAddress:        configEmail,
	ConfigEmailCollectionDescription: configText,
}

// maxConfigTextLen — предел длины текстовой настройки.
const maxConfigTextLen = 2000

// Prometheus-метрики кэша настроек.
var (
	siteConfigCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frontdesk_site_config_cache_hits_total",
		Help: "Попадания в кэш настроек площадок.",
	})
	siteConfigCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frontdesk_site_config_cache_misses_total",
		Help: "Промахи кэша настроек площадок.",
	})
)

// SiteInput — данные площадки при создании и изменении.
type SiteInput struct {
	Name                       string
	IsActive                   bool
	EmailCollectionDescription *string
}

// SiteService — площадки и их настройки.
type SiteService struct {
	sites  repository.SiteRepository
	cache  *expirable.LRU[int64, map[string]string]
	logger *slog.Logger
}

// NewSiteService создаёт сервис площадок.
// cacheSize — число площадок в кэше настроек, ttl — время жизни записи.
func NewSiteService(sites repository.SiteRepository, cacheSize int, ttl time.Duration, logger *slog.Logger) *SiteService {
	return &SiteService{
		sites:  sites,
		cache:  expirable.NewLRU[int64, map[string]string](cacheSize, nil, ttl),
		logger: logger.With(slog.String("component", "site_service")),
	}
}

// Create создаёт площадку. Только администратор.
func (s *SiteService) Create(ctx context.Context, actor rbac.Actor, in SiteInput) (*model.Site, error) {
	if !actor.IsAdministrator() {
		return nil, deny(ctx, s.logger, actor, "site.create")
	}
	site := &model.Site{IsActive: in.IsActive}
	if err := applySiteInput(site, in); err != nil {
		return nil, err
	}
	if err := s.sites.Create(ctx, site); err != nil {
		return nil, mapRepoErr(err, "создание площадки")
	}
	s.logger.InfoContext(ctx, "Площадка создана",
		slog.Int64("site_id", site.ID),
		slog.String("name", site.Name),
	)
	return site, nil
}

// Get возвращает площадку.
func (s *SiteService) Get(ctx context.Context, id int64) (*model.Site, error) {
	site, err := s.sites.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("площадка %d", id))
	}
	return site, nil
}

// List возвращает площадки, activeOnly — только активные.
func (s *SiteService) List(ctx context.Context, activeOnly bool) ([]*model.Site, error) {
	items, err := s.sites.List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения площадок: %w", err)
	}
	return items, nil
}

// Update изменяет площадку.
func (s *SiteService) Update(ctx context.Context, actor rbac.Actor, id int64, in SiteInput) (*model.Site, error) {
	if !actor.CanManageSite(id) {
		return nil, deny(ctx, s.logger, actor, "site.update", slog.Int64("site_id", id))
	}
	site, err := s.sites.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("площадка %d", id))
	}
	site.IsActive = in.IsActive
	if err := applySiteInput(site, in); err != nil {
		return nil, err
	}
	if err := s.sites.Update(ctx, site); err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("площадка %d", id))
	}
	return site, nil
}

// Config возвращает настройки площадки (ключ → значение).
func (s *SiteService) Config(ctx context.Context, siteID int64) (map[string]string, error) {
	if cfg, ok := s.cache.Get(siteID); ok {
		siteConfigCacheHits.Inc()
		return maps.Clone(cfg), nil
	}
	siteConfigCacheMisses.Inc()

	rows, err := s.sites.ListConfig(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек площадки %d: %w", siteID, err)
	}
	cfg := make(map[string]string, len(rows))
	for _, r := range rows {
		cfg[r.Key] = r.Value
	}
	s.cache.Add(siteID, cfg)
	return maps.Clone(cfg), nil
}

// SetConfig устанавливает настройку площадки. Ключ и значение валидируются.
func (s *SiteService) SetConfig(ctx context.Context, actor rbac.Actor, siteID int64, key, value string) (string, error) {
	if !actor.CanManageSite(siteID) {
		return "", deny(ctx, s.logger, actor, "site.set_config", slog.Int64("site_id", siteID), slog.String("key", key))
	}
	normalized, err := normalizeConfigValue(key, value)
	if err != nil {
		return "", err
	}
	if err := s.sites.SetConfig(ctx, siteID, key, normalized); err != nil {
		return "", mapRepoErr(err, fmt.Sprintf("площадка %d", siteID))
	}
	s.cache.Remove(siteID)

	s.logger.InfoContext(ctx, "Настройка площадки обновлена",
		slog.Int64("site_id", siteID),
		slog.String("key", key),
		slog.String("updated_by", actor.Username),
	)
	return normalized, nil
}

// DeleteConfig удаляет настройку площадки (возврат к значению по умолчанию).
func (s *SiteService) DeleteConfig(ctx context.Context, actor rbac.Actor, siteID int64, key string) error {
	if !actor.CanManageSite(siteID) {
		return deny(ctx, s.logger, actor, "site.delete_config", slog.Int64("site_id", siteID), slog.String("key", key))
	}
	if _, ok := validConfigKeys[key]; !ok {
		return fmt.Errorf("%w: недопустимый ключ настройки %q", ErrValidation, key)
	}
	if err := s.sites.DeleteConfig(ctx, siteID, key); err != nil {
		return mapRepoErr(err, fmt.Sprintf("настройка %q площадки %d", key, siteID))
	}
	s.cache.Remove(siteID)
	return nil
}

// AllowsNotifier — разрешён ли выбор получателя уведомления на площадке.
func (s *SiteService) AllowsNotifier(ctx context.Context, siteID int64) bool {
	return s.boolSetting(ctx, siteID, ConfigAllowNotifier)
}

// AllowsEmailCollection — разрешён ли сбор email посетителей.
func (s *SiteService) AllowsEmailCollection(ctx context.Context, siteID int64) bool {
	return s.boolSetting(ctx, siteID, ConfigAllowEmailCollection)
}

// boolSetting читает булеву настройку. Отсутствие или ошибка чтения — false.
func (s *SiteService) boolSetting(ctx context.Context, siteID int64, key string) bool {
	cfg, err := s.Config(ctx, siteID)
	if err != nil {
		s.logger.WarnContext(ctx, "Не удалось прочитать настройки площадки",
			slog.Int64("site_id", siteID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	v, err := strconv.ParseBool(cfg[key])
	return err == nil && v
}

// normalizeConfigValue валидирует значение по типу ключа и приводит
// его к каноническому виду.
func normalizeConfigValue(key, value string) (string, error) {
	kind, ok := validConfigKeys[key]
	if !ok {
		return "", fmt.Errorf("%w: недопустимый ключ настройки %q", ErrValidation, key)
	}

	value = strings.TrimSpace(value)
	switch kind {
	case configBool:
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return "true", nil
		case "0", "false", "no", "off":
			return "false", nil
		}
		return "", fmt.Errorf("%w: %s должен быть true или false", ErrValidation, key)
	case configEmail:
		if value == "" {
			return "", nil
		}
		return normalizeEmail(value)
	default:
		if len(value) > maxConfigTextLen {
			return "", fmt.Errorf("%w: %s длиннее %d символов", ErrValidation, key, maxConfigTextLen)
		}
		return value, nil
	}
}

func applySiteInput(site *model.Site, in SiteInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: название площадки обязательно", ErrValidation)
	}
	site.Name = name
	site.EmailCollectionDescription = nil
	if in.EmailCollectionDescription != nil {
		if d := strings.TrimSpace(*in.EmailCollectionDescription); d != "" {
			site.EmailCollectionDescription = &d
		}
	}
	return nil
}
