package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// Разрешения API-ключей.
const (
	PermCheckInCreate = "checkin:create"
	PermQuestionsRead = "questions:read"
	PermAdsRead       = "ads:read"
	PermSitesRead     = "sites:read"
	PermNotifiersRead = "notifiers:read"
)

// AllowedPermissions — полный перечень разрешений, которые можно выдать ключу.
var AllowedPermissions = []string{
	PermCheckInCreate,
	PermQuestionsRead,
	PermAdsRead,
	PermSitesRead,
	PermNotifiersRead,
}

const (
	// apiKeyPrefix — префикс открытого ключа, отличает его от прочих токенов
	apiKeyPrefix = "fd_"
	// apiKeySecretBytes — энтропия секрета
	apiKeySecretBytes = 32
)

var apiKeyValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "frontdesk_api_key_validations_total",
	Help: "Проверки API-ключей по результату.",
}, []string{"result"})

// APIKeyWithSecret — ключ с открытым секретом. Возвращается только при создании.
type APIKeyWithSecret struct {
	*model.APIKey
	Secret string
}

// APIKeyInput — параметры нового ключа.
type APIKeyInput struct {
	Name             string
	Permissions      []string
	AssociatedUserID *int64
	AssociatedSiteID *int64
}

// APIKeyService — выдача, проверка и отзыв API-ключей интеграций.
// Секрет хранится только в виде bcrypt-хэша, поэтому проверка перебирает
// все активные ключи: O(число активных ключей) сравнений на запрос.
type APIKeyService struct {
	keys   repository.APIKeyRepository
	cost   int
	logger *slog.Logger
}

// NewAPIKeyService создаёт сервис API-ключей.
func NewAPIKeyService(keys repository.APIKeyRepository, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		keys:   keys,
		cost:   bcrypt.DefaultCost,
		logger: logger.With(slog.String("component", "api_key_service")),
	}
}

// Create выпускает ключ. Любое неизвестное разрешение отклоняет запрос целиком.
// Открытый секрет возвращается один раз и нигде не сохраняется.
func (s *APIKeyService) Create(ctx context.Context, actor rbac.Actor, in APIKeyInput) (*APIKeyWithSecret, error) {
	if !actor.IsAdministrator() {
		return nil, deny(ctx, s.logger, actor, "api_key.create")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: имя ключа обязательно", ErrValidation)
	}
	if len(in.Permissions) == 0 {
		return nil, fmt.Errorf("%w: ключу нужно хотя бы одно разрешение", ErrValidation)
	}
	for _, p := range in.Permissions {
		if !slices.Contains(AllowedPermissions, p) {
			return nil, fmt.Errorf("%w: неизвестное разрешение %q", ErrValidation, p)
		}
	}
	perms := slices.Clone(in.Permissions)
	slices.Sort(perms)
	perms = slices.Compact(perms)

	secret, err := generateAPIKeySecret()
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации секрета: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хэширования секрета: %w", err)
	}

	k := &model.APIKey{
		Name:             name,
		KeyHash:          string(hash),
		Permissions:      perms,
		AssociatedUserID: in.AssociatedUserID,
		AssociatedSiteID: in.AssociatedSiteID,
	}
	if err := s.keys.Create(ctx, k); err != nil {
		return nil, mapRepoErr(err, "пользователь или площадка ключа")
	}
	k.KeyHash = ""

	s.logger.InfoContext(ctx, "API-ключ создан",
		slog.Int64("api_key_id", k.ID),
		slog.String("name", k.Name),
		slog.Any("permissions", k.Permissions),
		slog.String("created_by", actor.Username),
	)
	return &APIKeyWithSecret{APIKey: k, Secret: secret}, nil
}

// Validate проверяет открытый ключ и возвращает его запись без хэша.
// Отозванный или неизвестный ключ — ErrInvalidAPIKey.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string) (*model.APIKey, error) {
	if !strings.HasPrefix(plaintext, apiKeyPrefix) || len(plaintext) != len(apiKeyPrefix)+2*apiKeySecretBytes {
		apiKeyValidationsTotal.WithLabelValues("malformed").Inc()
		return nil, ErrInvalidAPIKey
	}

	active, err := s.keys.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных ключей: %w", err)
	}

	for _, k := range active {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(plaintext)) != nil {
			continue
		}
		if err := s.keys.TouchLastUsed(ctx, k.ID); err != nil {
			s.logger.WarnContext(ctx, "Не удалось обновить last_used_at ключа",
				slog.Int64("api_key_id", k.ID),
				slog.String("error", err.Error()),
			)
		}
		apiKeyValidationsTotal.WithLabelValues("ok").Inc()
		k.KeyHash = ""
		return k, nil
	}

	apiKeyValidationsTotal.WithLabelValues("rejected").Inc()
	return nil, ErrInvalidAPIKey
}

// List возвращает ключи без хэшей.
func (s *APIKeyService) List(ctx context.Context, actor rbac.Actor, includeRevoked bool) ([]*model.APIKey, error) {
	if !actor.IsAdministrator() {
		return nil, deny(ctx, s.logger, actor, "api_key.list")
	}
	items, err := s.keys.List(ctx, includeRevoked)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения API-ключей: %w", err)
	}
	return items, nil
}

// Get возвращает ключ без хэша.
func (s *APIKeyService) Get(ctx context.Context, actor rbac.Actor, id int64) (*model.APIKey, error) {
	if !actor.IsAdministrator() {
		return nil, deny(ctx, s.logger, actor, "api_key.get", slog.Int64("api_key_id", id))
	}
	k, err := s.keys.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("API-ключ %d", id))
	}
	return k, nil
}

// Revoke отзывает ключ. Повторный отзыв — успешный no-op.
func (s *APIKeyService) Revoke(ctx context.Context, actor rbac.Actor, id int64) error {
	if !actor.IsAdministrator() {
		return deny(ctx, s.logger, actor, "api_key.revoke", slog.Int64("api_key_id", id))
	}
	revoked, err := s.keys.Revoke(ctx, id)
	if err != nil {
		return mapRepoErr(err, fmt.Sprintf("API-ключ %d", id))
	}
	if revoked {
		s.logger.InfoContext(ctx, "API-ключ отозван",
			slog.Int64("api_key_id", id),
			slog.String("revoked_by", actor.Username),
		)
	}
	return nil
}

// generateAPIKeySecret генерирует секрет вида fd_<64 hex>.
func generateAPIKeySecret() (string, error) {
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}
