package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// maxSlugAttempts — число попыток подобрать свободный slug отдела.
const maxSlugAttempts = 100

// GrantInput — данные гранта.
type GrantInput struct {
	Name        string
	Code        *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
}

// CatalogService — справочники отделов, грантов и поставщиков.
type CatalogService struct {
	catalog repository.CatalogRepository
	logger  *slog.Logger
}

// NewCatalogService создаёт сервис справочников.
func NewCatalogService(catalog repository.CatalogRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		logger:  logger.With(slog.String("component", "catalog_service")),
	}
}

// CreateDepartment создаёт отдел. Slug выводится из названия один раз;
// при совпадении добавляется числовой суффикс.
func (s *CatalogService) CreateDepartment(ctx context.Context, actor rbac.Actor, name string) (*model.Department, error) {
	if !actor.CanManageBudgets() {
		return nil, deny(ctx, s.logger, actor, "department.create")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: название отдела обязательно", ErrValidation)
	}

	slug, err := s.freeSlug(ctx, Slugify(name))
	if err != nil {
		return nil, err
	}

	d := &model.Department{Name: name, Slug: slug}
	if err := s.catalog.CreateDepartment(ctx, d); err != nil {
		return nil, mapRepoErr(err, "создание отдела")
	}
	s.logger.InfoContext(ctx, "Отдел создан",
		slog.Int64("department_id", d.ID),
		slog.String("slug", d.Slug),
	)
	return d, nil
}

// RenameDepartment переименовывает отдел. Slug не меняется.
func (s *CatalogService) RenameDepartment(ctx context.Context, actor rbac.Actor, id int64, name string) (*model.Department, error) {
	if !actor.CanManageBudgets() {
		return nil, deny(ctx, s.logger, actor, "department.rename", slog.Int64("department_id", id))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: название отдела обязательно", ErrValidation)
	}
	d, err := s.catalog.RenameDepartment(ctx, id, name)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("отдел %d", id))
	}
	return d, nil
}

// GetDepartment возвращает отдел.
func (s *CatalogService) GetDepartment(ctx context.Context, id int64) (*model.Department, error) {
	d, err := s.catalog.GetDepartment(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("отдел %d", id))
	}
	return d, nil
}

// ListDepartments возвращает все отделы.
func (s *CatalogService) ListDepartments(ctx context.Context) ([]*model.Department, error) {
	items, err := s.catalog.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения отделов: %w", err)
	}
	return items, nil
}

// CreateGrant создаёт грант.
func (s *CatalogService) CreateGrant(ctx context.Context, actor rbac.Actor, in GrantInput) (*model.Grant, error) {
	if !actor.CanManageBudgets() {
		return nil, deny(ctx, s.logger, actor, "grant.create")
	}
	g := &model.Grant{}
	if err := applyGrantInput(g, in); err != nil {
		return nil, err
	}
	if err := s.catalog.CreateGrant(ctx, g); err != nil {
		return nil, mapRepoErr(err, "создание гранта")
	}
	s.logger.InfoContext(ctx, "Грант создан", slog.Int64("grant_id", g.ID))
	return g, nil
}

// UpdateGrant изменяет грант.
func (s *CatalogService) UpdateGrant(ctx context.Context, actor rbac.Actor, id int64, in GrantInput) (*model.Grant, error) {
	if !actor.CanManageBudgets() {
		return nil, deny(ctx, s.logger, actor, "grant.update", slog.Int64("grant_id", id))
	}
	g, err := s.catalog.GetGrant(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("грант %d", id))
	}
	if err := applyGrantInput(g, in); err != nil {
		return nil, err
	}
	if err := s.catalog.UpdateGrant(ctx, g); err != nil {
		return nil, mapRepoErr(err, fmt.Sprintf("грант %d", id))
	}
	return g, nil
}

// DeleteGrant мягко удаляет грант.
func (s *CatalogService) DeleteGrant(ctx context.Context, actor rbac.Actor, id int64) error {
	if !actor.CanManageBudgets() {
		return deny(ctx, s.logger, actor, "grant.delete", slog.Int64("grant_id", id))
	}
	if err := s.catalog.SoftDeleteGrant(ctx, id); err != nil {
		return mapRepoErr(err, fmt.Sprintf("грант %d", id))
	}
	s.logger.InfoContext(ctx, "Грант удалён", slog.Int64("grant_id", id))
	return nil
}

// ListGrants возвращает неудалённые гранты.
func (s *CatalogService) ListGrants(ctx context.Context) ([]*model.Grant, error) {
	items, err := s.catalog.ListGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения грантов: %w", err)
	}
	return items, nil
}

// CreateVendor добавляет поставщика.
func (s *CatalogService) CreateVendor(ctx context.Context, actor rbac.Actor, name string) (*model.Vendor, error) {
	if !actor.CanManageBudgets() && !actor.IsFinanceStaff() {
		return nil, deny(ctx, s.logger, actor, "vendor.create")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: название поставщика обязательно", ErrValidation)
	}
	v := &model.Vendor{Name: name, IsActive: true}
	if err := s.catalog.CreateVendor(ctx, v); err != nil {
		return nil, mapRepoErr(err, "создание поставщика")
	}
	return v, nil
}

// ListVendors возвращает поставщиков.
func (s *CatalogService) ListVendors(ctx context.Context, activeOnly bool) ([]*model.Vendor, error) {
	items, err := s.catalog.ListVendors(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения поставщиков: %w", err)
	}
	return items, nil
}

// freeSlug подбирает свободный slug: base, base_2, base_3, ...
func (s *CatalogService) freeSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.catalog.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("ошибка проверки slug отдела: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return "", fmt.Errorf("%w: не удалось подобрать свободный slug для %q", ErrConflict, base)
}

// Slugify приводит название к виду [a-z0-9_]: буквы и цифры в нижнем
// регистре, остальные символы схлопываются в одно подчёркивание.
// Пустой результат заменяется на "department".
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	slug := b.String()
	if len(slug) > 90 {
		slug = strings.TrimRight(slug[:90], "_")
	}
	if slug == "" {
		return "department"
	}
	return slug
}

func applyGrantInput(g *model.Grant, in GrantInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: название гранта обязательно", ErrValidation)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return fmt.Errorf("%w: дата окончания гранта раньше даты начала", ErrValidation)
	}
	g.Name = name
	g.Code = trimmedOrNil(in.Code)
	g.Description = trimmedOrNil(in.Description)
	g.StartDate = in.StartDate
	g.EndDate = in.EndDate
	return nil
}

// trimmedOrNil обрезает пробелы, пустая строка превращается в nil.
func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
