package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// Моки встраивают интерфейс репозитория: вызов нереализованного
// метода в тесте приводит к панике, что сразу показывает лишний вызов.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// --- QuestionRepository ---

type mockQuestionRepo struct {
	repository.QuestionRepository
	createGlobalFn     func(ctx context.Context, q *model.GlobalQuestion) error
	getGlobalByTitleFn func(ctx context.Context, title string) (*model.GlobalQuestion, error)
	updateGlobalTextFn func(ctx context.Context, id int64, text string) (*model.GlobalQuestion, error)
	deleteGlobalFn     func(ctx context.Context, id int64) (*model.GlobalQuestion, error)
	assignToSiteFn     func(ctx context.Context, siteID, questionID int64, isActive bool) (*model.SiteQuestion, error)
	listForSiteFn      func(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteQuestion, error)
	removeFromSiteFn   func(ctx context.Context, siteID, id int64) error
	reorderFn          func(ctx context.Context, siteID, id int64, dir repository.Direction) (bool, error)
}

func (m *mockQuestionRepo) CreateGlobal(ctx context.Context, q *model.GlobalQuestion) error {
	return m.createGlobalFn(ctx, q)
}

func (m *mockQuestionRepo) GetGlobalByTitle(ctx context.Context, title string) (*model.GlobalQuestion, error) {
	if m.getGlobalByTitleFn != nil {
		return m.getGlobalByTitleFn(ctx, title)
	}
	return nil, repository.ErrNotFound
}

func (m *mockQuestionRepo) UpdateGlobalText(ctx context.Context, id int64, text string) (*model.GlobalQuestion, error) {
	return m.updateGlobalTextFn(ctx, id, text)
}

func (m *mockQuestionRepo) DeleteGlobal(ctx context.Context, id int64) (*model.GlobalQuestion, error) {
	return m.deleteGlobalFn(ctx, id)
}

func (m *mockQuestionRepo) AssignToSite(ctx context.Context, siteID, questionID int64, isActive bool) (*model.SiteQuestion, error) {
	return m.assignToSiteFn(ctx, siteID, questionID, isActive)
}

func (m *mockQuestionRepo) ListForSite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.SiteQuestion, error) {
	if m.listForSiteFn != nil {
		return m.listForSiteFn(ctx, siteID, activeOnly)
	}
	return nil, nil
}

func (m *mockQuestionRepo) RemoveFromSite(ctx context.Context, siteID, id int64) error {
	return m.removeFromSiteFn(ctx, siteID, id)
}

func (m *mockQuestionRepo) Reorder(ctx context.Context, siteID, id int64, dir repository.Direction) (bool, error) {
	return m.reorderFn(ctx, siteID, id, dir)
}

// --- SchemaManager ---

type mockSchema struct {
	repository.SchemaManager
	ensureFn func(ctx context.Context, slug string) (bool, error)
	dropFn   func(ctx context.Context, slug string) error
}

func (m *mockSchema) EnsureColumn(ctx context.Context, slug string) (bool, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, slug)
	}
	return true, nil
}

func (m *mockSchema) DropColumn(ctx context.Context, slug string) error {
	if m.dropFn != nil {
		return m.dropFn(ctx, slug)
	}
	return nil
}

// --- AdRepository ---

type mockAdRepo struct {
	repository.AdRepository
	createGlobalFn func(ctx context.Context, ad *model.GlobalAd) error
	getGlobalFn    func(ctx context.Context, id int64) (*model.GlobalAd, error)
	updateGlobalFn func(ctx context.Context, ad *model.GlobalAd) (*string, error)
	deleteGlobalFn func(ctx context.Context, id int64) (*model.GlobalAd, error)
	assignToSiteFn func(ctx context.Context, siteID, adID int64, isActive bool) (*model.SiteAd, error)
	removeFn       func(ctx context.Context, siteID, id int64) error
	toggleFn       func(ctx context.Context, siteID, id int64) (bool, error)
	reorderFn      func(ctx context.Context, siteID, id int64, dir repository.Direction) (bool, error)
}

func (m *mockAdRepo) CreateGlobal(ctx context.Context, ad *model.GlobalAd) error {
	return m.createGlobalFn(ctx, ad)
}

func (m *mockAdRepo) GetGlobal(ctx context.Context, id int64) (*model.GlobalAd, error) {
	return m.getGlobalFn(ctx, id)
}

func (m *mockAdRepo) UpdateGlobal(ctx context.Context, ad *model.GlobalAd) (*string, error) {
	return m.updateGlobalFn(ctx, ad)
}

func (m *mockAdRepo) DeleteGlobal(ctx context.Context, id int64) (*model.GlobalAd, error) {
	return m.deleteGlobalFn(ctx, id)
}

func (m *mockAdRepo) AssignToSite(ctx context.Context, siteID, adID int64, isActive bool) (*model.SiteAd, error) {
	return m.assignToSiteFn(ctx, siteID, adID, isActive)
}

func (m *mockAdRepo) RemoveFromSite(ctx context.Context, siteID, id int64) error {
	return m.removeFn(ctx, siteID, id)
}

func (m *mockAdRepo) ToggleActive(ctx context.Context, siteID, id int64) (bool, error) {
	return m.toggleFn(ctx, siteID, id)
}

func (m *mockAdRepo) Reorder(ctx context.Context, siteID, id int64, dir repository.Direction) (bool, error) {
	return m.reorderFn(ctx, siteID, id, dir)
}

// mockImageStore запоминает удалённые файлы.
type mockImageStore struct {
	removed []string
	err     error
}

func (m *mockImageStore) Remove(publicPath string) error {
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, publicPath)
	return nil
}

// --- SiteRepository ---

type mockSiteRepo struct {
	repository.SiteRepository
	getFn        func(ctx context.Context, id int64) (*model.Site, error)
	listConfigFn func(ctx context.Context, siteID int64) ([]model.SiteConfiguration, error)
	setConfigFn  func(ctx context.Context, siteID int64, key, value string) error
}

func (m *mockSiteRepo) Get(ctx context.Context, id int64) (*model.Site, error) {
	return m.getFn(ctx, id)
}

func (m *mockSiteRepo) ListConfig(ctx context.Context, siteID int64) ([]model.SiteConfiguration, error) {
	return m.listConfigFn(ctx, siteID)
}

func (m *mockSiteRepo) SetConfig(ctx context.Context, siteID int64, key, value string) error {
	return m.setConfigFn(ctx, siteID, key, value)
}

// staticSettings — фиксированные флаги площадки.
type staticSettings struct {
	notifier bool
	email    bool
}

func (s staticSettings) AllowsNotifier(context.Context, int64) bool        { return s.notifier }
func (s staticSettings) AllowsEmailCollection(context.Context, int64) bool { return s.email }

// --- NotifierRepository ---

type mockNotifierRepo struct {
	repository.NotifierRepository
	getFn        func(ctx context.Context, siteID, id int64) (*model.Notifier, error)
	updateFn     func(ctx context.Context, n *model.Notifier) error
	listBySiteFn func(ctx context.Context, siteID int64, activeOnly bool) ([]*model.Notifier, error)
}

func (m *mockNotifierRepo) Get(ctx context.Context, siteID, id int64) (*model.Notifier, error) {
	return m.getFn(ctx, siteID, id)
}

func (m *mockNotifierRepo) Update(ctx context.Context, n *model.Notifier) error {
	return m.updateFn(ctx, n)
}

func (m *mockNotifierRepo) ListBySite(ctx context.Context, siteID int64, activeOnly bool) ([]*model.Notifier, error) {
	return m.listBySiteFn(ctx, siteID, activeOnly)
}

// --- BudgetRepository ---

type mockBudgetRepo struct {
	repository.BudgetRepository
	budgets     map[int64]*model.Budget
	accessible  map[int64][]int64
	listFn      func(ctx context.Context, params repository.BudgetListParams) ([]*model.Budget, int, error)
	setAccessFn func(ctx context.Context, userID int64, ids []int64) error
	created     []*model.Budget
}

func (m *mockBudgetRepo) Create(_ context.Context, b *model.Budget) error {
	b.ID = int64(100 + len(m.created))
	m.created = append(m.created, b)
	return nil
}

func (m *mockBudgetRepo) Get(_ context.Context, id int64) (*model.Budget, error) {
	b, ok := m.budgets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBudgetRepo) List(ctx context.Context, params repository.BudgetListParams) ([]*model.Budget, int, error) {
	return m.listFn(ctx, params)
}

func (m *mockBudgetRepo) AccessibleDepartments(_ context.Context, userID int64) ([]int64, error) {
	return m.accessible[userID], nil
}

func (m *mockBudgetRepo) SetAccessibleDepartments(ctx context.Context, userID int64, ids []int64) error {
	return m.setAccessFn(ctx, userID, ids)
}

// --- AllocationRepository ---

type updateCall struct {
	id               int64
	changes          map[string]*string
	actorID          int64
	financeProcessed bool
}

type mockAllocationRepo struct {
	repository.AllocationRepository
	allocations map[int64]*model.Allocation
	created     []*model.Allocation
	updates     []updateCall
	deleted     []int64
	reportFn    func(ctx context.Context, params repository.ReportParams) ([]*model.AllocationReportRow, int, error)
}

func (m *mockAllocationRepo) Create(_ context.Context, a *model.Allocation) error {
	a.ID = int64(100 + len(m.created))
	m.created = append(m.created, a)
	return nil
}

func (m *mockAllocationRepo) Get(_ context.Context, id int64) (*model.Allocation, error) {
	a, ok := m.allocations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (m *mockAllocationRepo) Update(_ context.Context, id int64, changes map[string]*string, actorID int64, financeProcessed bool) (*model.Allocation, error) {
	m.updates = append(m.updates, updateCall{id: id, changes: changes, actorID: actorID, financeProcessed: financeProcessed})
	a := m.allocations[id]
	for k, v := range changes {
		a.Fields[k] = v
	}
	return a, nil
}

func (m *mockAllocationRepo) SoftDelete(_ context.Context, id, _ int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAllocationRepo) Report(ctx context.Context, params repository.ReportParams) ([]*model.AllocationReportRow, int, error) {
	return m.reportFn(ctx, params)
}

// --- APIKeyRepository ---

// memAPIKeyRepo — хранилище ключей в памяти.
type memAPIKeyRepo struct {
	repository.APIKeyRepository
	keys    []*model.APIKey
	touched []int64
}

func (m *memAPIKeyRepo) Create(_ context.Context, k *model.APIKey) error {
	k.ID = int64(len(m.keys) + 1)
	stored := *k
	m.keys = append(m.keys, &stored)
	return nil
}

func (m *memAPIKeyRepo) ListActive(context.Context) ([]*model.APIKey, error) {
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.RevokedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAPIKeyRepo) TouchLastUsed(_ context.Context, id int64) error {
	m.touched = append(m.touched, id)
	return nil
}

func (m *memAPIKeyRepo) Revoke(_ context.Context, id int64) (bool, error) {
	for _, k := range m.keys {
		if k.ID != id {
			continue
		}
		if k.RevokedAt != nil {
			return false, nil
		}
		k.RevokedAt = ptr(time.Now())
		return true, nil
	}
	return false, repository.ErrNotFound
}

// --- UserRepository / CatalogRepository ---

type mockUserRepo struct {
	repository.UserRepository
	users map[int64]*model.User
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type mockCatalogRepo struct {
	repository.CatalogRepository
	departments map[int64]*model.Department
	takenSlugs  map[string]bool
	createdDept *model.Department
}

func (m *mockCatalogRepo) GetDepartment(_ context.Context, id int64) (*model.Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (m *mockCatalogRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	return m.takenSlugs[slug], nil
}

func (m *mockCatalogRepo) CreateDepartment(_ context.Context, d *model.Department) error {
	d.ID = 1
	m.createdDept = d
	return nil
}

// --- CheckInRepository ---

type mockCheckInRepo struct {
	repository.CheckInRepository
	created []*model.CheckIn
}

func (m *mockCheckInRepo) Create(_ context.Context, c *model.CheckIn) error {
	c.ID = int64(len(m.created) + 1)
	m.created = append(m.created, c)
	return nil
}
