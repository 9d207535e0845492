package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// TestNotifierService_Update_OtherSite — запись другой площадки не видна
// через чужой siteID.
func TestNotifierService_Update_OtherSite(t *testing.T) {
	repo := &mockNotifierRepo{
		getFn: func(_ context.Context, siteID, id int64) (*model.Notifier, error) {
			if siteID != 5 {
				return nil, repository.ErrNotFound
			}
			return &model.Notifier{ID: id, SiteID: 5, StaffName: "Иван", StaffEmail: "ivan@example.com"}, nil
		},
		updateFn: func(context.Context, *model.Notifier) error {
			t.Error("Update не должен вызываться")
			return nil
		},
	}
	svc := NewNotifierService(repo, staticSettings{}, testLogger())

	_, err := svc.Update(context.Background(), adminActor, 6, 1, NotifierInput{StaffName: "Иван", StaffEmail: "ivan@example.com"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ошибка = %v, ожидалась ErrNotFound", err)
	}
}

func TestNotifierService_Update(t *testing.T) {
	var saved *model.Notifier
	repo := &mockNotifierRepo{
		getFn: func(_ context.Context, siteID, id int64) (*model.Notifier, error) {
			return &model.Notifier{ID: id, SiteID: siteID, StaffName: "Иван", StaffEmail: "ivan@example.com", IsActive: true}, nil
		},
		updateFn: func(_ context.Context, n *model.Notifier) error {
			saved = n
			return nil
		},
	}
	svc := NewNotifierService(repo, staticSettings{}, testLogger())

	_, err := svc.Update(context.Background(), siteAdminOf(5), 5, 1, NotifierInput{StaffName: " Иван Петров ", StaffEmail: "Ivan.Petrov@Example.com"})
	if err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}
	if saved.StaffName != "Иван Петров" || saved.StaffEmail != "ivan.petrov@example.com" || saved.IsActive {
		t.Errorf("сохранено %+v", saved)
	}

	_, err = svc.Update(context.Background(), siteAdminOf(5), 5, 1, NotifierInput{StaffName: "Иван", StaffEmail: "Иван <ivan@example.com>"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("адрес с именем: ошибка = %v, ожидалась ErrValidation", err)
	}
}

func TestNotifierService_ListForKiosk(t *testing.T) {
	repo := &mockNotifierRepo{
		listBySiteFn: func(_ context.Context, siteID int64, activeOnly bool) ([]*model.Notifier, error) {
			if !activeOnly {
				t.Error("киоску нужны только активные")
			}
			return []*model.Notifier{{ID: 1, SiteID: siteID, IsActive: true}}, nil
		},
	}
	ctx := context.Background()

	enabled := NewNotifierService(repo, staticSettings{notifier: true}, testLogger())
	items, err := enabled.ListForKiosk(ctx, 5)
	if err != nil || len(items) != 1 {
		t.Errorf("разрешено: items=%v err=%v", items, err)
	}

	disabled := NewNotifierService(repo, staticSettings{notifier: false}, testLogger())
	items, err = disabled.ListForKiosk(ctx, 5)
	if err != nil {
		t.Fatalf("ListForKiosk ошибка: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("запрещено: ожидался пустой не-nil список, получено %v", items)
	}
}

func TestNotifierService_List_Forbidden(t *testing.T) {
	svc := NewNotifierService(&mockNotifierRepo{}, staticSettings{}, testLogger())

	if _, err := svc.List(context.Background(), siteAdminOf(5), 6); !errors.Is(err, ErrForbidden) {
		t.Fatalf("ошибка = %v, ожидалась ErrForbidden", err)
	}
}
