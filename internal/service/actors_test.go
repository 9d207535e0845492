package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
)

func TestActorResolver_Resolve(t *testing.T) {
	users := &mockUserRepo{users: map[int64]*model.User{
		1: {ID: 1, Username: "fin", Role: rbac.RoleStaff, DepartmentID: ptr(int64(7))},
		2: {ID: 2, Username: "clerk", Role: rbac.RoleStaff, DepartmentID: ptr(int64(8)), SiteID: ptr(int64(5)), IsSiteAdmin: true},
		3: {ID: 3, Username: "boss", Role: rbac.RoleDirector, DepartmentID: ptr(int64(7))},
		4: {ID: 4, Username: "orphan", Role: rbac.RoleStaff, DepartmentID: ptr(int64(99))},
		5: {ID: 5, Username: "legacy", Role: "superuser"},
	}}
	catalog := &mockCatalogRepo{departments: map[int64]*model.Department{
		7: {ID: 7, Name: "Finance", Slug: "finance"},
		8: {ID: 8, Name: "Front Desk", Slug: "front_desk"},
	}}
	r := NewActorResolver(users, catalog, "finance", testLogger())
	ctx := context.Background()

	tests := []struct {
		username    string
		wantFinance bool
	}{
		{"fin", true},
		{"clerk", false},
		// признак финансов действует только для azwk_staff
		{"boss", false},
		{"orphan", false},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			a, err := r.Resolve(ctx, tt.username)
			if err != nil {
				t.Fatalf("Resolve ошибка: %v", err)
			}
			if a.IsFinance != tt.wantFinance {
				t.Errorf("IsFinance = %v, ожидалось %v", a.IsFinance, tt.wantFinance)
			}
		})
	}

	clerk, _ := r.Resolve(ctx, "clerk")
	if !clerk.IsSiteAdmin || clerk.SiteID == nil || *clerk.SiteID != 5 {
		t.Errorf("clerk = %+v", clerk)
	}

	if _, err := r.Resolve(ctx, "nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("неизвестный пользователь: ошибка = %v", err)
	}
	if _, err := r.Resolve(ctx, "legacy"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("неизвестная роль: ошибка = %v", err)
	}
}
