package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

func budgetUsers() *mockUserRepo {
	return &mockUserRepo{users: map[int64]*model.User{
		10: {ID: 10, Username: "owner", Role: rbac.RoleStaff},
		20: {ID: 20, Username: "fin", Role: rbac.RoleStaff},
		2:  {ID: 2, Username: "director", Role: rbac.RoleDirector},
	}}
}

func validBudgetInput() BudgetInput {
	return BudgetInput{
		Name:            "Ваучеры WIOA",
		UserID:          ptr(int64(10)),
		GrantID:         1,
		DepartmentID:    3,
		FiscalYearStart: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		FiscalYearEnd:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Type:            model.BudgetTypeStaff,
	}
}

func TestBudgetService_Create(t *testing.T) {
	tests := []struct {
		name    string
		actor   rbac.Actor
		mutate  func(in *BudgetInput)
		wantErr error
	}{
		{"Staff-бюджет сотрудника", directorActor, func(*BudgetInput) {}, nil},
		{"Admin-бюджет без владельца", adminActor, func(in *BudgetInput) {
			in.Type = model.BudgetTypeAdmin
			in.UserID = nil
		}, nil},
		{"Staff-бюджет без владельца", directorActor, func(in *BudgetInput) { in.UserID = nil }, ErrValidation},
		{"владелец — директор", directorActor, func(in *BudgetInput) { in.UserID = ptr(int64(2)) }, ErrValidation},
		{"неизвестный владелец", directorActor, func(in *BudgetInput) { in.UserID = ptr(int64(99)) }, ErrValidation},
		{"неизвестный тип", directorActor, func(in *BudgetInput) { in.Type = "Program" }, ErrValidation},
		{"конец года раньше начала", directorActor, func(in *BudgetInput) {
			in.FiscalYearEnd = in.FiscalYearStart.AddDate(0, -1, 0)
		}, ErrValidation},
		{"сотрудник не создаёт бюджеты", staffOwner, func(*BudgetInput) {}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockBudgetRepo{}
			svc := NewBudgetService(repo, budgetUsers(), testLogger())
			in := validBudgetInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), tt.actor, in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			if (tt.wantErr == nil) != (len(repo.created) == 1) {
				t.Errorf("создано %d", len(repo.created))
			}
		})
	}
}

func TestBudgetService_Get_HiddenIsNotFound(t *testing.T) {
	budgets, _ := allocationFixture()
	svc := NewBudgetService(budgets, budgetUsers(), testLogger())
	ctx := context.Background()

	if _, err := svc.Get(ctx, otherStaff, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("чужой Staff-бюджет: ошибка = %v, ожидалась ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, financeStaff, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("недоступный отдел: ошибка = %v, ожидалась ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, staffOwner, 1); err != nil {
		t.Errorf("владелец: %v", err)
	}
}

func TestBudgetService_List_ForcesScope(t *testing.T) {
	var got repository.BudgetListParams
	budgets := &mockBudgetRepo{
		accessible: map[int64][]int64{20: {3, 5}},
		listFn: func(_ context.Context, p repository.BudgetListParams) ([]*model.Budget, int, error) {
			got = p
			return nil, 0, nil
		},
	}
	svc := NewBudgetService(budgets, budgetUsers(), testLogger())

	if _, _, err := svc.List(context.Background(), financeStaff, BudgetFilter{DepartmentID: ptr(int64(4)), Limit: -1}); err != nil {
		t.Fatalf("List ошибка: %v", err)
	}
	if got.Scope.Visibility != rbac.VisibleDepartments || !slices.Equal(got.Scope.Departments, []int64{3, 5}) {
		t.Errorf("Scope = %+v", got.Scope)
	}
	if got.Limit != defaultPageLimit {
		t.Errorf("Limit = %d", got.Limit)
	}
}

func TestBudgetService_SetFinanceAccess(t *testing.T) {
	var saved []int64
	budgets := &mockBudgetRepo{
		setAccessFn: func(_ context.Context, _ int64, ids []int64) error {
			saved = ids
			return nil
		},
	}
	svc := NewBudgetService(budgets, budgetUsers(), testLogger())
	ctx := context.Background()

	if err := svc.SetFinanceAccess(ctx, adminActor, 20, []int64{5, 3, 5}); err != nil {
		t.Fatalf("SetFinanceAccess ошибка: %v", err)
	}
	if !slices.Equal(saved, []int64{3, 5}) {
		t.Errorf("сохранено %v, ожидалось [3 5]", saved)
	}

	if err := svc.SetFinanceAccess(ctx, directorActor, 20, []int64{3}); !errors.Is(err, ErrForbidden) {
		t.Errorf("директор: ошибка = %v, ожидалась ErrForbidden", err)
	}
	if err := svc.SetFinanceAccess(ctx, adminActor, 2, []int64{3}); !errors.Is(err, ErrValidation) {
		t.Errorf("не сотрудник: ошибка = %v, ожидалась ErrValidation", err)
	}
	if err := svc.SetFinanceAccess(ctx, adminActor, 20, []int64{0}); !errors.Is(err, ErrValidation) {
		t.Errorf("ID 0: ошибка = %v, ожидалась ErrValidation", err)
	}
}
