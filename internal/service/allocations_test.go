package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
	"github.com/rlarcher1021/seazwf-sub002/internal/repository"
)

// Фикстура: Staff-бюджет 1 сотрудника 10 в отделе 3,
// Admin-бюджет 2 отдела 3, Admin-бюджет 3 отдела 4.
var (
	staffOwner   = rbac.Actor{UserID: 10, Username: "owner", Role: rbac.RoleStaff}
	otherStaff   = rbac.Actor{UserID: 11, Username: "other", Role: rbac.RoleStaff}
	financeStaff = rbac.Actor{UserID: 20, Username: "fin", Role: rbac.RoleStaff, IsFinance: true}
	unknownRole  = rbac.Actor{UserID: 30, Username: "ghost", Role: "auditor"}
)

func allocationFixture() (*mockBudgetRepo, *mockAllocationRepo) {
	budgets := &mockBudgetRepo{
		budgets: map[int64]*model.Budget{
			1: {ID: 1, Type: model.BudgetTypeStaff, UserID: ptr(int64(10)), DepartmentID: 3},
			2: {ID: 2, Type: model.BudgetTypeAdmin, DepartmentID: 3},
			3: {ID: 3, Type: model.BudgetTypeAdmin, DepartmentID: 4},
		},
		accessible: map[int64][]int64{20: {3}},
	}
	allocations := &mockAllocationRepo{
		allocations: map[int64]*model.Allocation{
			50: {ID: 50, BudgetID: 1, Fields: map[string]*string{
				"transaction_date": ptr("2025-03-01"),
				"funding_dw":       ptr("100.00"),
				"payment_status":   ptr("pending"),
			}},
			60: {ID: 60, BudgetID: 2, Fields: map[string]*string{
				"transaction_date": ptr("2025-03-02"),
				"funding_dw_admin": ptr("40.00"),
			}},
		},
	}
	return budgets, allocations
}

func TestAllocationService_Create_Matrix(t *testing.T) {
	tests := []struct {
		name     string
		actor    rbac.Actor
		budgetID int64
		payload  map[string]any
		wantErr  error
	}{
		{"директор — Staff-бюджет, финансовые поля", directorActor, 1,
			map[string]any{"transaction_date": "2025-04-01", "fin_comments": "ok"}, nil},
		{"владелец — свой Staff-бюджет", staffOwner, 1,
			map[string]any{"transaction_date": "2025-04-01", "funding_dw": 12.5}, nil},
		{"владелец — финансовое поле", staffOwner, 1,
			map[string]any{"transaction_date": "2025-04-01", "fin_comments": "x"}, ErrForbidden},
		{"чужой Staff-бюджет", otherStaff, 1,
			map[string]any{"transaction_date": "2025-04-01"}, ErrForbidden},
		{"финансы — Admin-бюджет доступного отдела", financeStaff, 2,
			map[string]any{"transaction_date": "2025-04-01", "fin_expense_code": "E-1"}, nil},
		{"финансы — Admin-бюджет чужого отдела", financeStaff, 3,
			map[string]any{"transaction_date": "2025-04-01"}, ErrForbidden},
		{"финансы — Staff-бюджет", financeStaff, 1,
			map[string]any{"transaction_date": "2025-04-01"}, ErrForbidden},
		{"директор — Admin-бюджет", directorActor, 2,
			map[string]any{"transaction_date": "2025-04-01"}, ErrForbidden},
		{"администратор", adminActor, 1,
			map[string]any{"transaction_date": "2025-04-01"}, ErrForbidden},
		{"неизвестная роль", unknownRole, 1,
			map[string]any{"transaction_date": "2025-04-01"}, ErrForbidden},
		{"удалённый бюджет", directorActor, 99,
			map[string]any{"transaction_date": "2025-04-01"}, ErrNotFound},
		{"неизвестное поле", directorActor, 1,
			map[string]any{"transaction_date": "2025-04-01", "budget_id": 2}, ErrValidation},
		{"без даты", directorActor, 1,
			map[string]any{"funding_dw": 1}, ErrValidation},
		{"некорректная сумма", directorActor, 1,
			map[string]any{"transaction_date": "2025-04-01", "funding_dw": "много"}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budgets, allocations := allocationFixture()
			svc := NewAllocationService(allocations, budgets, testLogger())

			_, err := svc.Create(context.Background(), tt.actor, tt.budgetID, tt.payload)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Create ошибка: %v", err)
				}
				if len(allocations.created) != 1 {
					t.Fatalf("создано %d, ожидалось 1", len(allocations.created))
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			if len(allocations.created) != 0 {
				t.Error("при отказе запись не должна создаваться")
			}
		})
	}
}

func TestAllocationService_Create_FinanceStamp(t *testing.T) {
	budgets, allocations := allocationFixture()
	svc := NewAllocationService(allocations, budgets, testLogger())

	a, err := svc.Create(context.Background(), financeStaff, 2, map[string]any{
		"transaction_date": "2025-04-01",
		"fin_accrual_date": "2025-04-02",
	})
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if a.FinProcessedByUserID == nil || *a.FinProcessedByUserID != financeStaff.UserID {
		t.Errorf("FinProcessedByUserID = %v, ожидался %d", a.FinProcessedByUserID, financeStaff.UserID)
	}
	if a.CreatedByUserID == nil || *a.CreatedByUserID != financeStaff.UserID {
		t.Errorf("CreatedByUserID = %v", a.CreatedByUserID)
	}
}

// TestAllocationService_Update_NoOp — совпадающие значения не трогают хранилище.
func TestAllocationService_Update_NoOp(t *testing.T) {
	budgets, allocations := allocationFixture()
	svc := NewAllocationService(allocations, budgets, testLogger())

	res, err := svc.Update(context.Background(), staffOwner, 50, map[string]any{
		"transaction_date": "2025-03-01",
		"funding_dw":       "100.0004",
		"payment_status":   " pending ",
	})
	if err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}
	if len(res.Changed) != 0 {
		t.Errorf("Changed = %v, ожидался пустой", res.Changed)
	}
	if len(allocations.updates) != 0 {
		t.Errorf("Update репозитория вызван %d раз", len(allocations.updates))
	}
}

// TestAllocationService_Update_OnlyChangedFields — записываются только
// действительно изменённые поля, NULL против значения — изменение.
func TestAllocationService_Update_OnlyChangedFields(t *testing.T) {
	budgets, allocations := allocationFixture()
	svc := NewAllocationService(allocations, budgets, testLogger())

	res, err := svc.Update(context.Background(), staffOwner, 50, map[string]any{
		"transaction_date": "2025-03-01",
		"funding_dw":       100,
		"funding_adult":    0,
		"payment_status":   "paid",
	})
	if err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}
	if !slices.Equal(res.Changed, []string{"funding_adult", "payment_status"}) {
		t.Errorf("Changed = %v", res.Changed)
	}
	if len(allocations.updates) != 1 {
		t.Fatalf("вызовов Update = %d", len(allocations.updates))
	}
	call := allocations.updates[0]
	if call.financeProcessed {
		t.Error("сотрудник не проставляет отметку финансов")
	}
	if call.actorID != staffOwner.UserID {
		t.Errorf("actorID = %d", call.actorID)
	}
	if *call.changes["funding_adult"] != "0.00" {
		t.Errorf("funding_adult = %s", *call.changes["funding_adult"])
	}
}

// TestAllocationService_Update_DeniedFieldLeavesRow — запрещённое поле
// отклоняет весь запрос без записи.
func TestAllocationService_Update_DeniedFieldLeavesRow(t *testing.T) {
	budgets, allocations := allocationFixture()
	svc := NewAllocationService(allocations, budgets, testLogger())

	_, err := svc.Update(context.Background(), staffOwner, 50, map[string]any{
		"payment_status": "paid",
		"fin_comments":   "обработано",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("ошибка = %v, ожидалась ErrForbidden", err)
	}
	if len(allocations.updates) != 0 {
		t.Error("при отказе запись не должна меняться")
	}
	if *allocations.allocations[50].Fields["payment_status"] != "pending" {
		t.Error("payment_status изменён")
	}
}

func TestAllocationService_Update_FinanceProcessing(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]any
		wantStamp bool
	}{
		{"поле FINANCE", map[string]any{"fin_comments": "ok"}, true},
		{"FINANCE-EDITABLE поле", map[string]any{"funding_dw_admin": 45}, true},
		{"обычное FUNDING поле", map[string]any{"funding_dw": 5}, false},
		{"FINANCE-EDITABLE без изменения", map[string]any{"funding_dw_admin": "40", "funding_dw": 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budgets, allocations := allocationFixture()
			svc := NewAllocationService(allocations, budgets, testLogger())

			if _, err := svc.Update(context.Background(), financeStaff, 60, tt.payload); err != nil {
				t.Fatalf("Update ошибка: %v", err)
			}
			if len(allocations.updates) != 1 {
				t.Fatalf("вызовов Update = %d", len(allocations.updates))
			}
			if got := allocations.updates[0].financeProcessed; got != tt.wantStamp {
				t.Errorf("financeProcessed = %v, ожидалось %v", got, tt.wantStamp)
			}
		})
	}
}

func TestAllocationService_Update_DirectorDoesNotStamp(t *testing.T) {
	budgets, allocations := allocationFixture()
	svc := NewAllocationService(allocations, budgets, testLogger())

	if _, err := svc.Update(context.Background(), directorActor, 50, map[string]any{"fin_comments": "ok"}); err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}
	if allocations.updates[0].financeProcessed {
		t.Error("отметку обработки ставит только финансовый отдел")
	}
}

func TestAllocationService_Update_ClearTransactionDate(t *testing.T) {
	budgets, allocations := allocationFixture()
	svc := NewAllocationService(allocations, budgets, testLogger())

	_, err := svc.Update(context.Background(), staffOwner, 50, map[string]any{"transaction_date": ""})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ошибка = %v, ожидалась ErrValidation", err)
	}
}

func TestAllocationService_Delete(t *testing.T) {
	tests := []struct {
		name    string
		actor   rbac.Actor
		id      int64
		wantErr error
	}{
		{"директор — Staff-бюджет", directorActor, 50, nil},
		{"владелец", staffOwner, 50, nil},
		{"чужой сотрудник", otherStaff, 50, ErrForbidden},
		{"финансы — Admin-бюджет", financeStaff, 60, ErrForbidden},
		{"директор — Admin-бюджет", directorActor, 60, ErrForbidden},
		{"нет записи", directorActor, 70, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budgets, allocations := allocationFixture()
			svc := NewAllocationService(allocations, budgets, testLogger())

			err := svc.Delete(context.Background(), tt.actor, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			if (tt.wantErr == nil) != (len(allocations.deleted) == 1) {
				t.Errorf("deleted = %v", allocations.deleted)
			}
		})
	}
}

func TestAllocationService_Report_Scope(t *testing.T) {
	tests := []struct {
		name     string
		actor    rbac.Actor
		wantVis  rbac.Visibility
		wantDept []int64
	}{
		{"администратор", adminActor, rbac.VisibleAll, nil},
		{"финансы", financeStaff, rbac.VisibleDepartments, []int64{3}},
		{"сотрудник", staffOwner, rbac.VisibleOwn, nil},
		{"неизвестная роль", unknownRole, rbac.VisibleNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budgets, allocations := allocationFixture()
			var got repository.ReportParams
			allocations.reportFn = func(_ context.Context, p repository.ReportParams) ([]*model.AllocationReportRow, int, error) {
				got = p
				return nil, 0, nil
			}
			svc := NewAllocationService(allocations, budgets, testLogger())

			// Фильтр по отделу 4 не расширяет видимость финансового сотрудника
			_, _, err := svc.Report(context.Background(), tt.actor, repository.ReportParams{
				DepartmentID: ptr(int64(4)),
				Scope:        repository.VisibilityScope{Visibility: rbac.VisibleAll},
				Limit:        5000,
			})
			if err != nil {
				t.Fatalf("Report ошибка: %v", err)
			}
			if got.Scope.Visibility != tt.wantVis {
				t.Errorf("Visibility = %v, ожидалась %v", got.Scope.Visibility, tt.wantVis)
			}
			if !slices.Equal(got.Scope.Departments, tt.wantDept) {
				t.Errorf("Departments = %v, ожидались %v", got.Scope.Departments, tt.wantDept)
			}
			if got.Scope.UserID != tt.actor.UserID {
				t.Errorf("UserID = %d", got.Scope.UserID)
			}
			if got.Limit != maxPageLimit {
				t.Errorf("Limit = %d, ожидался %d", got.Limit, maxPageLimit)
			}
		})
	}
}

func TestAllocationService_Get_Visibility(t *testing.T) {
	budgets, allocations := allocationFixture()
	svc := NewAllocationService(allocations, budgets, testLogger())
	ctx := context.Background()

	if _, err := svc.Get(ctx, staffOwner, 50); err != nil {
		t.Errorf("владелец: %v", err)
	}
	if _, err := svc.Get(ctx, otherStaff, 50); !errors.Is(err, ErrNotFound) {
		t.Errorf("чужой сотрудник: ошибка = %v, ожидалась ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, financeStaff, 60); err != nil {
		t.Errorf("финансы, доступный отдел: %v", err)
	}
}
