package repository

import (
	"strings"
	"testing"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/rbac"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

// TestBuildReportWhere_Visibility проверяет условия видимости по ролям.
func TestBuildReportWhere_Visibility(t *testing.T) {
	tests := []struct {
		name     string
		scope    VisibilityScope
		wantOK   bool
		contains string
		wantArgs int
	}{
		{name: "все строки", scope: VisibilityScope{Visibility: rbac.VisibleAll}, wantOK: true, wantArgs: 0},
		{
			name:     "финансы — доступные отделы",
			scope:    VisibilityScope{Visibility: rbac.VisibleDepartments, Departments: []int64{3}},
			wantOK:   true,
			contains: "b.department_id = ANY($1)",
			wantArgs: 1,
		},
		{
			name:   "финансы без отделов — ни одной строки",
			scope:  VisibilityScope{Visibility: rbac.VisibleDepartments},
			wantOK: false,
		},
		{
			name:     "сотрудник — свои бюджеты",
			scope:    VisibilityScope{Visibility: rbac.VisibleOwn, UserID: 42},
			wantOK:   true,
			contains: "b.user_id = $1",
			wantArgs: 1,
		},
		{name: "неизвестная роль — ни одной строки", scope: VisibilityScope{Visibility: rbac.VisibleNone}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, ok := buildReportWhere(ReportParams{Scope: tt.scope}, 1)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, ожидалось %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !strings.Contains(where, "a.deleted_at IS NULL") {
				t.Errorf("where = %q, ожидалось исключение удалённых", where)
			}
			if tt.contains != "" && !strings.Contains(where, tt.contains) {
				t.Errorf("where = %q, ожидалось содержание %q", where, tt.contains)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args count = %d, ожидался %d", len(args), tt.wantArgs)
			}
		})
	}
}

// TestBuildReportWhere_FilterDoesNotWidenScope — фильтр по другому отделу
// добавляется к ограничению видимости через AND.
func TestBuildReportWhere_FilterDoesNotWidenScope(t *testing.T) {
	params := ReportParams{
		Scope:        VisibilityScope{Visibility: rbac.VisibleDepartments, Departments: []int64{3}},
		DepartmentID: int64Ptr(7),
	}
	where, args, ok := buildReportWhere(params, 1)
	if !ok {
		t.Fatal("ok = false, ожидалось true")
	}
	if !strings.Contains(where, "b.department_id = ANY($1) AND") {
		t.Errorf("where = %q, видимость должна идти первой и объединяться через AND", where)
	}
	if !strings.Contains(where, "b.department_id = $2") {
		t.Errorf("where = %q, ожидался фильтр отдела $2", where)
	}
	if strings.Contains(where, " OR b.") {
		t.Errorf("where = %q, условие видимости не должно объединяться через OR", where)
	}
	if len(args) != 2 {
		t.Errorf("args count = %d, ожидался 2", len(args))
	}
}

// TestBuildReportWhere_AllFilters проверяет нумерацию параметров.
func TestBuildReportWhere_AllFilters(t *testing.T) {
	params := ReportParams{
		Scope:         VisibilityScope{Visibility: rbac.VisibleOwn, UserID: 1},
		BudgetID:      int64Ptr(2),
		GrantID:       int64Ptr(3),
		VendorID:      int64Ptr(4),
		PaymentStatus: strPtr("paid"),
		Query:         strPtr("смит"),
	}
	where, args, ok := buildReportWhere(params, 1)
	if !ok {
		t.Fatal("ok = false")
	}
	for _, want := range []string{
		"b.user_id = $1", "a.budget_id = $2", "b.grant_id = $3",
		"a.vendor_id = $4", "a.payment_status = $5", "a.client_name ILIKE $6",
	} {
		if !strings.Contains(where, want) {
			t.Errorf("where = %q, ожидалось содержание %q", where, want)
		}
	}
	if len(args) != 6 {
		t.Fatalf("args count = %d, ожидался 6", len(args))
	}
	if args[5] != "%смит%" {
		t.Errorf("args[5] = %v, ожидался '%%смит%%'", args[5])
	}
}

// TestBuildReportOrderBy проверяет whitelist сортировки.
func TestBuildReportOrderBy(t *testing.T) {
	tests := []struct {
		sortBy, sortOrder, want string
	}{
		{"", "", "ORDER BY a.transaction_date DESC NULLS LAST, a.id DESC"},
		{"client_name", "asc", "ORDER BY a.client_name ASC NULLS LAST, a.id ASC"},
		{"budget_name", "DESC", "ORDER BY b.name DESC NULLS LAST, a.id DESC"},
		{"a.id; DROP TABLE budgets", "asc", "ORDER BY a.transaction_date ASC NULLS LAST, a.id ASC"},
	}
	for _, tt := range tests {
		if got := buildReportOrderBy(tt.sortBy, tt.sortOrder); got != tt.want {
			t.Errorf("buildReportOrderBy(%q, %q) = %q, ожидался %q", tt.sortBy, tt.sortOrder, got, tt.want)
		}
	}
}

// TestBuildReportWhere_QueryIsLiteral — спецсимволы LIKE в поиске
// ищутся как обычный текст.
func TestBuildReportWhere_QueryIsLiteral(t *testing.T) {
	tests := []struct {
		query, want string
	}{
		{"%", `%\%%`},
		{"a_b", `%a\_b%`},
		{`50\%`, `%50\\\%%`},
		{"Смит", "%Смит%"},
	}
	for _, tt := range tests {
		params := ReportParams{
			Scope: VisibilityScope{Visibility: rbac.VisibleAll},
			Query: strPtr(tt.query),
		}
		_, args, ok := buildReportWhere(params, 1)
		if !ok || len(args) != 1 {
			t.Fatalf("ok = %v, args = %v", ok, args)
		}
		if args[0] != tt.want {
			t.Errorf("query %q: args[0] = %q, ожидался %q", tt.query, args[0], tt.want)
		}
	}
}
