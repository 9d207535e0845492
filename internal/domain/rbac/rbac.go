// Пакет rbac — контекст действующего пользователя и политика доступа:
// роли, права на площадки и каталоги, матрица прав записи полей
// распределений бюджета и видимость строк отчёта.
package rbac

import (
	"slices"

	"github.com/rlarcher1021/seazwf-sub002/internal/domain/model"
)

// Роли пользователей.
const (
	RoleAdministrator = "administrator"
	RoleDirector      = "director"
	RoleStaff         = "azwk_staff"
)

var validRoles = map[string]bool{
	RoleAdministrator: true,
	RoleDirector:      true,
	RoleStaff:         true,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	return validRoles[role]
}

// Actor — контекст пользователя, от имени которого выполняется операция.
// Передаётся явно в каждый вызов сервисов.
type Actor struct {
	UserID       int64
	Username     string
	Role         string
	SiteID       *int64
	DepartmentID *int64
	// IsSiteAdmin — расширенные права в пределах одной площадки (SiteID)
	IsSiteAdmin bool
	// IsFinance — сотрудник отдела финансов (azwk_staff из финансового отдела)
	IsFinance bool
}

// IsAdministrator возвращает true для глобального администратора.
func (a Actor) IsAdministrator() bool {
	return a.Role == RoleAdministrator
}

// IsDirector возвращает true для директора.
func (a Actor) IsDirector() bool {
	return a.Role == RoleDirector
}

// IsFinanceStaff возвращает true для сотрудника финансового отдела.
// Признак учитывается только у роли azwk_staff.
func (a Actor) IsFinanceStaff() bool {
	return a.Role == RoleStaff && a.IsFinance
}

// CanManageCatalog — управление глобальными каталогами вопросов и рекламы.
func (a Actor) CanManageCatalog() bool {
	return a.IsAdministrator()
}

// CanManageSite — назначение вопросов, рекламы и уведомлений площадке.
// Администратор и директор — любая площадка, site-admin — только своя.
func (a Actor) CanManageSite(siteID int64) bool {
	if a.IsAdministrator() || a.IsDirector() {
		return true
	}
	return a.IsSiteAdmin && a.SiteID != nil && *a.SiteID == siteID
}

// CanManageBudgets — создание и изменение бюджетов и справочников.
func (a Actor) CanManageBudgets() bool {
	return a.IsAdministrator() || a.IsDirector()
}

// AllowedAllocationGroups возвращает группы полей, которые actor может
// записывать в распределения бюджета b. Пустой результат — доступ запрещён.
//
//	Director      — Staff-бюджет                          — CORE + FUNDING + FINANCE
//	Finance staff — Admin-бюджет доступного отдела         — CORE + FUNDING + FINANCE
//	Staff         — собственный Staff-бюджет               — CORE + FUNDING
//
// Остальные комбинации, включая администратора, запрещены.
func AllowedAllocationGroups(a Actor, b *model.Budget, accessibleDepartments []int64) []model.FieldGroup {
	switch {
	case a.IsDirector() && b.Type == model.BudgetTypeStaff:
		return []model.FieldGroup{model.GroupCore, model.GroupFunding, model.GroupFinance}
	case a.IsFinanceStaff() && b.Type == model.BudgetTypeAdmin &&
		slices.Contains(accessibleDepartments, b.DepartmentID):
		return []model.FieldGroup{model.GroupCore, model.GroupFunding, model.GroupFinance}
	case a.Role == RoleStaff && b.Type == model.BudgetTypeStaff && b.IsOwnedBy(a.UserID):
		return []model.FieldGroup{model.GroupCore, model.GroupFunding}
	}
	return nil
}

// CanWriteField проверяет, входит ли поле в разрешённые группы.
func CanWriteField(groups []model.FieldGroup, f model.AllocationField) bool {
	return slices.Contains(groups, f.Group)
}

// CanDeleteAllocation — мягкое удаление распределения.
// Финансовый отдел не удаляет распределения никогда.
func CanDeleteAllocation(a Actor, b *model.Budget) bool {
	if b.Type != model.BudgetTypeStaff || a.IsFinanceStaff() {
		return false
	}
	if a.IsDirector() {
		return true
	}
	return a.Role == RoleStaff && b.IsOwnedBy(a.UserID)
}

// Visibility — область видимости строк отчёта по распределениям.
type Visibility int

const (
	// VisibleNone — ни одной строки (неизвестная роль)
	VisibleNone Visibility = iota
	// VisibleAll — все строки
	VisibleAll
	// VisibleDepartments — бюджеты отделов из списка доступа финансового сотрудника
	VisibleDepartments
	// VisibleOwn — только бюджеты, которыми владеет пользователь
	VisibleOwn
)

// ReportVisibility определяет видимость строк отчёта для actor.
// Любая роль вне матрицы получает VisibleNone.
func ReportVisibility(a Actor) Visibility {
	switch {
	case a.IsAdministrator() || a.IsDirector():
		return VisibleAll
	case a.IsFinanceStaff():
		return VisibleDepartments
	case a.Role == RoleStaff:
		return VisibleOwn
	default:
		return VisibleNone
	}
}
