package model

import "time"

// Типы бюджетов.
const (
	// BudgetTypeStaff — бюджет сотрудника: редактирует владелец или директор
	BudgetTypeStaff = "Staff"
	// BudgetTypeAdmin — административный бюджет отдела: редактирует финансовый отдел
	BudgetTypeAdmin = "Admin"
)

// Grant — грант, из которого финансируются бюджеты.
type Grant struct {
	ID          int64
	Name        string
	Code        *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Vendor — поставщик (получатель платежа) по распределению.
type Vendor struct {
	ID        int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// Budget — бюджет отдела или сотрудника в рамках гранта и финансового года.
// Хранится в таблице budgets, удаление мягкое (DeletedAt).
type Budget struct {
	// ID — идентификатор бюджета
	ID int64
	// Name — название
	Name string
	// UserID — владелец (обязателен для Staff-типа)
	UserID *int64
	// GrantID — грант-источник
	GrantID int64
	// DepartmentID — отдел
	DepartmentID int64
	// FiscalYearStart — начало финансового года
	FiscalYearStart time.Time
	// FiscalYearEnd — конец финансового года
	FiscalYearEnd time.Time
	// Type — тип бюджета (Staff, Admin)
	Type string
	// Notes — примечания
	Notes *string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
	// DeletedAt — время мягкого удаления
	DeletedAt *time.Time
}

// IsOwnedBy проверяет, что бюджет принадлежит пользователю.
func (b *Budget) IsOwnedBy(userID int64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// Allocation — строка распределения бюджета.
// Значения полей хранятся в нормализованном текстовом виде
// (см. AllocationField.Normalize), nil — NULL.
type Allocation struct {
	ID       int64
	BudgetID int64
	Fields   map[string]*string

	FinProcessedByUserID *int64
	FinProcessedAt       *time.Time
	CreatedByUserID      *int64
	UpdatedByUserID      *int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            *time.Time
}

// AllocationReportRow — строка отчёта по распределениям с данными
// бюджета, гранта, отдела, поставщика и владельца.
type AllocationReportRow struct {
	Allocation

	BudgetName     string
	BudgetType     string
	GrantID        int64
	GrantName      string
	DepartmentID   int64
	DepartmentName string
	VendorName     *string
	OwnerUserID    *int64
	OwnerName      *string
}
