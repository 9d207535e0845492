package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldGroup — группа полей распределения для матрицы прав записи.
type FieldGroup string

const (
	// GroupCore — дата, поставщик, статус, пояснения
	GroupCore FieldGroup = "core"
	// GroupFunding — суммы по источникам финансирования
	GroupFunding FieldGroup = "funding"
	// GroupFinance — отметки финансового отдела
	GroupFinance FieldGroup = "finance"
)

// FieldKind — тип значения поля.
type FieldKind int

const (
	KindText FieldKind = iota
	KindDate
	KindDecimal
	KindID
)

// decimalEpsilon — допуск при сравнении денежных сумм.
const decimalEpsilon = 0.001

// maxDecimal — предел NUMERIC(12,2).
const maxDecimal = 1e10

// ErrInvalidFieldValue — значение поля не соответствует его типу.
var ErrInvalidFieldValue = errors.New("некорректное значение поля")

// AllocationField — описание поля распределения.
type AllocationField struct {
	Name  string
	Group FieldGroup
	Kind  FieldKind
	// FinanceEditable — поле FUNDING, изменение которого финансовым
	// отделом отмечается как обработка (fin_processed_*)
	FinanceEditable bool
	// Allowed — допустимые значения для текстовых полей-перечислений
	Allowed []string
}

// AllocationFields — полный перечень записываемых полей распределения.
var AllocationFields = []AllocationField{
	{Name: "transaction_date", Group: GroupCore, Kind: KindDate},
	{Name: "vendor_id", Group: GroupCore, Kind: KindID},
	{Name: "client_name", Group: GroupCore, Kind: KindText},
	{Name: "voucher_number", Group: GroupCore, Kind: KindText},
	{Name: "enrollment_date", Group: GroupCore, Kind: KindDate},
	{Name: "class_start_date", Group: GroupCore, Kind: KindDate},
	{Name: "purchase_date", Group: GroupCore, Kind: KindDate},
	{Name: "payment_status", Group: GroupCore, Kind: KindText, Allowed: []string{"paid", "pending", "void"}},
	{Name: "program_explanation", Group: GroupCore, Kind: KindText},

	{Name: "funding_dw", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_dw_admin", Group: GroupFunding, Kind: KindDecimal, FinanceEditable: true},
	{Name: "funding_dw_sus", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_adult", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_adult_admin", Group: GroupFunding, Kind: KindDecimal, FinanceEditable: true},
	{Name: "funding_adult_sus", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_rr", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_h1b", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_youth_is", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_youth_os", Group: GroupFunding, Kind: KindDecimal},
	{Name: "funding_youth_admin", Group: GroupFunding, Kind: KindDecimal, FinanceEditable: true},

	{Name: "fin_voucher_received", Group: GroupFinance, Kind: KindText, Allowed: []string{"yes", "no"}},
	{Name: "fin_accrual_date", Group: GroupFinance, Kind: KindDate},
	{Name: "fin_obligated_date", Group: GroupFinance, Kind: KindDate},
	{Name: "fin_comments", Group: GroupFinance, Kind: KindText},
	{Name: "fin_expense_code", Group: GroupFinance, Kind: KindText},
}

var allocationFieldIndex = func() map[string]AllocationField {
	m := make(map[string]AllocationField, len(AllocationFields))
	for _, f := range AllocationFields {
		m[f.Name] = f
	}
	return m
}()

// LookupAllocationField возвращает описание поля по имени.
func LookupAllocationField(name string) (AllocationField, bool) {
	f, ok := allocationFieldIndex[name]
	return f, ok
}

// SQLType возвращает тип PostgreSQL для приведения параметра.
func (f AllocationField) SQLType() string {
	switch f.Kind {
	case KindDate:
		return "date"
	case KindDecimal:
		return "numeric"
	case KindID:
		return "bigint"
	default:
		return "text"
	}
}

// TriggersFinanceProcessing — изменение поля финансовым отделом
// проставляет fin_processed_by_user_id / fin_processed_at.
func (f AllocationField) TriggersFinanceProcessing() bool {
	return f.Group == GroupFinance || f.FinanceEditable
}

// Normalize приводит входное значение (из JSON) к каноническому
// текстовому виду. Пустая строка и nil дают nil (NULL).
func (f AllocationField) Normalize(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Kind {
	case KindDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s ожидает дату YYYY-MM-DD", ErrInvalidFieldValue, f.Name)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		d, err := parseDate(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q не является датой", ErrInvalidFieldValue, f.Name, s)
		}
		out := d.Format(time.DateOnly)
		return &out, nil

	case KindDecimal:
		n, empty, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, f.Name, err)
		}
		if empty {
			return nil, nil
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) >= maxDecimal {
			return nil, fmt.Errorf("%w: %s: сумма вне допустимого диапазона", ErrInvalidFieldValue, f.Name)
		}
		out := strconv.FormatFloat(n, 'f', 2, 64)
		return &out, nil

	case KindID:
		n, empty, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, f.Name, err)
		}
		if empty {
			return nil, nil
		}
		if n <= 0 || n != math.Trunc(n) || n > math.MaxInt64/2 {
			return nil, fmt.Errorf("%w: %s: ожидается положительный идентификатор", ErrInvalidFieldValue, f.Name)
		}
		out := strconv.FormatInt(int64(n), 10)
		return &out, nil

	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s ожидает строку", ErrInvalidFieldValue, f.Name)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if len(f.Allowed) > 0 && !slices.Contains(f.Allowed, s) {
			return nil, fmt.Errorf("%w: %s: допустимые значения %s",
				ErrInvalidFieldValue, f.Name, strings.Join(f.Allowed, ", "))
		}
		return &s, nil
	}
}

// Equal сравнивает два нормализованных значения поля.
// NULL и не-NULL всегда различаются, суммы сравниваются с допуском.
func (f AllocationField) Equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if f.Kind == KindDecimal {
		x, errX := strconv.ParseFloat(*a, 64)
		y, errY := strconv.ParseFloat(*b, 64)
		if errX != nil || errY != nil {
			return *a == *b
		}
		return math.Abs(x-y) < decimalEpsilon
	}
	return *a == *b
}

func parseDate(s string) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}

// toFloat принимает число из JSON (float64, json.Number) или строку.
func toFloat(v any) (n float64, empty bool, err error) {
	switch x := v.(type) {
	case float64:
		return x, false, nil
	case int:
		return float64(x), false, nil
	case int64:
		return float64(x), false, nil
	case json.Number:
		n, err = x.Float64()
		return n, false, err
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true, nil
		}
		n, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%q не является числом", s)
		}
		return n, false, nil
	default:
		return 0, false, fmt.Errorf("неподдерживаемый тип %T", v)
	}
}
