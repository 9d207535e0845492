package model

import "time"

// Допустимые ответы на вопросы анкеты.
const (
	AnswerYes = "YES"
	AnswerNo  = "NO"
)

// CheckIn — регистрация посетителя на площадке.
// Ответы хранятся в колонках q_<slug> таблицы check_ins.
type CheckIn struct {
	ID          int64
	SiteID      int64
	FirstName   string
	LastName    string
	ClientEmail *string
	CheckInTime time.Time
	APIKeyID    *int64
	// Answers — ответы по slug вопроса (YES или NO)
	Answers map[string]string
}
