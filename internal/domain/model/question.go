package model

import "time"

// GlobalQuestion — вопрос глобального каталога.
// Хранится в таблице global_questions.
type GlobalQuestion struct {
	// ID — идентификатор вопроса
	ID int64
	// Text — отображаемый текст вопроса
	Text string
	// Title — slug вопроса, неизменяемый после создания.
	// Определяет колонку ответа q_<Title> в таблице check_ins.
	Title string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения текста
	UpdatedAt time.Time
}

// SiteQuestion — назначение вопроса каталога площадке.
// DisplayOrder плотный в пределах площадки: 0..n-1 без пропусков.
type SiteQuestion struct {
	ID               int64
	SiteID           int64
	GlobalQuestionID int64
	DisplayOrder     int
	IsActive         bool
	CreatedAt        time.Time

	// Поля каталога, заполняются при выборке списка площадки
	Text  string
	Title string
}
