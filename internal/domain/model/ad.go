package model

import "time"

// Типы рекламных объявлений.
const (
	AdTypeText  = "text"
	AdTypeImage = "image"
)

// GlobalAd — объявление глобального каталога.
// Хранится в таблице global_ads.
type GlobalAd struct {
	// ID — идентификатор объявления
	ID int64
	// Type — тип объявления (text, image)
	Type string
	// Title — заголовок
	Title string
	// Text — текст объявления (для text)
	Text *string
	// ImagePath — публичный путь к изображению (для image), например /uploads/ads/x.png
	ImagePath *string
	// IsActive — глобальный флаг активности
	IsActive bool
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// SiteAd — назначение объявления площадке.
type SiteAd struct {
	ID           int64
	SiteID       int64
	GlobalAdID   int64
	DisplayOrder int
	IsActive     bool
	CreatedAt    time.Time

	// Поля каталога, заполняются при выборке списка площадки
	Type      string
	Title     string
	Text      *string
	ImagePath *string
}
