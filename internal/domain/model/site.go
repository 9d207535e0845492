package model

import "time"

// Site — площадка (офис), на которой регистрируются посетители.
// Хранится в таблице sites.
type Site struct {
	ID       int64
	Name     string
	IsActive bool
	// EmailCollectionDescription — текст, поясняющий посетителю, зачем нужен email
	EmailCollectionDescription *string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// SiteConfiguration — одна настройка площадки (ключ → значение).
// Хранится в таблице site_configurations, ключ уникален в пределах площадки.
type SiteConfiguration struct {
	SiteID    int64
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Department — отдел. Slug назначается при создании и не меняется
// при переименовании.
type Department struct {
	ID        int64
	Name      string
	Slug      string
	CreatedAt time.Time
}

// User — профиль сотрудника. Аутентификацию выполняет внешний IdP,
// здесь хранятся роль и привязки к площадке и отделу.
type User struct {
	ID           int64
	Username     string
	FullName     string
	Email        *string
	Role         string
	IsSiteAdmin  bool
	SiteID       *int64
	DepartmentID *int64
	CreatedAt    time.Time
}
