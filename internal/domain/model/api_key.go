package model

import (
	"slices"
	"time"
)

// APIKey — ключ доступа интеграций.
// Хранится в таблице api_keys. Секрет хранится только в виде bcrypt-хэша.
type APIKey struct {
	// ID — идентификатор ключа
	ID int64
	// Name — человекочитаемое имя
	Name string
	// KeyHash — bcrypt-хэш секрета
	KeyHash string
	// Permissions — разрешения ключа (checkin:create, questions:read, ...)
	Permissions []string
	// AssociatedUserID — пользователь, от имени которого действует ключ (опционально)
	AssociatedUserID *int64
	// AssociatedSiteID — площадка, к которой привязан ключ (опционально)
	AssociatedSiteID *int64
	// CreatedAt — время создания
	CreatedAt time.Time
	// LastUsedAt — время последней успешной проверки
	LastUsedAt *time.Time
	// RevokedAt — время отзыва (nil — ключ активен)
	RevokedAt *time.Time
}

// IsRevoked возвращает true, если ключ отозван.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasPermission проверяет наличие разрешения у ключа.
func (k *APIKey) HasPermission(perm string) bool {
	return slices.Contains(k.Permissions, perm)
}
