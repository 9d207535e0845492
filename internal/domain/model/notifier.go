package model

import "time"

// Notifier — сотрудник площадки, получающий уведомления о посетителях.
type Notifier struct {
	ID         int64
	SiteID     int64
	StaffName  string
	StaffEmail string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
