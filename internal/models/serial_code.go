package models

import "time"

// SerialCode binds a human-shareable code (3 letters + 4 digits) to a
// passenger identity. Codes address transfers and deposits without exposing
// phone numbers, are never credentials, and are immutable once assigned.
type SerialCode struct {
	ID          uint   `gorm:"primarykey"`
	Code        string `gorm:"uniqueIndex;not null"`
	PassengerID uint   `gorm:"uniqueIndex;not null"`
	Active      bool   `gorm:"default:true"`
	CreatedAt   time.Time
}
