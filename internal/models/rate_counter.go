package models

import (
	"time"
)

// RateCounter is one fixed-window request counter shared by every API instance.
type RateCounter struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Count     int       `gorm:"not null;default:0"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
