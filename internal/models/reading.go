package models

import "time"

// Reading is one capability value reported by a metering device.
type Reading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HomeID      string    `gorm:"index;not null" json:"home_id"`
	DeviceID    string    `gorm:"index;not null" json:"device_id"`
	Capability  string    `gorm:"index;not null" json:"capability"`
	Value       *float64  `json:"value"` // nil when the raw value is not numeric
	Raw         string    `json:"raw"`
	Unit        string    `json:"unit"`
	Description string    `json:"description"`
	TakenAt     time.Time `gorm:"index" json:"taken_at"`
}
