package models

import (
	"time"

	"gorm.io/gorm"
)

// PortForward is the last forward synced for a public port. There is at most
// one row per port.
type PortForward struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	PublicPort    int            `gorm:"not null;uniqueIndex" json:"public_port"`
	ListenAddress string         `gorm:"not null" json:"listen_address"`
	TargetNode    string         `gorm:"not null" json:"target_node"`
	TargetPort    int            `gorm:"not null" json:"target_port"`
	Protocol      string         `gorm:"not null" json:"protocol"`
	RuleName      string         `gorm:"not null" json:"rule_name"`
	Backend       string         `json:"backend"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
