package model

import "time"

// WebhookEvent records a gateway event that has been fully applied.
type WebhookEvent struct {
	ID          string    `gorm:"primaryKey;type:VARCHAR(255);"`
	Type        string    `gorm:"not null;type:VARCHAR(128)"`
	ProcessedAt time.Time `gorm:"not null;autoCreateTime"`
}
