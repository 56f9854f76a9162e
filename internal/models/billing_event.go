package models

import (
	"time"

	"gorm.io/datatypes"
)

// BillingEvent is a verified provider webhook, stored once per event id so
// replays are ignored.
type BillingEvent struct {
	ID          string         `gorm:"column:id;type:text;primaryKey" json:"id"`
	Type        string         `gorm:"column:type;type:text;index" json:"type"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	ReceivedAt  time.Time      `gorm:"column:received_at;type:timestamptz" json:"received_at"`
	ProcessedAt *time.Time     `gorm:"column:processed_at;type:timestamptz" json:"processed_at,omitempty"`
}

func (BillingEvent) TableName() string { return "billing_events" }
