package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent records one applied plan-change notification. The dedupe
// key carries the upstream event ID; its unique index makes redelivered
// events no-ops.
type BillingEvent struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID      `gorm:"not null;index" json:"account_id"`
	EventType string            `gorm:"type:text;not null" json:"event_type"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null" json:"payload,omitempty"`
	DedupeKey *string           `gorm:"type:text;uniqueIndex:ux_billing_event_dedupe" json:"dedupe_key,omitempty"`
	AppliedAt time.Time         `gorm:"not null" json:"applied_at"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (BillingEvent) TableName() string { return "billing_events" }
