package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/plan"
	"gorm.io/datatypes"
)

type Account struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	Email            string            `gorm:"not null;uniqueIndex" json:"email"`
	Name             string            `gorm:"not null" json:"name"`
	Tier             plan.Tier         `gorm:"not null;default:'free'" json:"tier"`
	CreditsRemaining int64             `gorm:"not null;default:0" json:"credits_remaining"`
	CreditsUsed      int64             `gorm:"not null;default:0" json:"credits_used"`
	CreditsResetAt   *time.Time        `json:"credits_reset_at,omitempty"`
	Active           bool              `gorm:"not null;default:true" json:"active"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}
