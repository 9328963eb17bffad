package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntryType classifies a ledger row by the operation that produced it.
type EntryType string

const (
	EntryCharge EntryType = "charge"
	EntryCredit EntryType = "credit"
	EntryReset  EntryType = "monthly_reset"
)

// Credit reasons recorded in the category column of credit entries.
const (
	ReasonSignupGrant    = "signup_grant"
	ReasonPlanChange     = "plan_change"
	ReasonManualGrant    = "manual_grant"
	ReasonMonthlyRefresh = "monthly_refresh"
	ReasonRefund         = "refund"
)

// LedgerEntry is one immutable credit movement. Delta is signed: negative
// for charges, positive for grants, zero for unmetered charges recorded
// for audit only. BalanceAfter snapshots the account balance the moment
// the entry was written, so consecutive entries chain:
// balance_after[n] = balance_after[n-1] + delta[n].
type LedgerEntry struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID    snowflake.ID      `gorm:"not null;index" json:"account_id"`
	Type         EntryType         `gorm:"not null" json:"type"`
	Category     string            `gorm:"not null" json:"category"`
	Delta        int64             `gorm:"not null" json:"delta"`
	BalanceAfter int64             `gorm:"not null" json:"balance_after"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
