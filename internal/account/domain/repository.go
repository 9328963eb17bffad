package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/decksmith/decksmith/pkg/db/pagination"
	"gorm.io/gorm"
)

// BalanceUpdate is the writable credit state of an account row. Callers
// mutate it only while holding the row lock taken by FindByID with
// forUpdate set.
type BalanceUpdate struct {
	CreditsRemaining int64
	CreditsUsed      int64
	CreditsResetAt   *time.Time
	UpdatedAt        time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Account, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Account, error)
	List(ctx context.Context, db *gorm.DB, filter ListAccountFilter, page pagination.Pagination) ([]*Account, error)
	// FindDueForReset claims active accounts on the given tiers whose
	// last reset predates the period start, locking the rows with SKIP
	// LOCKED so concurrent workers pick disjoint batches.
	FindDueForReset(ctx context.Context, db *gorm.DB, tiers []plan.Tier, periodStart time.Time, limit int) ([]*Account, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, update BalanceUpdate) error
	UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier plan.Tier, updatedAt time.Time) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, updatedAt time.Time) error
}
