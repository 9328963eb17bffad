// Package seed provisions a demo account for local development so the API
// is exercisable immediately after startup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/decksmith/decksmith/internal/account/domain"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/plan"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	demoEmail = "demo@decksmith.local"
	demoName  = "Demo Account"
)

// EnsureDemoAccount creates the demo free-tier account with its signup
// grant if it does not exist yet. Idempotent across restarts.
func EnsureDemoAccount(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ent, err := plan.NewResolver().Resolve(plan.TierFree)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&accountdomain.Account{}).
			Where("email = ?", demoEmail).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		account := accountdomain.Account{
			ID:               node.Generate(),
			Email:            demoEmail,
			Name:             demoName,
			Tier:             plan.TierFree,
			CreditsRemaining: ent.SignupGrantCredits,
			Active:           true,
			Metadata:         datatypes.JSONMap{"seeded": true},
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Create(&account).Error; err != nil {
			return err
		}

		return tx.Create(&ledgerdomain.LedgerEntry{
			ID:           node.Generate(),
			AccountID:    account.ID,
			Type:         ledgerdomain.EntryCredit,
			Category:     ledgerdomain.ReasonSignupGrant,
			Delta:        ent.SignupGrantCredits,
			BalanceAfter: account.CreditsRemaining,
			Metadata:     datatypes.JSONMap{"seeded": true},
			CreatedAt:    now,
		}).Error
	})
}
