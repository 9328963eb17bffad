package migration

import (
	accountdomain "github.com/decksmith/decksmith/internal/account/domain"
	billingeventdomain "github.com/decksmith/decksmith/internal/billingevent/domain"
	"github.com/decksmith/decksmith/internal/config"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned migrations are written for PostgreSQL. MySQL and
		// SQLite deployments are dev/test setups; the gorm schema covers
		// them.
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := conn.AutoMigrate(
				&accountdomain.Account{},
				&ledgerdomain.LedgerEntry{},
				&billingeventdomain.BillingEvent{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemoAccount && !cfg.IsProduction() {
			return seed.EnsureDemoAccount(conn)
		}
		return nil
	}),
)
