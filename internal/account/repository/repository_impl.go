package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/account/domain"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/decksmith/decksmith/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, email, name, tier, credits_remaining, credits_used, credits_reset_at, active, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.Name,
		account.Tier,
		account.CreditsRemaining,
		account.CreditsUsed,
		account.CreditsResetAt,
		account.Active,
		account.Metadata,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Account, error) {
	query := `SELECT id, email, name, tier, credits_remaining, credits_used, credits_reset_at, active, metadata, created_at, updated_at
	 FROM accounts WHERE id = ?`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var account domain.Account
	err := db.WithContext(ctx).Raw(query, id).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, tier, credits_remaining, credits_used, credits_reset_at, active, metadata, created_at, updated_at
		 FROM accounts WHERE email = ?`,
		email,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListAccountFilter, page pagination.Pagination) ([]*domain.Account, error) {
	var accounts []*domain.Account
	stmt := db.WithContext(ctx).Model(&domain.Account{})
	if filter.Tier != "" {
		stmt = stmt.Where("tier = ?", filter.Tier)
	}
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	if page.PageSize > 0 {
		stmt = stmt.Limit(page.PageSize + 1)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) FindDueForReset(ctx context.Context, db *gorm.DB, tiers []plan.Tier, periodStart time.Time, limit int) ([]*domain.Account, error) {
	if len(tiers) == 0 {
		return nil, nil
	}
	query := `SELECT id, email, name, tier, credits_remaining, credits_used, credits_reset_at, active, metadata, created_at, updated_at
	 FROM accounts
	 WHERE active = ? AND tier IN ?
	   AND (credits_reset_at IS NULL OR credits_reset_at < ?)
	 ORDER BY id
	 LIMIT ?`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE SKIP LOCKED"
	}

	var accounts []*domain.Account
	err := db.WithContext(ctx).Raw(query, true, tiers, periodStart, limit).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.BalanceUpdate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credits_remaining = ?, credits_used = ?, credits_reset_at = ?, updated_at = ?
		 WHERE id = ?`,
		update.CreditsRemaining,
		update.CreditsUsed,
		update.CreditsResetAt,
		update.UpdatedAt,
		id,
	).Error
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier plan.Tier, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET tier = ?, updated_at = ? WHERE id = ?`,
		tier,
		updatedAt,
		id,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET active = ?, updated_at = ? WHERE id = ?`,
		active,
		updatedAt,
		id,
	).Error
}
