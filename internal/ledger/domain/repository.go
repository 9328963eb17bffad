package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListEntryFilter struct {
	Type     EntryType
	Category string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter ListEntryFilter, page pagination.Pagination) ([]*LedgerEntry, error)
	// SumDeltas totals the signed deltas of an account's entries. Audit
	// support: signup grant plus all deltas must equal the live balance.
	SumDeltas(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
}
