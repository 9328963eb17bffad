package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *BillingEvent) error
	FindByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*BillingEvent, error)
}
