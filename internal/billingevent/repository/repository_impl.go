package repository

import (
	"context"

	"github.com/decksmith/decksmith/internal/billingevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.BillingEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (id, account_id, event_type, payload, dedupe_key, applied_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AccountID,
		event.EventType,
		event.Payload,
		event.DedupeKey,
		event.AppliedAt,
		event.CreatedAt,
	).Error
}

func (r *repo) FindByDedupeKey(ctx context.Context, db *gorm.DB, key string) (*domain.BillingEvent, error) {
	var event domain.BillingEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, event_type, payload, dedupe_key, applied_at, created_at
		 FROM billing_events WHERE dedupe_key = ?`,
		key,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}
