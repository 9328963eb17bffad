package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/plan"
)

// Event types accepted from the billing provider.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
)

type ApplyEventRequest struct {
	EventType string
	AccountID string
	// Tier is the target tier for created/updated events. Canceled events
	// ignore it and fall back to the free tier.
	Tier      string
	DedupeKey string
	Payload   map[string]any
}

type ApplyEventResponse struct {
	EventID snowflake.ID `json:"event_id"`
	Applied bool         `json:"applied"`
	Tier    plan.Tier    `json:"tier"`
	Balance int64        `json:"balance"`
}

type Service interface {
	// Apply moves an account to the tier named by a billing event and
	// tops the balance up to the new tier's monthly allotment. Moving to
	// the free tier keeps whatever balance remains. Redelivery of an
	// already-applied event is a successful no-op.
	Apply(context.Context, ApplyEventRequest) (ApplyEventResponse, error)
}

var (
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidTier      = errors.New("invalid_tier")
	ErrAccountNotFound  = errors.New("account_not_found")
)
