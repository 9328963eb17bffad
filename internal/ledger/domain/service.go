package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/plan"
)

type ChargeRequest struct {
	AccountID string
	Cost      int64
	Category  string
	Metadata  map[string]any
}

type CreditRequest struct {
	AccountID string
	Amount    int64
	Reason    string
	Metadata  map[string]any
}

// Receipt reports the outcome of a successful charge or credit. Charged is
// the actual balance movement, which is zero for unmetered charges even
// though Cost carries the nominal price.
type Receipt struct {
	EntryID      snowflake.ID `json:"entry_id"`
	AccountID    snowflake.ID `json:"account_id"`
	Cost         int64        `json:"cost"`
	Charged      int64        `json:"charged"`
	Unmetered    bool         `json:"unmetered"`
	BalanceAfter int64        `json:"balance_after"`
	CreatedAt    time.Time    `json:"created_at"`
}

type BalanceSnapshot struct {
	AccountID        snowflake.ID `json:"account_id"`
	Tier             plan.Tier    `json:"tier"`
	CreditsRemaining int64        `json:"credits_remaining"`
	CreditsUsed      int64        `json:"credits_used"`
	Unmetered        bool         `json:"unmetered"`
	MonthlyCredits   int64        `json:"monthly_credits"`
	CreditsResetAt   *time.Time   `json:"credits_reset_at,omitempty"`
}

type ListEntriesRequest struct {
	AccountID string
	PageToken string
	PageSize  int32
	Type      string
	Category  string
}

type ListEntriesResponse struct {
	NextPageToken string        `json:"next_page_token"`
	HasMore       bool          `json:"has_more"`
	Entries       []LedgerEntry `json:"entries"`
}

type Service interface {
	// Charge debits an account atomically: the balance check and the
	// decrement happen under a row lock, and the ledger entry commits in
	// the same transaction or not at all. Unmetered tiers skip the
	// balance check and record a zero-delta audit entry.
	Charge(context.Context, ChargeRequest) (Receipt, error)
	// Credit adds credits to an account and records the grant.
	Credit(context.Context, CreditRequest) (Receipt, error)
	// ResetMonthly refreshes the balance to the tier's monthly allotment.
	// It is idempotent within a calendar month and a no-op for tiers
	// without a monthly allotment. Returns whether a reset was applied.
	ResetMonthly(ctx context.Context, accountID string) (bool, error)
	// ResetDue applies the monthly reset to a batch of due accounts in
	// one transaction, claiming rows so concurrent workers pick disjoint
	// batches. Returns how many accounts were reset.
	ResetDue(ctx context.Context, batchSize int) (int, error)
	Balance(ctx context.Context, accountID string) (BalanceSnapshot, error)
	List(context.Context, ListEntriesRequest) (ListEntriesResponse, error)
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidCost         = errors.New("invalid_cost")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrAccountInactive     = errors.New("account_inactive")
	ErrInsufficientCredits = errors.New("insufficient_credits")
)
