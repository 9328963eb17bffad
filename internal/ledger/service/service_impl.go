package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/decksmith/decksmith/internal/account/domain"
	"github.com/decksmith/decksmith/internal/clock"
	"github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/observability/metrics"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/decksmith/decksmith/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Plans    *plan.Resolver
	Accounts accountdomain.Repository
	Entries  domain.Repository
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	plans    *plan.Resolver
	accounts accountdomain.Repository
	entries  domain.Repository
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ledger.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		plans:    p.Plans,
		accounts: p.Accounts,
		entries:  p.Entries,
		metrics:  p.Metrics,
	}
}

func (s *Service) Charge(ctx context.Context, req domain.ChargeRequest) (domain.Receipt, error) {
	id, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.Receipt{}, err
	}
	// Zero-cost operations are billable no-ops: they record an audit
	// entry without moving the balance.
	if req.Cost < 0 {
		return domain.Receipt{}, domain.ErrInvalidCost
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "other"
	}

	var receipt domain.Receipt
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		if !account.Active {
			return domain.ErrAccountInactive
		}

		ent, err := s.plans.Resolve(account.Tier)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		entry := domain.LedgerEntry{
			ID:        s.genID.Generate(),
			AccountID: account.ID,
			Type:      domain.EntryCharge,
			Category:  category,
			Metadata:  toJSONMap(req.Metadata),
			CreatedAt: now,
		}

		if ent.Allotment.IsUnmetered() {
			// Paid tiers are not balance-checked. Usage is still recorded:
			// the entry carries the nominal cost in metadata with a zero
			// delta so the balance_after chain stays intact.
			account.CreditsUsed += req.Cost
			entry.Delta = 0
			entry.BalanceAfter = account.CreditsRemaining
			entry.Metadata["unmetered"] = true
			entry.Metadata["nominal_cost"] = req.Cost
		} else {
			if account.CreditsRemaining < req.Cost {
				return domain.ErrInsufficientCredits
			}
			account.CreditsRemaining -= req.Cost
			account.CreditsUsed += req.Cost
			entry.Delta = -req.Cost
			entry.BalanceAfter = account.CreditsRemaining
		}

		if err := s.accounts.UpdateBalance(ctx, tx, account.ID, accountdomain.BalanceUpdate{
			CreditsRemaining: account.CreditsRemaining,
			CreditsUsed:      account.CreditsUsed,
			CreditsResetAt:   account.CreditsResetAt,
			UpdatedAt:        now,
		}); err != nil {
			return err
		}
		if err := s.entries.Insert(ctx, tx, &entry); err != nil {
			return err
		}

		receipt = domain.Receipt{
			EntryID:      entry.ID,
			AccountID:    account.ID,
			Cost:         req.Cost,
			Charged:      -entry.Delta,
			Unmetered:    ent.Allotment.IsUnmetered(),
			BalanceAfter: entry.BalanceAfter,
			CreatedAt:    now,
		}
		return nil
	})
	s.recordCharge(ctx, category, err, receipt.Unmetered)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

func (s *Service) Credit(ctx context.Context, req domain.CreditRequest) (domain.Receipt, error) {
	id, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if req.Amount <= 0 {
		return domain.Receipt{}, domain.ErrInvalidAmount
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Receipt{}, domain.ErrInvalidReason
	}

	var receipt domain.Receipt
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}

		now := s.clock.Now().UTC()
		account.CreditsRemaining += req.Amount
		entry := domain.LedgerEntry{
			ID:           s.genID.Generate(),
			AccountID:    account.ID,
			Type:         domain.EntryCredit,
			Category:     reason,
			Delta:        req.Amount,
			BalanceAfter: account.CreditsRemaining,
			Metadata:     toJSONMap(req.Metadata),
			CreatedAt:    now,
		}

		if err := s.accounts.UpdateBalance(ctx, tx, account.ID, accountdomain.BalanceUpdate{
			CreditsRemaining: account.CreditsRemaining,
			CreditsUsed:      account.CreditsUsed,
			CreditsResetAt:   account.CreditsResetAt,
			UpdatedAt:        now,
		}); err != nil {
			return err
		}
		if err := s.entries.Insert(ctx, tx, &entry); err != nil {
			return err
		}

		receipt = domain.Receipt{
			EntryID:      entry.ID,
			AccountID:    account.ID,
			Cost:         req.Amount,
			Charged:      -req.Amount,
			BalanceAfter: entry.BalanceAfter,
			CreatedAt:    now,
		}
		return nil
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordGrant(ctx, reason)
	}
	return receipt, nil
}

func (s *Service) ResetMonthly(ctx context.Context, accountID string) (bool, error) {
	id, err := s.parseID(accountID)
	if err != nil {
		return false, err
	}

	applied := false
	var tier plan.Tier
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.FindByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		applied, err = s.applyReset(ctx, tx, account)
		tier = account.Tier
		return err
	})
	if err != nil {
		return false, err
	}
	if applied && s.metrics != nil {
		s.metrics.RecordReset(ctx, tier.String())
	}
	return applied, nil
}

func (s *Service) ResetDue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	var tiers []plan.Tier
	for _, ent := range s.plans.Entitlements() {
		if ent.Allotment.MonthlyCredits() > 0 {
			tiers = append(tiers, ent.Tier)
		}
	}

	now := s.clock.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	count := 0
	var resetTiers []plan.Tier
	err := s.db.Transaction(func(tx *gorm.DB) error {
		accounts, err := s.accounts.FindDueForReset(ctx, tx, tiers, periodStart, batchSize)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			applied, err := s.applyReset(ctx, tx, account)
			if err != nil {
				return err
			}
			if applied {
				count++
				resetTiers = append(resetTiers, account.Tier)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		for _, tier := range resetTiers {
			s.metrics.RecordReset(ctx, tier.String())
		}
	}
	return count, nil
}

// applyReset refreshes one locked account row to its tier's monthly
// allotment. No-op for tiers without an allotment and for accounts
// already reset this period.
func (s *Service) applyReset(ctx context.Context, tx *gorm.DB, account *accountdomain.Account) (bool, error) {
	ent, err := s.plans.Resolve(account.Tier)
	if err != nil {
		return false, err
	}
	monthly := ent.Allotment.MonthlyCredits()
	if monthly == 0 {
		// Tiers without a monthly allotment (free) never refresh.
		return false, nil
	}

	now := s.clock.Now().UTC()
	if account.CreditsResetAt != nil && samePeriod(*account.CreditsResetAt, now) {
		return false, nil
	}

	entry := domain.LedgerEntry{
		ID:           s.genID.Generate(),
		AccountID:    account.ID,
		Type:         domain.EntryReset,
		Category:     domain.ReasonMonthlyRefresh,
		Delta:        monthly - account.CreditsRemaining,
		BalanceAfter: monthly,
		Metadata: datatypes.JSONMap{
			"tier":             account.Tier.String(),
			"previous_balance": account.CreditsRemaining,
		},
		CreatedAt: now,
	}

	// CreditsUsed is a lifetime counter; the refresh only touches the
	// balance and the reset stamp.
	if err := s.accounts.UpdateBalance(ctx, tx, account.ID, accountdomain.BalanceUpdate{
		CreditsRemaining: monthly,
		CreditsUsed:      account.CreditsUsed,
		CreditsResetAt:   &now,
		UpdatedAt:        now,
	}); err != nil {
		return false, err
	}
	if err := s.entries.Insert(ctx, tx, &entry); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Balance(ctx context.Context, accountID string) (domain.BalanceSnapshot, error) {
	id, err := s.parseID(accountID)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}

	account, err := s.accounts.FindByID(ctx, s.db, id, false)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	if account == nil {
		return domain.BalanceSnapshot{}, domain.ErrAccountNotFound
	}

	ent, err := s.plans.Resolve(account.Tier)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}

	return domain.BalanceSnapshot{
		AccountID:        account.ID,
		Tier:             account.Tier,
		CreditsRemaining: account.CreditsRemaining,
		CreditsUsed:      account.CreditsUsed,
		Unmetered:        ent.Allotment.IsUnmetered(),
		MonthlyCredits:   ent.Allotment.MonthlyCredits(),
		CreditsResetAt:   account.CreditsResetAt,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListEntriesRequest) (domain.ListEntriesResponse, error) {
	id, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.ListEntriesResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.entries.ListByAccount(ctx, s.db, id, domain.ListEntryFilter{
		Type:     domain.EntryType(strings.TrimSpace(req.Type)),
		Category: strings.TrimSpace(req.Category),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(entry *domain.LedgerEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	entries := make([]domain.LedgerEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	return domain.ListEntriesResponse{
		NextPageToken: pageInfo.NextPageToken,
		HasMore:       pageInfo.HasMore,
		Entries:       entries,
	}, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func (s *Service) recordCharge(ctx context.Context, category string, err error, unmetered bool) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil && unmetered:
		outcome = "unmetered"
	case err == domain.ErrInsufficientCredits:
		outcome = "insufficient_credits"
	case err != nil:
		outcome = "error"
	}
	s.metrics.RecordCharge(ctx, category, outcome)
}

func samePeriod(last, now time.Time) bool {
	last, now = last.UTC(), now.UTC()
	return last.Year() == now.Year() && last.Month() == now.Month()
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
