package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/decksmith/decksmith/internal/account/domain"
	"github.com/decksmith/decksmith/internal/billingevent/domain"
	"github.com/decksmith/decksmith/internal/clock"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/observability/metrics"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/decksmith/decksmith/pkg/db"
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
	Entries  ledgerdomain.Repository
	Events   domain.Repository
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	plans    *plan.Resolver
	accounts accountdomain.Repository
	entries  ledgerdomain.Repository
	events   domain.Repository
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billingevent.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		plans:    p.Plans,
		accounts: p.Accounts,
		entries:  p.Entries,
		events:   p.Events,
		metrics:  p.Metrics,
	}
}

func (s *Service) Apply(ctx context.Context, req domain.ApplyEventRequest) (domain.ApplyEventResponse, error) {
	accountID, err := s.parseID(req.AccountID)
	if err != nil {
		return domain.ApplyEventResponse{}, err
	}

	var target plan.Tier
	switch req.EventType {
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated:
		target, err = plan.ParseTier(req.Tier)
		if err != nil {
			return domain.ApplyEventResponse{}, domain.ErrInvalidTier
		}
	case domain.EventSubscriptionCanceled:
		target = plan.TierFree
	default:
		return domain.ApplyEventResponse{}, domain.ErrInvalidEventType
	}

	ent, err := s.plans.Resolve(target)
	if err != nil {
		return domain.ApplyEventResponse{}, domain.ErrInvalidTier
	}

	dedupeKey := strings.TrimSpace(req.DedupeKey)
	if dedupeKey != "" {
		prior, err := s.events.FindByDedupeKey(ctx, s.db, dedupeKey)
		if err != nil {
			return domain.ApplyEventResponse{}, err
		}
		if prior != nil {
			return domain.ApplyEventResponse{EventID: prior.ID, Applied: false, Tier: target}, nil
		}
	}

	var resp domain.ApplyEventResponse
	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.FindByID(ctx, tx, accountID, true)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}

		now := s.clock.Now().UTC()
		event := domain.BillingEvent{
			ID:        s.genID.Generate(),
			AccountID: account.ID,
			EventType: req.EventType,
			Payload:   toJSONMap(req.Payload),
			AppliedAt: now,
			CreatedAt: now,
		}
		if dedupeKey != "" {
			event.DedupeKey = &dedupeKey
		}
		if err := s.events.Insert(ctx, tx, &event); err != nil {
			// Concurrent redelivery lost the insert race. Treat it the
			// same as the pre-check hit.
			if db.IsDuplicateKeyErr(err) {
				resp = domain.ApplyEventResponse{Applied: false, Tier: target}
				return nil
			}
			return err
		}

		balance := account.CreditsRemaining
		if ent.Allotment.IsUnmetered() {
			// Paid tiers open a fresh period: the balance is topped up to
			// the new allotment and recorded as a grant.
			monthly := ent.Allotment.MonthlyCredits()
			entry := ledgerdomain.LedgerEntry{
				ID:           s.genID.Generate(),
				AccountID:    account.ID,
				Type:         ledgerdomain.EntryCredit,
				Category:     ledgerdomain.ReasonPlanChange,
				Delta:        monthly - balance,
				BalanceAfter: monthly,
				Metadata: datatypes.JSONMap{
					"from_tier": account.Tier.String(),
					"to_tier":   target.String(),
				},
				CreatedAt: now,
			}
			if err := s.entries.Insert(ctx, tx, &entry); err != nil {
				return err
			}
			balance = monthly
			if err := s.accounts.UpdateBalance(ctx, tx, account.ID, accountdomain.BalanceUpdate{
				CreditsRemaining: balance,
				CreditsUsed:      account.CreditsUsed,
				CreditsResetAt:   &now,
				UpdatedAt:        now,
			}); err != nil {
				return err
			}
		}
		// Moving to the free tier keeps the remaining balance; there is
		// no clawback on downgrade.

		if err := s.accounts.UpdateTier(ctx, tx, account.ID, target, now); err != nil {
			return err
		}

		resp = domain.ApplyEventResponse{
			EventID: event.ID,
			Applied: true,
			Tier:    target,
			Balance: balance,
		}
		return nil
	})
	if err != nil {
		return domain.ApplyEventResponse{}, err
	}

	if resp.Applied {
		if s.metrics != nil {
			s.metrics.RecordBillingEvent(ctx, req.EventType)
		}
		s.log.Info("billing event applied",
			zap.String("account_id", req.AccountID),
			zap.String("event_type", req.EventType),
			zap.String("tier", target.String()),
		)
	}
	return resp, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
