package service

import (
	"context"
	"strings"

	"github.com/decksmith/decksmith/internal/generation/domain"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Plans  *plan.Resolver
	Ledger ledgerdomain.Service
	Runner domain.Runner
}

type Service struct {
	log    *zap.Logger
	plans  *plan.Resolver
	ledger ledgerdomain.Service
	runner domain.Runner
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("generation.service"),
		plans:  p.Plans,
		ledger: p.Ledger,
		runner: p.Runner,
	}
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return domain.GenerateResponse{}, domain.ErrInvalidCategory
	}

	snapshot, err := s.ledger.Balance(ctx, req.AccountID)
	if err != nil {
		return domain.GenerateResponse{}, err
	}

	if category == domain.CategoryGeneratePresentation {
		if req.CardCount <= 0 {
			return domain.GenerateResponse{}, domain.ErrInvalidCardCount
		}
		maxCards, err := s.plans.MaxCards(snapshot.Tier)
		if err != nil {
			return domain.GenerateResponse{}, err
		}
		if req.CardCount > maxCards {
			return domain.GenerateResponse{}, domain.ErrQuotaExceeded
		}
	}

	metadata := map[string]any{}
	if req.CardCount > 0 {
		metadata["card_count"] = req.CardCount
	}

	receipt, err := s.ledger.Charge(ctx, ledgerdomain.ChargeRequest{
		AccountID: req.AccountID,
		Cost:      domain.Cost(category),
		Category:  category,
		Metadata:  metadata,
	})
	if err != nil {
		return domain.GenerateResponse{}, err
	}

	result, err := s.runner.Run(ctx, domain.RunRequest{
		AccountID: req.AccountID,
		Category:  category,
		CardCount: req.CardCount,
		Prompt:    req.Prompt,
		Options:   req.Options,
	})
	if err != nil {
		s.refund(ctx, req.AccountID, receipt)
		return domain.GenerateResponse{}, err
	}

	return domain.GenerateResponse{Receipt: receipt, Result: result}, nil
}

// refund returns the charged credits when the runner fails after payment.
// Unmetered charges moved no balance, so there is nothing to return.
func (s *Service) refund(ctx context.Context, accountID string, receipt ledgerdomain.Receipt) {
	if receipt.Charged <= 0 {
		return
	}
	_, err := s.ledger.Credit(ctx, ledgerdomain.CreditRequest{
		AccountID: accountID,
		Amount:    receipt.Charged,
		Reason:    ledgerdomain.ReasonRefund,
		Metadata:  map[string]any{"refunded_entry_id": receipt.EntryID.String()},
	})
	if err != nil {
		s.log.Error("refund failed after runner error",
			zap.String("account_id", accountID),
			zap.String("entry_id", receipt.EntryID.String()),
			zap.Int64("amount", receipt.Charged),
			zap.Error(err),
		)
	}
}
