package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/generation/domain"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/plan"
	"go.uber.org/zap"
)

// ledgerStub records charge and credit calls without a database.
type ledgerStub struct {
	mu        sync.Mutex
	tier      plan.Tier
	chargeErr error
	charges   []ledgerdomain.ChargeRequest
	credits   []ledgerdomain.CreditRequest
	receipt   ledgerdomain.Receipt
}

func (s *ledgerStub) Charge(_ context.Context, req ledgerdomain.ChargeRequest) (ledgerdomain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chargeErr != nil {
		return ledgerdomain.Receipt{}, s.chargeErr
	}
	s.charges = append(s.charges, req)
	return s.receipt, nil
}

func (s *ledgerStub) Credit(_ context.Context, req ledgerdomain.CreditRequest) (ledgerdomain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits = append(s.credits, req)
	return ledgerdomain.Receipt{}, nil
}

func (s *ledgerStub) ResetMonthly(context.Context, string) (bool, error) { return false, nil }

func (s *ledgerStub) ResetDue(context.Context, int) (int, error) { return 0, nil }

func (s *ledgerStub) Balance(_ context.Context, accountID string) (ledgerdomain.BalanceSnapshot, error) {
	id, _ := snowflake.ParseString(accountID)
	return ledgerdomain.BalanceSnapshot{AccountID: id, Tier: s.tier}, nil
}

func (s *ledgerStub) List(context.Context, ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	return ledgerdomain.ListEntriesResponse{}, nil
}

type runnerStub struct {
	err    error
	result domain.RunResult
}

func (r *runnerStub) Run(context.Context, domain.RunRequest) (domain.RunResult, error) {
	if r.err != nil {
		return domain.RunResult{}, r.err
	}
	return r.result, nil
}

func newGenerationService(ledger *ledgerStub, runner *runnerStub) domain.Service {
	return New(Params{
		Log:    zap.NewNop(),
		Plans:  plan.NewResolver(),
		Ledger: ledger,
		Runner: runner,
	})
}

func TestGenerateChargesCategoryCost(t *testing.T) {
	ledger := &ledgerStub{tier: plan.TierFree, receipt: ledgerdomain.Receipt{Charged: 40, BalanceAfter: 360}}
	runner := &runnerStub{result: domain.RunResult{Cards: 8}}
	service := newGenerationService(ledger, runner)

	resp, err := service.Generate(context.Background(), domain.GenerateRequest{
		AccountID: "1",
		Category:  domain.CategoryGeneratePresentation,
		CardCount: 8,
		Prompt:    "quarterly review",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Receipt.Charged != 40 {
		t.Fatalf("charged: got %d, want 40", resp.Receipt.Charged)
	}
	if len(ledger.charges) != 1 {
		t.Fatalf("charge calls: got %d, want 1", len(ledger.charges))
	}
	if ledger.charges[0].Cost != 40 {
		t.Fatalf("presentation cost: got %d, want 40", ledger.charges[0].Cost)
	}
	if ledger.charges[0].Metadata["card_count"] != 8 {
		t.Fatalf("card count not forwarded: %+v", ledger.charges[0].Metadata)
	}
}

func TestGenerateCardQuota(t *testing.T) {
	ledger := &ledgerStub{tier: plan.TierFree}
	service := newGenerationService(ledger, &runnerStub{})
	ctx := context.Background()

	// Free tier tops out at 10 cards per generation.
	_, err := service.Generate(ctx, domain.GenerateRequest{
		AccountID: "1",
		Category:  domain.CategoryGeneratePresentation,
		CardCount: 11,
	})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("over quota: want ErrQuotaExceeded, got %v", err)
	}
	if len(ledger.charges) != 0 {
		t.Fatal("quota rejection must not charge")
	}

	_, err = service.Generate(ctx, domain.GenerateRequest{
		AccountID: "1",
		Category:  domain.CategoryGeneratePresentation,
		CardCount: 0,
	})
	if !errors.Is(err, domain.ErrInvalidCardCount) {
		t.Fatalf("zero cards: want ErrInvalidCardCount, got %v", err)
	}
}

func TestGenerateQuotaScalesWithTier(t *testing.T) {
	ledger := &ledgerStub{tier: plan.TierPro, receipt: ledgerdomain.Receipt{Unmetered: true}}
	service := newGenerationService(ledger, &runnerStub{})

	_, err := service.Generate(context.Background(), domain.GenerateRequest{
		AccountID: "1",
		Category:  domain.CategoryGeneratePresentation,
		CardCount: 60,
	})
	if err != nil {
		t.Fatalf("60 cards on pro must pass: %v", err)
	}
}

func TestGenerateRefundsOnRunnerFailure(t *testing.T) {
	ledger := &ledgerStub{
		tier:    plan.TierFree,
		receipt: ledgerdomain.Receipt{EntryID: snowflake.ID(42), Charged: 15},
	}
	runner := &runnerStub{err: errors.New("backend unavailable")}
	service := newGenerationService(ledger, runner)

	_, err := service.Generate(context.Background(), domain.GenerateRequest{
		AccountID: "1",
		Category:  domain.CategoryMagicDesign,
	})
	if err == nil {
		t.Fatal("runner failure must surface")
	}
	if len(ledger.credits) != 1 {
		t.Fatalf("refund calls: got %d, want 1", len(ledger.credits))
	}
	refund := ledger.credits[0]
	if refund.Amount != 15 || refund.Reason != ledgerdomain.ReasonRefund {
		t.Fatalf("unexpected refund: %+v", refund)
	}
}

func TestGenerateNoRefundForUnmetered(t *testing.T) {
	ledger := &ledgerStub{
		tier:    plan.TierPro,
		receipt: ledgerdomain.Receipt{Charged: 0, Unmetered: true},
	}
	runner := &runnerStub{err: errors.New("backend unavailable")}
	service := newGenerationService(ledger, runner)

	_, err := service.Generate(context.Background(), domain.GenerateRequest{
		AccountID: "1",
		Category:  domain.CategoryRewriteText,
	})
	if err == nil {
		t.Fatal("runner failure must surface")
	}
	if len(ledger.credits) != 0 {
		t.Fatalf("unmetered charge refunded: %+v", ledger.credits)
	}
}

func TestGenerateInsufficientCreditsPassThrough(t *testing.T) {
	ledger := &ledgerStub{tier: plan.TierFree, chargeErr: ledgerdomain.ErrInsufficientCredits}
	service := newGenerationService(ledger, &runnerStub{})

	_, err := service.Generate(context.Background(), domain.GenerateRequest{
		AccountID: "1",
		Category:  domain.CategoryTranslate,
	})
	if !errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
		t.Fatalf("want ErrInsufficientCredits, got %v", err)
	}
}

func TestDefaultCategoryCost(t *testing.T) {
	if got := domain.Cost("something_new"); got != domain.DefaultCost {
		t.Fatalf("unknown category cost: got %d, want %d", got, domain.DefaultCost)
	}
	if got := domain.Cost(domain.CategoryGenerateImage); got != 10 {
		t.Fatalf("image cost: got %d, want 10", got)
	}
}
