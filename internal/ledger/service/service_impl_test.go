package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/decksmith/decksmith/internal/account/domain"
	accountrepo "github.com/decksmith/decksmith/internal/account/repository"
	"github.com/decksmith/decksmith/internal/clock"
	"github.com/decksmith/decksmith/internal/ledger/domain"
	ledgerrepo "github.com/decksmith/decksmith/internal/ledger/repository"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupLedgerService(t *testing.T, node *snowflake.Node, clk clock.Clock) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareCreditSchema(t, db)

	service := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Plans:    plan.NewResolver(),
		Accounts: accountrepo.Provide(),
		Entries:  ledgerrepo.Provide(),
	})

	return service, db
}

func prepareCreditSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE accounts (
			id INTEGER PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT 'free',
			credits_remaining INTEGER NOT NULL DEFAULT 0,
			credits_used INTEGER NOT NULL DEFAULT 0,
			credits_reset_at DATETIME,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE ledger_entries (
			id INTEGER PRIMARY KEY,
			account_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			category TEXT NOT NULL,
			delta INTEGER NOT NULL,
			balance_after INTEGER NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
}

func seedAccount(t *testing.T, db *gorm.DB, node *snowflake.Node, tier plan.Tier, balance, used int64, resetAt *time.Time) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO accounts (id, email, name, tier, credits_remaining, credits_used, credits_reset_at, active, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fmt.Sprintf("%s@example.com", id), "Test", tier, balance, used, resetAt, true, datatypes.JSONMap{}, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func fetchAccount(t *testing.T, db *gorm.DB, id snowflake.ID) accountdomain.Account {
	t.Helper()
	var account accountdomain.Account
	if err := db.Raw(`SELECT * FROM accounts WHERE id = ?`, id).Scan(&account).Error; err != nil {
		t.Fatalf("fetch account: %v", err)
	}
	return account
}

func countEntries(t *testing.T, db *gorm.DB, accountID snowflake.ID, entryType domain.EntryType) int64 {
	t.Helper()
	var count int64
	err := db.Raw(
		`SELECT COUNT(*) FROM ledger_entries WHERE account_id = ? AND type = ?`,
		accountID, entryType,
	).Scan(&count).Error
	if err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return count
}

func TestChargeDecrementsBalance(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierFree, 400, 0, nil)

	receipt, err := service.Charge(context.Background(), domain.ChargeRequest{
		AccountID: accountID.String(),
		Cost:      40,
		Category:  "generate_presentation",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if receipt.Charged != 40 || receipt.BalanceAfter != 360 || receipt.Unmetered {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	account := fetchAccount(t, db, accountID)
	if account.CreditsRemaining != 360 {
		t.Fatalf("balance: got %d, want 360", account.CreditsRemaining)
	}
	if account.CreditsUsed != 40 {
		t.Fatalf("used: got %d, want 40", account.CreditsUsed)
	}
	if got := countEntries(t, db, accountID, domain.EntryCharge); got != 1 {
		t.Fatalf("charge entries: got %d, want 1", got)
	}
}

func TestChargeInsufficientCredits(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierFree, 10, 0, nil)

	ctx := context.Background()
	req := domain.ChargeRequest{AccountID: accountID.String(), Cost: 4, Category: "rewrite_text"}

	for i := 0; i < 2; i++ {
		if _, err := service.Charge(ctx, req); err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
	}

	_, err := service.Charge(ctx, req)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("want ErrInsufficientCredits, got %v", err)
	}

	account := fetchAccount(t, db, accountID)
	if account.CreditsRemaining != 2 {
		t.Fatalf("balance after failed charge: got %d, want 2", account.CreditsRemaining)
	}
	if got := countEntries(t, db, accountID, domain.EntryCharge); got != 2 {
		t.Fatalf("charge entries: got %d, want 2 (failed charge must not persist)", got)
	}
}

func TestChargeUnmeteredBypass(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierPro, 0, 0, nil)

	receipt, err := service.Charge(context.Background(), domain.ChargeRequest{
		AccountID: accountID.String(),
		Cost:      100,
		Category:  "generate_presentation",
	})
	if err != nil {
		t.Fatalf("charge on zero balance must succeed for pro tier: %v", err)
	}
	if !receipt.Unmetered {
		t.Fatal("receipt must be unmetered")
	}
	if receipt.Charged != 0 || receipt.BalanceAfter != 0 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	account := fetchAccount(t, db, accountID)
	if account.CreditsRemaining != 0 {
		t.Fatalf("unmetered charge moved the balance: %d", account.CreditsRemaining)
	}
	if account.CreditsUsed != 100 {
		t.Fatalf("usage not recorded: got %d, want 100", account.CreditsUsed)
	}
	if got := countEntries(t, db, accountID, domain.EntryCharge); got != 1 {
		t.Fatalf("audit entry missing: got %d entries", got)
	}
}

func TestChargeValidation(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierFree, 100, 0, nil)
	ctx := context.Background()

	receipt, err := service.Charge(ctx, domain.ChargeRequest{AccountID: accountID.String(), Cost: 0, Category: "ai_suggestions"})
	if err != nil {
		t.Fatalf("zero cost is valid input: %v", err)
	}
	if receipt.Charged != 0 || receipt.BalanceAfter != 100 {
		t.Fatalf("zero-cost charge moved the balance: %+v", receipt)
	}
	if got := countEntries(t, db, accountID, domain.EntryCharge); got != 1 {
		t.Fatalf("zero-cost charge must still record an entry: got %d", got)
	}
	if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: accountID.String(), Cost: -5}); !errors.Is(err, domain.ErrInvalidCost) {
		t.Fatalf("negative cost: want ErrInvalidCost, got %v", err)
	}
	if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: "not-a-number", Cost: 5}); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("bad id: want ErrInvalidID, got %v", err)
	}
	if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: node.Generate().String(), Cost: 5}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("missing account: want ErrAccountNotFound, got %v", err)
	}

	if err := db.Exec(`UPDATE accounts SET active = ? WHERE id = ?`, false, accountID).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: accountID.String(), Cost: 5}); !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("inactive account: want ErrAccountInactive, got %v", err)
	}
}

func TestAccountingIdentity(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierFree, 0, 0, nil)
	ctx := context.Background()

	if _, err := service.Credit(ctx, domain.CreditRequest{AccountID: accountID.String(), Amount: 400, Reason: domain.ReasonSignupGrant}); err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: accountID.String(), Cost: 40, Category: "generate_presentation"}); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if _, err := service.Credit(ctx, domain.CreditRequest{AccountID: accountID.String(), Amount: 100, Reason: domain.ReasonManualGrant}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: accountID.String(), Cost: 5, Category: "translate"}); err != nil {
		t.Fatalf("charge: %v", err)
	}

	account := fetchAccount(t, db, accountID)
	if account.CreditsRemaining != 455 {
		t.Fatalf("balance: got %d, want 455", account.CreditsRemaining)
	}

	var sum int64
	if err := db.Raw(`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE account_id = ?`, accountID).Scan(&sum).Error; err != nil {
		t.Fatalf("sum deltas: %v", err)
	}
	if sum != account.CreditsRemaining {
		t.Fatalf("ledger out of balance: sum %d, balance %d", sum, account.CreditsRemaining)
	}
}

func TestConcurrentChargesExactQuota(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())

	const balance = 100
	const cost = 7
	const workers = 30
	accountID := seedAccount(t, db, node, plan.TierFree, balance, 0, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	failures := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Charge(context.Background(), domain.ChargeRequest{
				AccountID: accountID.String(),
				Cost:      cost,
				Category:  "smart_resize",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrInsufficientCredits):
				failures++
			default:
				t.Errorf("unexpected charge error: %v", err)
			}
		}()
	}
	wg.Wait()

	want := balance / cost
	if successes != want {
		t.Fatalf("successes: got %d, want exactly %d", successes, want)
	}
	if failures != workers-want {
		t.Fatalf("failures: got %d, want %d", failures, workers-want)
	}

	account := fetchAccount(t, db, accountID)
	if wantBalance := int64(balance - want*cost); account.CreditsRemaining != wantBalance {
		t.Fatalf("final balance: got %d, want %d", account.CreditsRemaining, wantBalance)
	}
	if account.CreditsRemaining < 0 {
		t.Fatal("balance went negative")
	}
}

func TestResetMonthlyIdempotent(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC))
	service, db := setupLedgerService(t, node, clk)
	accountID := seedAccount(t, db, node, plan.TierPlus, 123, 877, nil)
	ctx := context.Background()

	applied, err := service.ResetMonthly(ctx, accountID.String())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !applied {
		t.Fatal("first reset must apply")
	}

	account := fetchAccount(t, db, accountID)
	if account.CreditsRemaining != 1000 {
		t.Fatalf("balance: got %d, want 1000", account.CreditsRemaining)
	}
	if account.CreditsUsed != 877 {
		t.Fatalf("lifetime used counter after reset: got %d, want 877", account.CreditsUsed)
	}
	if account.CreditsResetAt == nil {
		t.Fatal("reset timestamp not set")
	}

	// Same month: no-op regardless of how often it runs.
	clk.Advance(72 * time.Hour)
	applied, err = service.ResetMonthly(ctx, accountID.String())
	if err != nil {
		t.Fatalf("repeat reset: %v", err)
	}
	if applied {
		t.Fatal("repeat reset in same month must be a no-op")
	}
	if got := countEntries(t, db, accountID, domain.EntryReset); got != 1 {
		t.Fatalf("reset entries: got %d, want 1", got)
	}

	// Usage between resets keeps accumulating across periods.
	if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: accountID.String(), Cost: 40, Category: "generate_presentation"}); err != nil {
		t.Fatalf("charge: %v", err)
	}

	// Next month: applies again.
	clk.Advance(31 * 24 * time.Hour)
	applied, err = service.ResetMonthly(ctx, accountID.String())
	if err != nil {
		t.Fatalf("next month reset: %v", err)
	}
	if !applied {
		t.Fatal("reset in new month must apply")
	}
	if got := countEntries(t, db, accountID, domain.EntryReset); got != 2 {
		t.Fatalf("reset entries: got %d, want 2", got)
	}

	account = fetchAccount(t, db, accountID)
	if account.CreditsUsed != 917 {
		t.Fatalf("lifetime used counter: got %d, want 917", account.CreditsUsed)
	}
}

func TestResetMonthlyFreeTierNoop(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierFree, 250, 150, nil)

	applied, err := service.ResetMonthly(context.Background(), accountID.String())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if applied {
		t.Fatal("free tier must not refresh")
	}

	account := fetchAccount(t, db, accountID)
	if account.CreditsRemaining != 250 {
		t.Fatalf("free balance changed: got %d, want 250", account.CreditsRemaining)
	}
}

func TestResetDueBatch(t *testing.T) {
	node := mustNode(t)
	now := time.Date(2026, time.April, 2, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	service, db := setupLedgerService(t, node, clk)

	lastMonth := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	thisMonth := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	due1 := seedAccount(t, db, node, plan.TierPlus, 10, 0, &lastMonth)
	due2 := seedAccount(t, db, node, plan.TierPro, 0, 500, nil)
	fresh := seedAccount(t, db, node, plan.TierTeam, 2000, 0, &thisMonth)
	free := seedAccount(t, db, node, plan.TierFree, 300, 0, nil)

	count, err := service.ResetDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("reset due: %v", err)
	}
	if count != 2 {
		t.Fatalf("reset count: got %d, want 2", count)
	}

	if got := fetchAccount(t, db, due1).CreditsRemaining; got != 1000 {
		t.Fatalf("plus balance: got %d, want 1000", got)
	}
	pro := fetchAccount(t, db, due2)
	if pro.CreditsRemaining != 4000 {
		t.Fatalf("pro balance: got %d, want 4000", pro.CreditsRemaining)
	}
	if pro.CreditsUsed != 500 {
		t.Fatalf("pro lifetime used counter: got %d, want 500", pro.CreditsUsed)
	}
	if got := fetchAccount(t, db, fresh).CreditsRemaining; got != 2000 {
		t.Fatalf("already-reset balance changed: got %d", got)
	}
	if got := fetchAccount(t, db, free).CreditsRemaining; got != 300 {
		t.Fatalf("free balance changed: got %d", got)
	}

	// Second sweep in the same period finds nothing.
	count, err = service.ResetDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep reset %d accounts, want 0", count)
	}
}

func TestCreditValidation(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierFree, 50, 0, nil)
	ctx := context.Background()

	if _, err := service.Credit(ctx, domain.CreditRequest{AccountID: accountID.String(), Amount: 0, Reason: "x"}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("zero amount: want ErrInvalidAmount, got %v", err)
	}
	if _, err := service.Credit(ctx, domain.CreditRequest{AccountID: accountID.String(), Amount: 10, Reason: "  "}); !errors.Is(err, domain.ErrInvalidReason) {
		t.Fatalf("blank reason: want ErrInvalidReason, got %v", err)
	}

	receipt, err := service.Credit(ctx, domain.CreditRequest{AccountID: accountID.String(), Amount: 25, Reason: domain.ReasonManualGrant})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if receipt.BalanceAfter != 75 {
		t.Fatalf("balance after grant: got %d, want 75", receipt.BalanceAfter)
	}
}

func TestBalanceSnapshot(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierUltra, 20000, 37, nil)

	snapshot, err := service.Balance(context.Background(), accountID.String())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if snapshot.Tier != plan.TierUltra || !snapshot.Unmetered {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.MonthlyCredits != 20000 {
		t.Fatalf("monthly credits: got %d, want 20000", snapshot.MonthlyCredits)
	}
	if snapshot.CreditsUsed != 37 {
		t.Fatalf("used: got %d, want 37", snapshot.CreditsUsed)
	}
}

func TestListEntries(t *testing.T) {
	node := mustNode(t)
	service, db := setupLedgerService(t, node, clock.NewSystemClock())
	accountID := seedAccount(t, db, node, plan.TierFree, 400, 0, nil)
	ctx := context.Background()

	for _, category := range []string{"translate", "rewrite_text", "ai_suggestions"} {
		if _, err := service.Charge(ctx, domain.ChargeRequest{AccountID: accountID.String(), Cost: 2, Category: category}); err != nil {
			t.Fatalf("charge %s: %v", category, err)
		}
	}

	resp, err := service.List(ctx, domain.ListEntriesRequest{AccountID: accountID.String(), PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("page size: got %d entries, want 2", len(resp.Entries))
	}
	if !resp.HasMore {
		t.Fatal("expected more pages")
	}
	if resp.NextPageToken == "" {
		t.Fatal("missing next page token")
	}

	filtered, err := service.List(ctx, domain.ListEntriesRequest{AccountID: accountID.String(), Category: "translate"})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered.Entries) != 1 {
		t.Fatalf("category filter: got %d entries, want 1", len(filtered.Entries))
	}
}
