package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	accountdomain "github.com/decksmith/decksmith/internal/account/domain"
	billingeventdomain "github.com/decksmith/decksmith/internal/billingevent/domain"
	"github.com/decksmith/decksmith/internal/config"
	generationdomain "github.com/decksmith/decksmith/internal/generation/domain"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/gin-gonic/gin"
)

type accountServiceStub struct {
	createResp accountdomain.Account
	createErr  error
	getResp    accountdomain.Account
	getErr     error
}

func (s *accountServiceStub) Create(context.Context, accountdomain.CreateAccountRequest) (accountdomain.Account, error) {
	return s.createResp, s.createErr
}

func (s *accountServiceStub) GetByID(context.Context, accountdomain.GetAccountRequest) (accountdomain.Account, error) {
	return s.getResp, s.getErr
}

func (s *accountServiceStub) GetByEmail(context.Context, string) (accountdomain.Account, error) {
	return s.getResp, s.getErr
}

func (s *accountServiceStub) List(context.Context, accountdomain.ListAccountRequest) (accountdomain.ListAccountResponse, error) {
	return accountdomain.ListAccountResponse{}, nil
}

func (s *accountServiceStub) Deactivate(context.Context, string) error { return s.getErr }

type ledgerServiceStub struct {
	chargeResp  ledgerdomain.Receipt
	chargeErr   error
	creditResp  ledgerdomain.Receipt
	creditErr   error
	resetResult bool
	balance     ledgerdomain.BalanceSnapshot
	balanceErr  error
}

func (s *ledgerServiceStub) Charge(context.Context, ledgerdomain.ChargeRequest) (ledgerdomain.Receipt, error) {
	return s.chargeResp, s.chargeErr
}

func (s *ledgerServiceStub) Credit(context.Context, ledgerdomain.CreditRequest) (ledgerdomain.Receipt, error) {
	return s.creditResp, s.creditErr
}

func (s *ledgerServiceStub) ResetMonthly(context.Context, string) (bool, error) {
	return s.resetResult, nil
}

func (s *ledgerServiceStub) ResetDue(context.Context, int) (int, error) { return 0, nil }

func (s *ledgerServiceStub) Balance(context.Context, string) (ledgerdomain.BalanceSnapshot, error) {
	return s.balance, s.balanceErr
}

func (s *ledgerServiceStub) List(context.Context, ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	return ledgerdomain.ListEntriesResponse{}, nil
}

type billingEventServiceStub struct {
	resp billingeventdomain.ApplyEventResponse
	err  error
}

func (s *billingEventServiceStub) Apply(context.Context, billingeventdomain.ApplyEventRequest) (billingeventdomain.ApplyEventResponse, error) {
	return s.resp, s.err
}

type generationServiceStub struct {
	resp generationdomain.GenerateResponse
	err  error
}

func (s *generationServiceStub) Generate(context.Context, generationdomain.GenerateRequest) (generationdomain.GenerateResponse, error) {
	return s.resp, s.err
}

type testServices struct {
	accounts   *accountServiceStub
	ledger     *ledgerServiceStub
	billing    *billingEventServiceStub
	generation *generationServiceStub
}

func newTestServer(t *testing.T) (*gin.Engine, *testServices) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	svcs := &testServices{
		accounts:   &accountServiceStub{},
		ledger:     &ledgerServiceStub{},
		billing:    &billingEventServiceStub{},
		generation: &generationServiceStub{},
	}

	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{},
		Plans:           plan.NewResolver(),
		AccountSvc:      svcs.accounts,
		LedgerSvc:       svcs.ledger,
		BillingEventSvc: svcs.billing,
		GenerationSvc:   svcs.generation,
	})

	return engine, svcs
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestCreateAccountCreated(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.accounts.createResp = accountdomain.Account{
		Email:            "ada@example.com",
		Name:             "Ada",
		Tier:             plan.TierFree,
		CreditsRemaining: 400,
	}

	w := doJSON(t, engine, http.MethodPost, "/api/accounts", gin.H{"email": "ada@example.com", "name": "Ada"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201: %s", w.Code, w.Body.String())
	}
}

func TestCreateAccountConflict(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.accounts.createErr = accountdomain.ErrEmailTaken

	w := doJSON(t, engine, http.MethodPost, "/api/accounts", gin.H{"email": "dup@example.com", "name": "Dup"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", w.Code)
	}
	if payload := decodeError(t, w); payload.Type != "conflict" {
		t.Fatalf("error type: %q", payload.Type)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.accounts.createErr = accountdomain.ErrInvalidEmail

	w := doJSON(t, engine, http.MethodPost, "/api/accounts", gin.H{"email": "nope", "name": "X"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	payload := decodeError(t, w)
	if payload.Type != "validation_error" {
		t.Fatalf("error type: %q", payload.Type)
	}
	if len(payload.Errors) != 1 || payload.Errors[0].Code != "invalid_email" {
		t.Fatalf("error detail: %+v", payload.Errors)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.accounts.getErr = accountdomain.ErrNotFound

	w := doJSON(t, engine, http.MethodGet, "/api/accounts/123", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
	if payload := decodeError(t, w); payload.Type != "not_found" {
		t.Fatalf("error type: %q", payload.Type)
	}
}

func TestChargeInsufficientCreditsMapsTo402(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.ledger.chargeErr = ledgerdomain.ErrInsufficientCredits

	w := doJSON(t, engine, http.MethodPost, "/api/accounts/123/credits/charge", gin.H{"cost": 40, "category": "generate_presentation"})
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status: got %d, want 402", w.Code)
	}
	if payload := decodeError(t, w); payload.Type != "insufficient_credits" {
		t.Fatalf("error type: %q", payload.Type)
	}
}

func TestChargeOK(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.ledger.chargeResp = ledgerdomain.Receipt{Charged: 40, BalanceAfter: 360}

	w := doJSON(t, engine, http.MethodPost, "/api/accounts/123/credits/charge", gin.H{"cost": 40, "category": "generate_presentation"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data ledgerdomain.Receipt `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.BalanceAfter != 360 {
		t.Fatalf("balance_after: got %d, want 360", resp.Data.BalanceAfter)
	}
}

func TestChargeInactiveAccountForbidden(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.ledger.chargeErr = ledgerdomain.ErrAccountInactive

	w := doJSON(t, engine, http.MethodPost, "/api/accounts/123/credits/charge", gin.H{"cost": 5})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", w.Code)
	}
	if payload := decodeError(t, w); payload.Type != "account_inactive" {
		t.Fatalf("error type: %q", payload.Type)
	}
}

func TestGenerateQuotaExceededMapsTo403(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.generation.err = generationdomain.ErrQuotaExceeded

	w := doJSON(t, engine, http.MethodPost, "/api/generate", gin.H{
		"account_id": "123",
		"category":   "generate_presentation",
		"card_count": 99,
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", w.Code)
	}
	if payload := decodeError(t, w); payload.Type != "quota_exceeded" {
		t.Fatalf("error type: %q", payload.Type)
	}
}

func TestGenerateInvalidCategory(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.generation.err = generationdomain.ErrInvalidCategory

	w := doJSON(t, engine, http.MethodPost, "/api/generate", gin.H{"account_id": "123"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
}

func TestResetCreditsReportsApplied(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.ledger.resetResult = true

	w := doJSON(t, engine, http.MethodPost, "/api/accounts/123/credits/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var resp struct {
		Data struct {
			Applied bool `json:"applied"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data.Applied {
		t.Fatal("applied flag missing")
	}
}

func TestGetPlanByTier(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doJSON(t, engine, http.MethodGet, "/api/plans/pro", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var resp struct {
		Data planView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Tier != plan.TierPro || !resp.Data.Unmetered || resp.Data.MonthlyCredits != 4000 {
		t.Fatalf("unexpected plan view: %+v", resp.Data)
	}
}

func TestGetPlanByTierUnknown(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doJSON(t, engine, http.MethodGet, "/api/plans/platinum", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	payload := decodeError(t, w)
	if len(payload.Errors) != 1 || payload.Errors[0].Code != "invalid_tier" {
		t.Fatalf("error detail: %+v", payload.Errors)
	}
}

func TestListPlansIncludesCosts(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doJSON(t, engine, http.MethodGet, "/api/plans", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}

	var resp struct {
		Data struct {
			Plans []planView       `json:"plans"`
			Costs map[string]int64 `json:"costs"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data.Plans) != 6 {
		t.Fatalf("plan count: got %d, want 6", len(resp.Data.Plans))
	}
	if resp.Data.Costs["generate_presentation"] != 40 {
		t.Fatalf("costs: %+v", resp.Data.Costs)
	}
}

func TestApplyBillingEvent(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.billing.resp = billingeventdomain.ApplyEventResponse{Applied: true, Tier: plan.TierPro, Balance: 4000}

	w := doJSON(t, engine, http.MethodPost, "/api/billing/events", gin.H{
		"event_type": "subscription.created",
		"account_id": "123",
		"tier":       "pro",
		"event_id":   "evt_1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data billingeventdomain.ApplyEventResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data.Applied || resp.Data.Balance != 4000 {
		t.Fatalf("unexpected response: %+v", resp.Data)
	}
}

func TestApplyBillingEventInvalidTier(t *testing.T) {
	engine, svcs := newTestServer(t)
	svcs.billing.err = billingeventdomain.ErrInvalidTier

	w := doJSON(t, engine, http.MethodPost, "/api/billing/events", gin.H{
		"event_type": "subscription.created",
		"account_id": "123",
		"tier":       "platinum",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	engine, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", bytes.NewBufferString("{nope"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	if payload := decodeError(t, w); payload.Type != "validation_error" {
		t.Fatalf("error type: %q", payload.Type)
	}
}
