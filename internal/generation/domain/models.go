package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
)

// Operation categories billed through the gateway.
const (
	CategoryGeneratePresentation = "generate_presentation"
	CategoryRewriteText          = "rewrite_text"
	CategoryTranslate            = "translate"
	CategoryGenerateImage        = "generate_image"
	CategoryMagicDesign          = "magic_design"
	CategorySmartResize          = "smart_resize"
	CategoryAISuggestions        = "ai_suggestions"
)

// DefaultCost prices categories missing from the table, so a new client
// category is billed rather than free.
const DefaultCost int64 = 5

var categoryCosts = map[string]int64{
	CategoryGeneratePresentation: 40,
	CategoryRewriteText:          5,
	CategoryTranslate:            5,
	CategoryGenerateImage:        10,
	CategoryMagicDesign:          15,
	CategorySmartResize:          3,
	CategoryAISuggestions:        2,
}

// Cost returns the credit price of an operation category.
func Cost(category string) int64 {
	if cost, ok := categoryCosts[category]; ok {
		return cost
	}
	return DefaultCost
}

// Costs returns a copy of the full price table.
func Costs() map[string]int64 {
	out := make(map[string]int64, len(categoryCosts))
	for k, v := range categoryCosts {
		out[k] = v
	}
	return out
}

type GenerateRequest struct {
	AccountID string
	Category  string
	// CardCount is the requested deck size. Checked against the tier's
	// ceiling for presentation generation, ignored elsewhere.
	CardCount int
	Prompt    string
	Options   map[string]any
}

type GenerateResponse struct {
	Receipt ledgerdomain.Receipt `json:"receipt"`
	Result  RunResult            `json:"result"`
}

// RunRequest is handed to the Runner once the operation has been paid for.
type RunRequest struct {
	AccountID string
	Category  string
	CardCount int
	Prompt    string
	Options   map[string]any
}

type RunResult struct {
	OutputID string         `json:"output_id"`
	Cards    int            `json:"cards,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Runner executes a paid operation. Implementations are injected so the
// billing gateway stays independent of any generation backend.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

type Service interface {
	// Generate gates an operation on the tier's card ceiling, charges
	// its credit cost, and hands it to the runner. A runner failure
	// refunds the charge.
	Generate(context.Context, GenerateRequest) (GenerateResponse, error)
}

var (
	ErrInvalidCategory  = errors.New("invalid_category")
	ErrInvalidCardCount = errors.New("invalid_card_count")
	ErrQuotaExceeded    = errors.New("quota_exceeded")
)
