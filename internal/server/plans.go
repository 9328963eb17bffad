package server

import (
	"net/http"

	generationdomain "github.com/decksmith/decksmith/internal/generation/domain"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/gin-gonic/gin"
)

type planView struct {
	Tier           plan.Tier           `json:"tier"`
	Name           string              `json:"name"`
	PriceUSD       int64               `json:"price_usd"`
	Unmetered      bool                `json:"unmetered"`
	MonthlyCredits int64               `json:"monthly_credits"`
	SignupCredits  int64               `json:"signup_credits,omitempty"`
	MaxCards       int                 `json:"max_cards"`
	ExportFormats  []plan.ExportFormat `json:"export_formats,omitempty"`
	Features       []string            `json:"features"`
}

func toPlanView(ent plan.Entitlement) planView {
	return planView{
		Tier:           ent.Tier,
		Name:           ent.Name,
		PriceUSD:       ent.PriceUSD,
		Unmetered:      ent.Allotment.IsUnmetered(),
		MonthlyCredits: ent.Allotment.MonthlyCredits(),
		SignupCredits:  ent.SignupGrantCredits,
		MaxCards:       ent.MaxCardsPerGeneration,
		ExportFormats:  ent.ExportFormats,
		Features:       ent.Features,
	}
}

func (s *Server) ListPlans(c *gin.Context) {
	ents := s.plans.Entitlements()
	views := make([]planView, 0, len(ents))
	for _, ent := range ents {
		views = append(views, toPlanView(ent))
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"plans": views,
		"costs": generationdomain.Costs(),
	}})
}

func (s *Server) GetPlanByTier(c *gin.Context) {
	tier, err := plan.ParseTier(c.Param("tier"))
	if err != nil {
		AbortWithError(c, newValidationError("tier", "invalid_tier", "invalid tier"))
		return
	}

	ent, err := s.plans.Resolve(tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toPlanView(ent)})
}
