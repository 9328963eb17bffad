package server

import (
	"net/http"
	"strings"

	generationdomain "github.com/decksmith/decksmith/internal/generation/domain"
	"github.com/gin-gonic/gin"
)

type generateRequest struct {
	AccountID string         `json:"account_id"`
	Category  string         `json:"category"`
	CardCount int            `json:"card_count"`
	Prompt    string         `json:"prompt"`
	Options   map[string]any `json:"options"`
}

func (s *Server) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if category := strings.TrimSpace(req.Category); category != "" {
		c.Set("operation_category", category)
	}

	resp, err := s.generationSvc.Generate(c.Request.Context(), generationdomain.GenerateRequest{
		AccountID: req.AccountID,
		Category:  req.Category,
		CardCount: req.CardCount,
		Prompt:    req.Prompt,
		Options:   req.Options,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
