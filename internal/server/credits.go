package server

import (
	"net/http"
	"strings"

	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetCreditBalance(c *gin.Context) {
	resp, err := s.ledgerSvc.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Type     string `form:"type"`
		Category string `form:"category"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.List(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		AccountID: c.Param("id"),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Type:      strings.TrimSpace(query.Type),
		Category:  strings.TrimSpace(query.Category),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type chargeCreditsRequest struct {
	Cost     int64          `json:"cost"`
	Category string         `json:"category"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) ChargeCredits(c *gin.Context) {
	var req chargeCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if category := strings.TrimSpace(req.Category); category != "" {
		c.Set("operation_category", category)
	}

	resp, err := s.ledgerSvc.Charge(c.Request.Context(), ledgerdomain.ChargeRequest{
		AccountID: c.Param("id"),
		Cost:      req.Cost,
		Category:  req.Category,
		Metadata:  req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type grantCreditsRequest struct {
	Amount   int64          `json:"amount"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) GrantCredits(c *gin.Context) {
	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.Credit(c.Request.Context(), ledgerdomain.CreditRequest{
		AccountID: c.Param("id"),
		Amount:    req.Amount,
		Reason:    req.Reason,
		Metadata:  req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResetCredits(c *gin.Context) {
	applied, err := s.ledgerSvc.ResetMonthly(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"applied": applied}})
}
