package server

import (
	"net/http"

	billingeventdomain "github.com/decksmith/decksmith/internal/billingevent/domain"
	"github.com/gin-gonic/gin"
)

type billingEventRequest struct {
	EventType string         `json:"event_type"`
	AccountID string         `json:"account_id"`
	Tier      string         `json:"tier"`
	EventID   string         `json:"event_id"`
	Payload   map[string]any `json:"payload"`
}

func (s *Server) ApplyBillingEvent(c *gin.Context) {
	var req billingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingEventSvc.Apply(c.Request.Context(), billingeventdomain.ApplyEventRequest{
		EventType: req.EventType,
		AccountID: req.AccountID,
		Tier:      req.Tier,
		DedupeKey: req.EventID,
		Payload:   req.Payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
