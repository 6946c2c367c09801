package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
)

func (s *Server) CreateRateCard(c *gin.Context) {
	var req ratecarddomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.rateCardSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetRateCard(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.rateCardSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SyncRateCardEntries(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req ratecarddomain.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RateCardID = id

	resp, err := s.rateCardSvc.SyncEntries(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateRateCard(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	at, err := parseOptionalTime(c.Query("at"), false)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return
	}

	resp, err := s.rateCardSvc.Activate(c.Request.Context(), ratecarddomain.ActivateRequest{
		RateCardID: id,
		At:         at,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResolveRate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req ratecarddomain.ResolveRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RateCardID = id

	resp, err := s.rateCardSvc.ResolveRate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEffectiveRateCard(c *gin.Context) {
	planID, err := pathID(c, "planId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	at, err := parseOptionalTime(c.Query("at"), false)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return
	}
	when := time.Now().UTC()
	if at != nil {
		when = *at
	}

	resp, err := s.rateCardSvc.FindEffectiveForPlan(c.Request.Context(), planID, when)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRateCardHistory(c *gin.Context) {
	planID, err := pathID(c, "planId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	scope := versioningdomain.ScopeKey(map[string]any{"plan_id": planID})
	resp, err := s.versions.History(c.Request.Context(), versioningdomain.KindRateCard, scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
