package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
)

func (s *Server) CreateAddon(c *gin.Context) {
	var req addondomain.CreateAddonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.addonSvc.CreateAddon(c.Request.Context(), addondomain.CreateAddonRequest{
		Code: strings.TrimSpace(req.Code),
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CreateAddonRate(c *gin.Context) {
	addonID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addondomain.CreateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.AddonID = addonID

	resp, err := s.addonSvc.CreateRate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListAddonRates(c *gin.Context) {
	addonID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.addonSvc.ListRates(c.Request.Context(), addonID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResolveAddonPrice(c *gin.Context) {
	addonID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addondomain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.AddonID = addonID

	resp, err := s.addonSvc.ResolveAddonPrice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateAddonRate(c *gin.Context) {
	rateID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	at, err := parseOptionalTime(c.Query("at"), false)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return
	}

	resp, err := s.addonSvc.ActivateRate(c.Request.Context(), addondomain.ActivateRateRequest{
		RateID: rateID,
		At:     at,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
