package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
)

func (s *Server) CalculateQuote(c *gin.Context) {
	var req premiumdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PromoCode = strings.TrimSpace(req.PromoCode)

	resp, err := s.premiumSvc.CalculatePremium(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
