package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Reference data is display-only: the VAT classifier carries its own member
// state set and never reads these tables.

func (s *Server) ListCountries(c *gin.Context) {
	countries, err := s.refRepo.ListCountries(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": countries})
}

func (s *Server) ListCurrencies(c *gin.Context) {
	currencies, err := s.refRepo.ListCurrencies(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": currencies})
}
