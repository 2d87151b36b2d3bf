package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickup-map-api-server/internal/geocode"
)

type LocationSearcher interface {
	Search(ctx context.Context, query string) ([]geocode.Suggestion, error)
}

type GeocodeHandler struct {
	Geocoder LocationSearcher
}

// SearchLocations backs the address autocomplete of the submit form.
func (h *GeocodeHandler) SearchLocations(c *gin.Context) {
	results, err := h.Geocoder.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		if errors.Is(err, geocode.ErrProvider) {
			zap.L().Warn("location search provider failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Location search is unavailable right now"})
			return
		}
		zap.L().Error("location search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Location search failed"})
		return
	}
	if results == nil {
		results = []geocode.Suggestion{}
	}
	c.JSON(http.StatusOK, results)
}
