// internal/api/handlers/admin_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickup-map-api-server/internal/api/middleware"
	"pickup-map-api-server/internal/database"
	"pickup-map-api-server/internal/models"
)

// Broadcaster pushes events to live map viewers.
type Broadcaster interface {
	Broadcast(event models.PickupEvent)
}

type AdminHandler struct {
	Store PickupStore
	Hub   Broadcaster // optional
	Now   func() time.Time
}

// ListPickupsForReview lists pickups in one status, pending unless asked
// otherwise, newest first.
func (h *AdminHandler) ListPickupsForReview(c *gin.Context) {
	status := models.PickupStatus(strings.ToLower(c.DefaultQuery("status", string(models.StatusPending))))
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending, approved or rejected"})
		return
	}
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	pickups, err := h.Store.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		zap.L().Error("list pickups for review failed", zap.String("status", string(status)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query pickups"})
		return
	}
	if pickups == nil {
		pickups = []models.Pickup{}
	}
	c.JSON(http.StatusOK, pickups)
}

func (h *AdminHandler) ApprovePickup(c *gin.Context) {
	h.review(c, models.StatusApproved)
}

func (h *AdminHandler) RejectPickup(c *gin.Context) {
	h.review(c, models.StatusRejected)
}

func (h *AdminHandler) review(c *gin.Context, next models.PickupStatus) {
	id, ok := objectIDParam(c)
	if !ok {
		return
	}
	reviewer := c.GetString(middleware.ContextUserEmail)

	pickup, err := h.Store.Review(c.Request.Context(), id, next, reviewer, currentTime(h.Now).UTC())
	if err != nil {
		switch {
		case errors.Is(err, database.ErrPickupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Pickup not found"})
		case errors.Is(err, database.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "Pickup has already been reviewed"})
		default:
			zap.L().Error("review pickup failed", zap.String("pickup_id", id.Hex()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update pickup"})
		}
		return
	}

	zap.L().Info("pickup reviewed",
		zap.String("pickup_id", id.Hex()),
		zap.String("status", string(next)),
		zap.String("reviewer", reviewer))

	if next == models.StatusApproved && h.Hub != nil {
		h.Hub.Broadcast(models.PickupEvent{Event: models.EventPickupApproved, Pickup: *pickup})
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Pickup " + string(next),
		"pickup":  pickup,
	})
}
