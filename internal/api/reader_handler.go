package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/interfaces"
)

// ReaderHandler handles HTTP requests for the read-side availability
// service. All answers come from the cache; the handler never queries the
// worker directly.
type ReaderHandler struct {
	availability interfaces.AvailabilityReader
}

// NewReaderHandler creates a new reader API handler
func NewReaderHandler(availability interfaces.AvailabilityReader) *ReaderHandler {
	return &ReaderHandler{availability: availability}
}

// SetupReaderRoutes sets up the HTTP routes for the reader service
func (h *ReaderHandler) SetupReaderRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(ErrorHandlerMiddleware())
	r.Use(CORSMiddleware())

	r.GET("/health", h.healthCheck)

	api := r.Group("/api/v1")
	{
		api.GET("/stock/:itemId/availability", h.getAvailability)
	}

	return r
}

// getAvailability answers a point-in-time availability query from the cache.
func (h *ReaderHandler) getAvailability(c *gin.Context) {
	itemID, err := strconv.Atoi(c.Param("itemId"))
	if err != nil || itemID <= 0 {
		Response.ValidationError(c, "itemId", "Item ID must be a positive integer")
		return
	}

	response, err := h.availability.GetAvailability(c.Request.Context(), itemID)
	if err != nil {
		log.Error().Err(err).Int("item_id", itemID).Msg("Failed to get availability")
		Response.InternalError(c, err.Error())
		return
	}

	Response.Success(c, response)
}

// healthCheck handles health check requests
func (h *ReaderHandler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "stock-reader",
	})
}
