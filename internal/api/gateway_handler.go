package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/interfaces"
	"stock-reservation-service/internal/models"
)

// GatewayHandler handles HTTP requests for the basket-facing gateway: it
// accepts basket item changes, settles holds and exposes the per-basket
// rejection feed.
type GatewayHandler struct {
	requester  interfaces.ReservationRequester
	rejections interfaces.RejectionReader
}

// NewGatewayHandler creates a new gateway API handler
func NewGatewayHandler(requester interfaces.ReservationRequester, rejections interfaces.RejectionReader) *GatewayHandler {
	return &GatewayHandler{
		requester:  requester,
		rejections: rejections,
	}
}

// SetupGatewayRoutes sets up the HTTP routes for the gateway service
func (h *GatewayHandler) SetupGatewayRoutes() *gin.Engine {
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
		// Basket operations: each add or quantity change queues one
		// reservation request
		api.POST("/baskets/:basketId/items", h.addBasketItem)
		api.POST("/baskets/:basketId/items/:itemId/confirm", h.confirmHold)
		api.DELETE("/baskets/:basketId/items/:itemId", h.cancelHold)
		api.GET("/baskets/:basketId/rejections", h.listRejections)

		// Administrative restock
		api.POST("/stock/:itemId/restock", h.restock)
	}

	return r
}

// addBasketItem queues a reservation request for one basket item. The 202
// response only acknowledges queuing; the decision arrives asynchronously.
func (h *GatewayHandler) addBasketItem(c *gin.Context) {
	basketID := c.Param("basketId")
	if basketID == "" {
		Response.ValidationError(c, "basketId", "Basket ID is required")
		return
	}

	var req models.AddBasketItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// The error middleware turns bind failures into field-level
		// validation problems.
		c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	response, err := h.requester.RequestReservation(c.Request.Context(), basketID, req.ItemID, req.Quantity)
	if err != nil {
		log.Error().Err(err).
			Str("basket_id", basketID).
			Int("item_id", req.ItemID).
			Msg("Failed to queue reservation request")

		if models.IsValidationError(err) {
			ve := err.(*models.ValidationError)
			Response.ValidationError(c, ve.Field, ve.Message)
			return
		}
		Response.ServiceUnavailable(c, "Reservation request could not be queued")
		return
	}

	Response.Accepted(c, response)
}

// confirmHold queues a command converting the basket's hold into a sale.
func (h *GatewayHandler) confirmHold(c *gin.Context) {
	basketID, itemID, ok := h.basketItemParams(c)
	if !ok {
		return
	}

	if err := h.requester.ConfirmHold(c.Request.Context(), basketID, itemID); err != nil {
		log.Error().Err(err).
			Str("basket_id", basketID).
			Int("item_id", itemID).
			Msg("Failed to queue confirm command")
		Response.ServiceUnavailable(c, "Confirm command could not be queued")
		return
	}

	Response.Accepted(c, gin.H{
		"basket_id": basketID,
		"item_id":   itemID,
		"status":    "queued",
	})
}

// cancelHold queues a command releasing the basket's hold early.
func (h *GatewayHandler) cancelHold(c *gin.Context) {
	basketID, itemID, ok := h.basketItemParams(c)
	if !ok {
		return
	}

	if err := h.requester.CancelHold(c.Request.Context(), basketID, itemID); err != nil {
		log.Error().Err(err).
			Str("basket_id", basketID).
			Int("item_id", itemID).
			Msg("Failed to queue cancel command")
		Response.ServiceUnavailable(c, "Cancel command could not be queued")
		return
	}

	Response.Accepted(c, gin.H{
		"basket_id": basketID,
		"item_id":   itemID,
		"status":    "queued",
	})
}

// listRejections returns the recent rejection events for a basket, newest
// first. An empty list means nothing was rejected (or the feed expired).
func (h *GatewayHandler) listRejections(c *gin.Context) {
	basketID := c.Param("basketId")
	if basketID == "" {
		Response.ValidationError(c, "basketId", "Basket ID is required")
		return
	}

	events, err := h.rejections.ListRejections(c.Request.Context(), basketID)
	if err != nil {
		log.Error().Err(err).Str("basket_id", basketID).Msg("Failed to read rejection feed")
		Response.InternalError(c, err.Error())
		return
	}

	Response.Success(c, gin.H{
		"basket_id":  basketID,
		"rejections": events,
	})
}

// restock queues an administrative restock command for an item.
func (h *GatewayHandler) restock(c *gin.Context) {
	itemID, err := strconv.Atoi(c.Param("itemId"))
	if err != nil || itemID <= 0 {
		Response.ValidationError(c, "itemId", "Item ID must be a positive integer")
		return
	}

	var req models.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	if err := h.requester.Restock(c.Request.Context(), itemID, req.Quantity); err != nil {
		log.Error().Err(err).Int("item_id", itemID).Msg("Failed to queue restock command")
		Response.ServiceUnavailable(c, "Restock command could not be queued")
		return
	}

	Response.Accepted(c, gin.H{
		"item_id":  itemID,
		"quantity": req.Quantity,
		"status":   "queued",
	})
}

func (h *GatewayHandler) basketItemParams(c *gin.Context) (string, int, bool) {
	basketID := c.Param("basketId")
	if basketID == "" {
		Response.ValidationError(c, "basketId", "Basket ID is required")
		return "", 0, false
	}

	itemID, err := strconv.Atoi(c.Param("itemId"))
	if err != nil || itemID <= 0 {
		Response.ValidationError(c, "itemId", "Item ID must be a positive integer")
		return "", 0, false
	}

	return basketID, itemID, true
}

// healthCheck handles health check requests
func (h *GatewayHandler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "basket-gateway",
	})
}
