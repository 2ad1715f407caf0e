package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stock-reservation-service/internal/ledger"
	"stock-reservation-service/internal/metrics"
)

// WorkerHandler exposes the stock worker's diagnostic surface: health,
// ledger snapshots and Prometheus metrics. The worker takes no writes over
// HTTP; all mutations arrive through the broker.
type WorkerHandler struct {
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
}

// NewWorkerHandler creates a new worker API handler. metrics may be nil.
func NewWorkerHandler(l *ledger.Ledger, m *metrics.Metrics) *WorkerHandler {
	return &WorkerHandler{
		ledger:  l,
		metrics: m,
	}
}

// SetupWorkerRoutes sets up the HTTP routes for the worker service
func (h *WorkerHandler) SetupWorkerRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	r.GET("/health", h.healthCheck)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api/v1")
	{
		api.GET("/stock/snapshot", h.snapshot)
		api.GET("/stock/:itemId", h.itemQuantities)
	}

	return r
}

type holdView struct {
	BasketID  string    `json:"basket_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}

type itemView struct {
	ItemID       int        `json:"item_id"`
	AvailableQty int        `json:"available_qty"`
	ReservedQty  int        `json:"reserved_qty"`
	Holds        []holdView `json:"holds,omitempty"`
}

// snapshot returns the full ledger view: every item with its available
// quantity and active holds.
func (h *WorkerHandler) snapshot(c *gin.Context) {
	snap := h.ledger.Snapshot()

	items := make([]itemView, 0, len(snap))
	for itemID, item := range snap {
		view := itemView{
			ItemID:       itemID,
			AvailableQty: item.AvailableQty,
			ReservedQty:  item.ReservedQty,
			Holds:        make([]holdView, 0, len(item.Holds)),
		}
		for _, hold := range item.Holds {
			view.Holds = append(view.Holds, holdView{
				BasketID:  hold.BasketID,
				Quantity:  hold.Quantity,
				ExpiresAt: hold.ExpiresAt,
			})
		}
		items = append(items, view)
	}

	Response.Success(c, gin.H{"items": items})
}

// itemQuantities returns the authoritative quantities for one item.
func (h *WorkerHandler) itemQuantities(c *gin.Context) {
	itemID, err := strconv.Atoi(c.Param("itemId"))
	if err != nil || itemID <= 0 {
		Response.ValidationError(c, "itemId", "Item ID must be a positive integer")
		return
	}

	quantities, err := h.ledger.Quantities(itemID)
	if err != nil {
		Response.NotFound(c, "Item")
		return
	}

	Response.Success(c, itemView{
		ItemID:       itemID,
		AvailableQty: quantities.AvailableQty,
		ReservedQty:  quantities.ReservedQty,
	})
}

// healthCheck handles health check requests
func (h *WorkerHandler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "stock-worker",
	})
}
