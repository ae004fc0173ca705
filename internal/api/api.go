package api

import (
	"log/slog"
	"net/http"

	"canteen/internal/config"
	"canteen/internal/events"
	"canteen/internal/monitoring"
	"canteen/internal/ordering"

	"github.com/gin-gonic/gin"
)

// CanteenAPI serves the public menu, orders and the admin endpoints
type CanteenAPI struct {
	Router  *gin.Engine
	Orders  *ordering.Service
	Hub     *events.Hub
	Metrics *monitoring.Metrics
	log     *slog.Logger
}

// NewCanteenAPI creates the router and registers every route
func NewCanteenAPI(svc *ordering.Service, hub *events.Hub, metrics *monitoring.Metrics, cfg config.ServerConfig, log *slog.Logger) *CanteenAPI {
	registerValidation()

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(log),
		observe(metrics),
		corsMiddleware(cfg.CORSOrigins),
		limitBody(cfg.BodyLimit),
	)

	api := &CanteenAPI{
		Router:  router,
		Orders:  svc,
		Hub:     hub,
		Metrics: metrics,
		log:     log,
	}

	api.setupRoutes()
	return api
}

// setupRoutes configures all API endpoints
func (k *CanteenAPI) setupRoutes() {
	r := k.Router.Group("/api")

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "ok"}})
	})

	// Public menu
	r.GET("/menu", k.ListMenu)

	// Orders
	r.POST("/orders", k.PlaceOrder)
	r.GET("/orders/history", k.OrderHistory)
	r.GET("/orders/:id", k.GetOrder)
	r.GET("/orders/:id/stream", k.StreamOrder)
	r.POST("/orders/:id/add-items", k.AddItems)
	r.POST("/orders/:id/cancel", k.CancelOrder)
	r.POST("/orders/:id/confirm", k.ConfirmOrder)
	r.POST("/orders/:id/complete", k.CompleteOrder)

	admin := r.Group("/admin")
	{
		admin.POST("/menu", k.CreateMenuItem)
		admin.GET("/menu", k.ListMenuItems)
		admin.GET("/menu/:id", k.GetMenuItem)
		admin.PUT("/menu/:id", k.UpdateMenuItem)
		admin.DELETE("/menu/:id", k.DeleteMenuItem)

		admin.POST("/jobs/run-cancellations", k.RunCancellations)
	}
}
