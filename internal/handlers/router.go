package handlers

import (
	"net/http"

	"directstock/internal/auth"
	"directstock/internal/catalog"
	"directstock/internal/idempotency"
	"directstock/internal/ledger"
	"directstock/internal/lots"
	"directstock/internal/operations"
	"directstock/internal/serials"
	"directstock/internal/store"
	"directstock/pkg/logger"
	"directstock/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps carries everything the HTTP surface needs
type RouterDeps struct {
	Logger            *zap.Logger
	DB                *store.DB
	Reservations      *idempotency.Log
	IdempotencyHeader string
	// JWT enables bearer authentication on /api/v1 when set
	JWT        *auth.JWTManager
	Catalog    *catalog.Repository
	Operations *operations.Service
	Stock      StockReader
	Lots       *lots.Registry
	Serials    *serials.Registry
	Journal    *ledger.Journal
	Projection *ledger.Projection
}

// NewRouter builds the engine with the middleware chain and every route
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.CORSMiddleware(d.IdempotencyHeader))
	router.Use(middleware.RecoveryHandler(d.Logger))
	router.Use(middleware.RequestIDMiddleware(d.Logger))
	router.Use(middleware.TracingMiddleware("directstock"))
	router.Use(logger.GinMiddleware(d.Logger, d.IdempotencyHeader))
	router.Use(middleware.ErrorHandler(d.Logger))

	catalogHandler := NewCatalogHandler(d.Catalog, d.Logger)
	receipts := NewGoodsReceiptHandler(d.Operations, d.Logger)
	issues := NewGoodsIssueHandler(d.Operations, d.Logger)
	transfers := NewStockTransferHandler(d.Operations, d.Logger)
	iwt := NewInterWarehouseHandler(d.Operations, d.Logger)
	counts := NewInventoryCountHandler(d.Operations, d.Logger)
	stock := NewStockHandler(d.Operations, d.Stock, d.Lots, d.Serials, d.Journal, d.Logger)
	admin := NewAdminHandler(d.Reservations, d.Projection, d.Logger)

	v1 := router.Group("/api/v1")
	v1.GET("/health", healthCheck(d.DB))

	api := v1.Group("")
	if d.JWT != nil {
		api.Use(middleware.AuthMiddleware(d.JWT, d.Logger))
	}
	api.Use(middleware.IdempotencyMiddleware(d.DB, d.Reservations, d.IdempotencyHeader, d.Logger))
	{
		api.POST("/products", catalogHandler.CreateProduct)
		api.GET("/products", catalogHandler.ListProducts)
		api.GET("/products/:id", catalogHandler.GetProduct)
		api.POST("/warehouses", catalogHandler.CreateWarehouse)
		api.GET("/warehouses", catalogHandler.ListWarehouses)
		api.POST("/warehouses/:id/bins", catalogHandler.CreateBin)
		api.GET("/warehouses/:id/bins", catalogHandler.ListBins)
		api.GET("/bins/:id", catalogHandler.GetBin)

		gr := api.Group("/goods-receipts")
		gr.POST("", receipts.Create)
		gr.POST("/:id/items", receipts.AddItem)
		gr.GET("/:id", receipts.Get)
		gr.POST("/:id/complete", receipts.Complete)
		gr.POST("/:id/cancel", receipts.Cancel)

		gi := api.Group("/goods-issues")
		gi.POST("", issues.Create)
		gi.POST("/:id/items", issues.AddItem)
		gi.GET("/:id", issues.Get)
		gi.POST("/:id/complete", issues.Complete)
		gi.POST("/:id/cancel", issues.Cancel)

		st := api.Group("/stock-transfers")
		st.POST("", transfers.Create)
		st.POST("/:id/items", transfers.AddItem)
		st.GET("/:id", transfers.Get)
		st.POST("/:id/complete", transfers.Complete)
		st.POST("/:id/cancel", transfers.Cancel)

		iw := api.Group("/inter-warehouse-transfers")
		iw.POST("", iwt.Create)
		iw.POST("/:id/items", iwt.AddItem)
		iw.GET("/:id", iwt.Get)
		iw.POST("/:id/dispatch", iwt.Dispatch)
		iw.POST("/:id/receive", iwt.Receive)
		iw.POST("/:id/cancel", iwt.Cancel)

		ic := api.Group("/inventory-counts")
		ic.POST("", counts.Create)
		ic.GET("/:id", counts.Get)
		ic.POST("/:id/generate", counts.Generate)
		ic.POST("/:id/items/:itemId/count", counts.RecordCount)
		ic.POST("/:id/complete", counts.Complete)
		ic.POST("/:id/cancel", counts.Cancel)

		api.GET("/stock", stock.ListStock)
		api.GET("/stock/lots", stock.ListLots)
		api.POST("/stock/reserve", stock.Reserve)
		api.POST("/stock/release", stock.Release)
		api.GET("/serials/:serial", stock.GetSerial)
		api.GET("/movements", stock.ListMovements)

		api.POST("/admin/reservations/prune", admin.PruneReservations)
		api.POST("/admin/reservations/release-stale", admin.ReleaseStaleReservations)
		api.GET("/admin/projection/verify", admin.VerifyProjection)
	}

	return router
}

// healthCheck godoc
// @Summary      Health check endpoint
// @Description  Reports whether the database answers.
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /health [get]
func healthCheck(db *store.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "directstock"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "directstock"})
	}
}
