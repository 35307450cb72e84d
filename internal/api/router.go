package api

import (
	"github.com/gin-gonic/gin"

	"github.com/craprotocol/tracer/internal/api/handlers"
	"github.com/craprotocol/tracer/internal/api/middleware"
	"github.com/craprotocol/tracer/internal/engine/mixer"
	"github.com/craprotocol/tracer/internal/engine/trace"
	"github.com/craprotocol/tracer/internal/graph"
	"github.com/craprotocol/tracer/internal/ingest"
	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/storage"
)

// Router wraps the Gin router with handlers
type Router struct {
	engine         *gin.Engine
	traceHandler   *handlers.TraceHandler
	addressHandler *handlers.AddressHandler
	txHandler      *handlers.TxHandler
	mixerHandler   *handlers.MixerHandler
}

// NewRouter creates a new Router with all handlers
func NewRouter(
	orchestrator *trace.Orchestrator,
	reader graph.Reader,
	ingestor *ingest.Ingestor,
	txStore *storage.TxStore,
	addressStore *storage.AddressStore,
	seedStore *storage.SeedStore,
	ls *labels.Set,
	mixerCfg mixer.Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		engine:         gin.New(),
		traceHandler:   handlers.NewTraceHandler(orchestrator),
		addressHandler: handlers.NewAddressHandler(addressStore, txStore, seedStore, ls),
		txHandler:      handlers.NewTxHandler(txStore, ingestor),
		mixerHandler:   handlers.NewMixerHandler(reader, txStore, ls, mixerCfg),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// setupMiddleware configures middleware
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.CORS())
}

// setupRoutes configures API routes
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := r.engine.Group("/api/v1")
	{
		// Trace routes
		traces := v1.Group("/traces")
		{
			traces.POST("", r.traceHandler.Create)
			traces.GET("/:id", r.traceHandler.Get)
		}
		v1.GET("/trace", r.traceHandler.Visualize)

		// Transaction routes
		txs := v1.Group("/transactions")
		{
			txs.POST("", r.txHandler.Create)
			txs.GET("/:txid", r.txHandler.Get)
		}

		// Address routes
		addresses := v1.Group("/addresses")
		{
			addresses.GET("/:address", r.addressHandler.Get)
			addresses.GET("/:address/transactions", r.addressHandler.GetTransactions)
		}

		// Mixer analysis
		v1.GET("/mixer_analysis", r.mixerHandler.Analyze)
	}
}

// Engine returns the underlying Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
