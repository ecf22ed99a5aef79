package router

import (
	"context"

	"scrappos/internal/config"
	"scrappos/internal/handler"
	"scrappos/internal/infra"
	"scrappos/internal/ledger"
	"scrappos/internal/middleware"
	"scrappos/internal/repository"
	"scrappos/internal/service"
	"scrappos/internal/settlement"
	"scrappos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the infrastructure pieces built by the composition root.
type Deps struct {
	Gateway   settlement.StatusChecker
	GatewayCB *infra.CircuitBreaker // reported by /health; may be nil
	Geo       *infra.GeoIPClient
	// Receipts defaults to a Redis dispatcher when nil.
	Receipts service.ReceiptEnqueuer
}

// New wires all dependencies and returns a configured Gin engine together
// with the checkout service, whose background polls outlive requests.
// ctx bounds those polls. Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client, deps Deps) (*gin.Engine, service.CheckoutService) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartPurge(ctx)

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(limiter))

	receipts := deps.Receipts
	if receipts == nil {
		receipts = worker.NewDispatcher(rdb)
	}

	// ── Repositories ─────────────────────────────────────────────────────────
	materialRepo := repository.NewMaterialRepository(db)
	ordenRepo := repository.NewOrdenRepository(db)
	cajaRepo := repository.NewCajaRepository(db)
	liquidacionRepo := repository.NewLiquidacionRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	ledgers := ledger.NewRegistry()
	materialSvc := service.NewMaterialService(materialRepo, rdb)
	ledgerSvc := service.NewLedgerService(ledgers, ordenRepo, materialSvc)
	cajaSvc := service.NewCajaService(cajaRepo)
	checkoutSvc := service.NewCheckoutService(service.CheckoutConfig{
		BaseCtx:       ctx,
		Ledgers:       ledgers,
		LedgerSvc:     ledgerSvc,
		Caja:          cajaSvc,
		Ordenes:       ordenRepo,
		Liquidaciones: liquidacionRepo,
		Gateway:       deps.Gateway,
		Poll:          cfg.Settlement(),
		Receipts:      receipts,
		Notifier:      infra.NewNotifier(rdb),
		BusinessName:  cfg.BusinessName,
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	ledgerH := handler.NewLedgerHandler(ledgerSvc)
	materialesH := handler.NewMaterialesHandler(materialSvc)
	checkoutH := handler.NewCheckoutHandler(checkoutSvc, cfg.WebhookSecret)
	cajaH := handler.NewCajaHandler(cajaSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, deps.GatewayCB))
	if deps.Geo != nil {
		r.GET("/v1/geo", handler.NewGeoHandler(deps.Geo).Lookup)
	}
	// The gateway authenticates with the shared secret, not a JWT.
	r.POST("/v1/webhooks/payment", checkoutH.Webhook)

	// Protected routes
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		v1.GET("/materiales", materialesH.Listar)

		lg := v1.Group("/ledger")
		{
			lg.GET("", ledgerH.Estado)
			lg.POST("/customer", ledgerH.SeleccionarCliente)
			lg.DELETE("/customer", ledgerH.DeseleccionarCliente)
			lg.POST("/mode", ledgerH.CambiarModo)
			lg.POST("/orders", ledgerH.IniciarOrden)
			lg.POST("/items", ledgerH.AgregarItem)
			lg.DELETE("/items/:index", ledgerH.QuitarItem)
			lg.POST("/reload", ledgerH.Recargar)
		}

		co := v1.Group("/checkout")
		{
			co.POST("", checkoutH.Checkout)
			co.GET("/:payment_id", checkoutH.Estado)
			co.DELETE("/:payment_id", checkoutH.Cancelar)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("/:id/print", checkoutH.Imprimir)
			orders.POST("/:id/persist", checkoutH.Guardar)
		}

		caja := v1.Group("/caja")
		{
			caja.POST("/abrir", cajaH.Abrir)
			caja.GET("/activa", cajaH.GetActiva)
			caja.POST("/cerrar", cajaH.Cerrar)
			caja.GET("/:id/reporte", cajaH.ObtenerReporte)
		}
	}

	// Swagger UI, only outside production
	if !cfg.IsProduction() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r, checkoutSvc
}
