package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repaircoin-backend/config"
	"repaircoin-backend/controllers"
	"repaircoin-backend/models"
	"repaircoin-backend/utils"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth        *controllers.AuthController
	Customers   *controllers.CustomerController
	Redemptions *controllers.RedemptionController
	Earnings    *controllers.EarningController
	Shops       *controllers.ShopController
	Dashboard   *controllers.DashboardController

	CORSOrigins []string
	Limiter     *utils.KeyedLimiter
	Logger      *slog.Logger
	// Metrics defaults to the global Prometheus handler.
	Metrics http.Handler
}

func SetupRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(config.PerformanceLogger(logger))

	metricsHandler := h.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limit := func(c *gin.Context) { c.Next() }
	if h.Limiter != nil {
		limit = utils.RateLimit(h.Limiter)
	}

	auth := r.Group("/auth", limit)
	{
		auth.POST("/challenge", h.Auth.Challenge)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/customers", h.Auth.RegisterCustomer)
		auth.POST("/shops", h.Auth.RegisterShop)
	}

	api := r.Group("/api", utils.AuthMiddleware(), limit)
	{
		customers := api.Group("/customers",
			utils.RequireRole(string(models.RoleCustomer), string(models.RoleShop), string(models.RoleAdmin)))
		{
			customers.GET("/:address", h.Customers.GetCustomer)
			customers.GET("/:address/balances", h.Customers.GetBalances)
			customers.GET("/:address/transactions", h.Customers.GetTransactions)
		}

		shop := api.Group("", utils.RequireRole(string(models.RoleShop)))
		{
			shop.GET("/shops/me", h.Shops.GetMyShop)
			shop.GET("/shops/me/dashboard", h.Dashboard.GetDashboardOverview)
			shop.POST("/earnings", h.Earnings.RecordRepair)

			redemptions := shop.Group("/redemptions")
			{
				redemptions.POST("/evaluate", h.Redemptions.Evaluate)
				redemptions.POST("/commit", h.Redemptions.Commit)
				redemptions.POST("/:txRef/settle", h.Redemptions.Settle)
			}
		}
	}

	admin := r.Group("/admin", utils.AuthMiddleware(), limit, utils.RequireRole(string(models.RoleAdmin)))
	{
		admin.POST("/mint", h.Earnings.Mint)
		admin.POST("/purchases", h.Earnings.RecordPurchase)
		admin.POST("/transfers", h.Earnings.RecordTransfer)

		admin.POST("/shops/:id/verify", h.Shops.VerifyShop)
		admin.POST("/shops/:id/active", h.Shops.SetShopActive)
		admin.POST("/customers/:address/home-shop", h.Shops.AssignHomeShop)
		admin.POST("/customers/:address/deactivate", h.Shops.DeactivateCustomer)
	}

	return r
}
