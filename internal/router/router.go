// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/greenbasket/commerce-backend/internal/config"
	"github.com/greenbasket/commerce-backend/internal/events"
	"github.com/greenbasket/commerce-backend/internal/handlers"
	"github.com/greenbasket/commerce-backend/internal/middleware"
	"github.com/greenbasket/commerce-backend/internal/services"
	"github.com/greenbasket/commerce-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	// Post-commit hook bus; subscribers register during service construction.
	dispatcher := events.NewDispatcher()

	// Initialize services
	goldProvider := services.NewHTTPGoldQuoteProvider(cfg.Pricing)
	goldService := services.NewGoldPriceService(db, goldProvider, cfg.Pricing)
	pricingService := services.NewPricingService(db, goldService)
	catalogService := services.NewCatalogService(db)
	cartService := services.NewCartService(db, pricingService)
	stockService := services.NewStockService(db)
	vendorService := services.NewVendorService(db)
	reviewService := services.NewReviewService(db, dispatcher)
	notificationService := services.NewNotificationService(db, dispatcher)
	if _, err := services.NewStorageService(cfg, dispatcher); err != nil {
		return nil, err
	}
	verifier := services.NewStripeVerifier(cfg)
	orderService := services.NewOrderService(db, pricingService, stockService,
		vendorService, verifier, dispatcher, cfg.Pricing.ConfirmMaxRetries)

	// Initialize handlers
	catalogHandler := handlers.NewCatalogHandler(catalogService, pricingService,
		reviewService, cfg.Pricing.DefaultCountry)
	cartHandler := handlers.NewCartHandler(cartService, cfg.Pricing.DefaultCountry)
	orderHandler := handlers.NewOrderHandler(orderService, cartService, cfg.Pricing.DefaultCountry)
	vendorHandler := handlers.NewVendorHandler(vendorService, notificationService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.NewRateLimiter(rate.Limit(20), 40).Middleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Catalog routes
		products := v1.Group("/products")
		{
			products.GET("", catalogHandler.GetProducts)
			products.GET("/:id", catalogHandler.GetProduct)
			products.GET("/:id/quote", catalogHandler.GetQuote)
			products.GET("/:id/reviews", catalogHandler.GetReviews)
			products.POST("/:id/reviews", middleware.AuthRequired(), catalogHandler.CreateReview)
		}
		v1.GET("/categories", catalogHandler.GetCategories)

		// Cart routes
		cart := v1.Group("/cart")
		cart.Use(middleware.AuthRequired())
		{
			cart.GET("", cartHandler.GetCart)
			cart.GET("/totals", cartHandler.GetTotals)
			cart.POST("/items", cartHandler.AddItem)
			cart.PUT("/items", cartHandler.SetItemQuantity)
			cart.DELETE("/items/:product_id", cartHandler.RemoveItem)
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", orderHandler.Checkout)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.POST("/:id/confirm", orderHandler.Confirm)
			orders.POST("/:id/cancel", orderHandler.Cancel)
		}

		// Vendor routes
		vendors := v1.Group("/vendors")
		vendors.Use(middleware.AuthRequired(), middleware.VendorRequired())
		{
			vendors.GET("/:id/sales", vendorHandler.GetSales)
		}

		// Staff routes
		staff := v1.Group("/staff")
		staff.Use(middleware.AuthRequired(), middleware.StaffRequired())
		{
			staff.PUT("/orders/:id/shipment", orderHandler.UpdateShipmentStatus)
			staff.GET("/notifications", vendorHandler.GetNotifications)
			staff.PUT("/notifications/:id/read", vendorHandler.MarkNotificationRead)
		}
	}

	return r, nil
}
