package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beatvault/backend/internal/config"
	"github.com/beatvault/backend/internal/handlers"
	"github.com/beatvault/backend/internal/middleware"
	"github.com/beatvault/backend/internal/models"
	"github.com/beatvault/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.New()

	// Initialize database
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg)
	defer redisClient.Close()

	// Initialize services
	authService := services.NewAuthService(db, redisClient, cfg)
	userService := services.NewUserService(db)
	emailService := services.NewEmailService(cfg)
	authService.AttachEmailService(emailService)
	adminService := services.NewAdminService(db, cfg)
	auditService := services.NewAuditService(db)

	objectStore := services.NewObjectStoreService(db, cfg)
	beatService := services.NewBeatService(db, cfg, objectStore)

	var paymentProvider services.PaymentProvider
	if cfg.StripeSecretKey != "" {
		paymentProvider = services.NewStripeProvider(cfg, db)
	} else {
		log.Println("No Stripe key configured, purchases will not open checkout sessions")
	}
	purchaseService := services.NewPurchaseService(db, cfg, paymentProvider)
	downloadService := services.NewDownloadService(purchaseService)
	receiptService := services.NewReceiptService(cfg)

	var archiveService *services.ArchiveService
	if cfg.ArchiveEnabled {
		archiveService, err = services.NewArchiveService(cfg, objectStore)
		if err != nil {
			log.Fatalf("Failed to init archive service: %v", err)
		}
	}

	// Periodic cleanup of stale pending purchases
	go func() {
		for {
			deleted, err := purchaseService.CleanupStalePending()
			if err != nil {
				log.Printf("Pending purchase cleanup error: %v", err)
			} else if deleted > 0 {
				log.Printf("Pending purchase cleanup: removed %d stale records", deleted)
			}
			time.Sleep(cfg.PurchaseCleanupEvery)
		}
	}()

	// Periodic cleanup of expired refresh tokens
	go func() {
		for {
			if err := authService.CleanupExpiredTokens(); err != nil {
				log.Printf("Token cleanup error: %v", err)
			}
			time.Sleep(time.Hour)
		}
	}()

	// Create admin user if not exists
	if err := adminService.CreateDefaultAdmin(); err != nil {
		log.Printf("Failed to create default admin: %v", err)
	}

	// Setup Gin router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	beatHandler := handlers.NewBeatHandler(beatService, objectStore, archiveService, auditService, cfg)
	downloadHandler := handlers.NewDownloadHandler(beatService, objectStore, downloadService, auditService)
	purchaseHandler := handlers.NewPurchaseHandler(purchaseService, beatService, userService, receiptService, emailService, cfg)
	adminHandler := handlers.NewAdminHandler(userService, beatService, auditService)

	// Health check outside API group (no /api/v1 prefix)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Setup routes
	api := router.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		// Catch-all OPTIONS handler for CORS preflight requests
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", middleware.Auth(authService), authHandler.Logout)
			auth.POST("/password/forgot", authHandler.ForgotPassword)
			auth.POST("/password/reset", authHandler.ResetPassword)
		}

		// Public beat catalog
		beats := api.Group("/beats")
		{
			beats.GET("", beatHandler.List)
			beats.GET("/:id", beatHandler.Get)
			beats.GET("/:id/thumbnail", downloadHandler.Thumbnail)
			beats.POST("/:id/like", beatHandler.Like)
		}

		// Download and stream accept anonymous requests for free beats; the
		// authorizer decides per beat. Token may arrive via query param so
		// <audio> elements can play gated beats.
		gated := api.Group("/beats")
		gated.Use(handlers.TokenFromQuery())
		gated.Use(middleware.OptionalAuth(authService))
		{
			gated.GET("/:id/download", downloadHandler.Download)
			gated.GET("/:id/stream", downloadHandler.Stream)
		}

		// Authenticated beat management
		beatsAuth := api.Group("/beats")
		beatsAuth.Use(middleware.Auth(authService))
		{
			uploadGroup := beatsAuth.Group("")
			uploadGroup.Use(middleware.UploadRateLimit(redisClient, cfg))
			{
				uploadGroup.POST("", beatHandler.Upload)
			}
			beatsAuth.PUT("/:id", beatHandler.Update)
			beatsAuth.DELETE("/:id", beatHandler.Delete)
		}

		// User routes
		user := api.Group("/user")
		user.Use(middleware.Auth(authService))
		{
			user.GET("/profile", userHandler.GetProfile)
			user.PUT("/profile", userHandler.UpdateProfile)
			user.GET("/beats", beatHandler.MyBeats)
		}

		// Purchases
		purchases := api.Group("/purchases")
		purchases.Use(middleware.Auth(authService))
		{
			purchases.POST("", purchaseHandler.Create)
			purchases.GET("", purchaseHandler.List)
			purchases.GET("/:id", purchaseHandler.Get)
			purchases.GET("/:id/receipt", purchaseHandler.Receipt)
		}

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.Auth(authService))
		admin.Use(middleware.AdminOnly())
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)

			// Destructive account and listing actions rate limit via the
			// audit log, with a 1-hour block on runaway patterns
			guarded := admin.Group("")
			guarded.Use(middleware.TagAction("admin_moderation"))
			guarded.Use(middleware.AdminActionRateLimit(auditService, redisClient, 10, 10))
			{
				guarded.PUT("/users/:id/active", adminHandler.SetUserActive)
				guarded.PUT("/beats/:id/active", adminHandler.SetBeatActive)
			}
		}

		// Payment webhooks
		api.POST("/stripe/webhook", purchaseHandler.HandleStripeWebhook)
	}

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  120 * time.Second, // 2 min for large audio uploads
		WriteTimeout: 120 * time.Second, // 2 min for large responses
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
