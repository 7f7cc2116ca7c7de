package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/predios-api/config"
	"github.com/yourusername/predios-api/handlers"
	"github.com/yourusername/predios-api/middleware"
	"github.com/yourusername/predios-api/utils"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Las dependencias se validan una sola vez al arranque; los handlers no
	// hacen chequeos de credenciales por petición.
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	if cfg.FiscalAPIURL == "" {
		logger.Fatal("FISCAL_API_URL is required")
	}

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	fiscalClient := utils.NewFiscalClient(cfg.FiscalAPIURL, time.Duration(cfg.FiscalTimeoutSeconds)*time.Second)

	// Setup router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "predios-api",
		})
	})

	facturacionHandler := handlers.NewFacturacionHandler(db, cfg, fiscalClient, logger)
	authHandler := handlers.NewAuthHandler(db, cfg)

	router.POST("/api/v1/auth/refresh", authHandler.Refresh)

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.JwtAuthMiddleware(cfg))
	{
		api.POST("/facturas/generar", facturacionHandler.GenerarFacturas)
		api.POST("/facturas/aprobar", middleware.RequireRole("admin"), facturacionHandler.AprobarFacturas)
		api.POST("/facturas/eliminar", middleware.RequireRole("admin"), facturacionHandler.EliminarFacturas)
		api.GET("/facturas", facturacionHandler.ListFacturas)
		api.GET("/facturas/:id", facturacionHandler.GetFactura)
		api.PUT("/facturas/:id/comprobante", facturacionHandler.RegistrarComprobante)
		api.POST("/cobros/verificar", facturacionHandler.VerificarCobros)
	}

	// Disparador programado: mismo barrido de cobros, autenticado por
	// secreto compartido.
	router.POST("/cron/verificar-cobros", middleware.APIKeyAuth(cfg.CronAPIKey), facturacionHandler.VerificarCobros)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	logger.Info("Starting predios-api server", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
