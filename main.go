package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"empresa-service/internal/clients"
	"empresa-service/internal/config"
	"empresa-service/internal/handlers"
	"empresa-service/internal/metrics"
	"empresa-service/internal/middleware"
	"empresa-service/internal/models"
	natsClient "empresa-service/internal/nats"
	"empresa-service/internal/redis"
	"empresa-service/internal/repository"
	"empresa-service/internal/services"
)

func main() {
	// Load configuration
	cfg := config.New()

	logger := newLogger(cfg.App)

	// Initialize database connection
	db, err := initDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Auto-migrate models
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis connection. Sessions live here, so unlike the other
	// collaborators this one is mandatory.
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")

	// Initialize NATS connection for event publishing
	var nc *natsClient.Client
	nc, err = natsClient.NewClient(cfg.NATS.URL)
	if err != nil {
		log.Printf("Warning: Failed to connect to NATS: %v", err)
		log.Println("Event publishing will be disabled")
	} else {
		log.Println("Connected to NATS successfully")
		defer nc.Close()
	}

	// Initialize the in-memory wizard metrics store and bridge it to Prometheus
	metricsStore := metrics.NewStore(metrics.Settings{
		AbandonThreshold: cfg.Metrics.AbandonThreshold,
		LatencyWarnP95:   cfg.Metrics.LatencyWarnP95Seconds,
		WindowSize:       cfg.Metrics.LatencyWindowSize,
		ErrorRingSize:    cfg.Metrics.ErrorRingSize,
	}, logger)
	metricsStore.SetLatencySink(metrics.PrometheusSink())

	// Initialize repositories
	empresaRepo := repository.NewEmpresaRepository(db)

	// Initialize clients
	notificationClient := clients.NewNotificationClient(cfg.Notification.ServiceURL, cfg.Notification.APIKey)
	documentServiceURL := getEnv("DOCUMENT_SERVICE_URL", "http://localhost:8088")
	documentClient := clients.NewDocumentClient(documentServiceURL)

	// Initialize the wizard service
	var events services.EventPublisher
	if nc != nil {
		events = nc
	}
	wizardSvc := services.NewWizardService(
		redisClient,
		empresaRepo,
		metricsStore,
		documentClient,
		notificationClient,
		events,
		cfg.Wizard,
		logger,
	)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	wizardHandler := handlers.NewWizardHandler(wizardSvc, logger)
	metricsHandler := handlers.NewMetricsHandler(metricsStore, redisClient)

	// Setup router
	router := setupRouter(cfg, logger, healthHandler, wizardHandler, metricsHandler)

	// Setup server
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting empresa-service on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close Redis connection
	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis connection: %v", err)
	}

	log.Println("Server exited")
}

func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	wizardHandler *handlers.WizardHandler,
	metricsHandler *handlers.MetricsHandler,
) *gin.Engine {
	// Set Gin mode
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"http://localhost:3000", // Admin portal (local)
		"http://localhost:4200", // Wizard frontend (local)
	}
	if extra := os.Getenv("CORS_ALLOWED_ORIGINS"); extra != "" {
		corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, splitCSV(extra)...)
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Correlation-ID", "X-Staff-Token"}
	corsConfig.AllowCredentials = true

	// Global middleware
	router.Use(cors.New(corsConfig))                // CORS
	router.Use(gin.Recovery())                      // Panic recovery
	router.Use(middleware.CorrelationID())          // Correlation IDs
	router.Use(middleware.StructuredLogger(logger)) // Structured logging + request counts

	// Metrics endpoint (Prometheus scraping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/wizard/sessions")
		{
			sessions.POST("", wizardHandler.StartSession)
			sessions.GET("/:key/step", wizardHandler.GetStep)
			sessions.POST("/:key/step", wizardHandler.SubmitStep)
			sessions.POST("/:key/heartbeat", wizardHandler.Heartbeat)
			sessions.POST("/:key/finish", wizardHandler.Finish)
			sessions.DELETE("/:key", wizardHandler.Cancel)
		}
	}

	// Staff-only operational endpoints
	internal := router.Group("/internal/wizard")
	internal.Use(middleware.StaffOnly(cfg.App.StaffToken))
	{
		internal.GET("/metrics", metricsHandler.Snapshot)
		internal.POST("/metrics/reset", metricsHandler.Reset)
		internal.GET("/sessions", metricsHandler.Sessions)
	}

	return router
}

func newLogger(cfg config.AppConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Empresa{},
		&models.EmpresaEndereco{},
		&models.EmpresaContato{},
		&models.Usuario{},
		&models.EmpresaUsuario{},
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
