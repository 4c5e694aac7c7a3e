package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediaproof/blockchain"
	"mediaproof/config"
	"mediaproof/database"
	"mediaproof/detector"
	"mediaproof/handlers"
	"mediaproof/metrics"
	"mediaproof/middleware"
	"mediaproof/pipeline"
	"mediaproof/rabbitmq"
	"mediaproof/report"
	"mediaproof/storage"
	"mediaproof/version"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	metrics.Register()

	// Create database connection
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to create database connection: %v", err)
	}
	defer db.Close()

	// Ensure cases table exists
	if err := db.EnsureCasesTable(context.Background()); err != nil {
		log.Fatalf("Failed to ensure cases table: %v", err)
	}

	// Storage for uploads and report artifacts
	blobs, err := storage.NewBlobStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to create upload storage: %v", err)
	}
	compiler, err := report.NewCompiler(cfg.ReportDir)
	if err != nil {
		log.Fatalf("Failed to create report storage: %v", err)
	}

	// Detection adapter over the classifier service
	classifier := detector.NewClient(cfg.ClassifierURL, cfg.ClassifierModel, cfg.DetectionTimeout)
	det := detector.NewDetector(classifier, detector.NewFFmpegExtractor(cfg.FFmpegPath), detector.Options{
		SampleRate: cfg.VideoSampleRate,
		MaxFrames:  cfg.VideoMaxFrames,
		Timeout:    cfg.DetectionTimeout,
	})

	// Evidence anchorer; runs disabled when not configured
	anchorer := blockchain.Disabled()
	if cfg.AnchoringConfigured() {
		anchorer, err = blockchain.NewAnchorer(cfg.EthNetworkURL, cfg.EthPrivateKey, cfg.ContractAddress, cfg.AnchorTimeout)
		if err != nil {
			log.Errorf("Failed to initialize anchorer, continuing without anchoring: %v", err)
			anchorer = blockchain.Disabled()
		}
	} else {
		log.Info("Anchoring not configured, evidence anchoring disabled")
	}

	// Optional event publisher
	var publisher pipeline.EventPublisher
	if cfg.AMQPURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey)
		if err != nil {
			log.Errorf("Failed to initialize RabbitMQ publisher, continuing without events: %v", err)
		} else {
			publisher = pub
			defer pub.Close()
			log.Infof("RabbitMQ publisher initialized: exchange=%s, routing_key=%s", cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey)
		}
	}

	// The orchestrator is the only writer of case state
	orch := pipeline.NewOrchestrator(db, det, anchorer, compiler, blobs, publisher, cfg.MaxUploadBytes)
	h := handlers.NewHandlers(orch, db, cfg.MaxUploadBytes)

	// Setup HTTP server
	router := setupRouter(h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())

	api := router.Group("/api/detect")
	{
		api.POST("/analyze", h.AnalyzeMedia)
		api.GET("/case/:case_id", h.GetCase)
		api.GET("/cases", h.ListCases)
		api.GET("/report/:case_id", h.DownloadReport)
		api.POST("/report/:case_id/rebuild", h.RebuildReport)
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "mediaproof API running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "mediaproof",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, version.Get("mediaproof"))
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
