package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicreport/classify"
	"civicreport/config"
	"civicreport/database"
	"civicreport/dedup"
	"civicreport/dispatch"
	"civicreport/email"
	"civicreport/handlers"
	"civicreport/metrics"
	"civicreport/openai"
	"civicreport/pipeline"
	"civicreport/priority"
	"civicreport/rabbitmq"
	"civicreport/service"
	"civicreport/stubclassify"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	metrics.Register()

	// Initialize database
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureTables(); err != nil {
		log.Fatalf("Failed to ensure tables: %v", err)
	}

	// Select the classifier backend
	var classifier classify.Client
	if cfg.ClassifierProvider == "stub" || cfg.OpenAIAPIKey == "" {
		classifier = stubclassify.NewClient()
	} else {
		classifier = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	log.Infof("Classifier provider=%s", classifier.SourceName())

	// Initialize RabbitMQ publisher
	var publisher *rabbitmq.Publisher
	if cfg.RabbitMQ.Host != "" {
		publisher, err = rabbitmq.NewPublisher(
			cfg.RabbitMQ.GetAMQPURL(),
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.ReportRoutingKey,
		)
		if err != nil {
			log.Errorf("Failed to initialize RabbitMQ publisher: %v", err)
			// Continue without publisher - ingestion will still work
			publisher = nil
		}
	}

	// Build the ingestion pipeline
	dedupEngine := dedup.NewEngine(db, classifier, dedup.Options{
		Window:        cfg.DedupWindow,
		Timeout:       cfg.ClassifierTimeout,
		SpatialFilter: cfg.DedupSpatialFilter,
		CellLevel:     cfg.DedupCellLevel,
	})
	priorityClassifier := priority.NewClassifier(classifier, cfg.ClassifierTimeout)

	var ingestPublisher pipeline.Publisher
	if publisher != nil {
		ingestPublisher = publisher
	}
	ingestPipeline := pipeline.New(db, dedupEngine, priorityClassifier, ingestPublisher)

	// Select the notification sink
	var sink dispatch.Sink
	switch {
	case cfg.SendGridAPIKey != "":
		sink = email.NewSender(cfg)
	case publisher != nil:
		sink = dispatch.NewAMQPSink(publisher, cfg.RabbitMQ.NotifyRoutingKeyBase)
	default:
		sink = dispatch.LogSink{}
	}
	dispatcher := dispatch.NewDispatcher(sink, cfg.Managers, db)

	// Initialize the diff cycle service
	diffService := service.NewService(cfg, db, dispatcher)

	// Initialize handlers
	h := handlers.NewHandlers(ingestPipeline, db, diffService)

	// Setup HTTP server
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/report", h.Report)
	router.POST("/read_report", h.ReadReport)
	router.POST("/update_status", h.UpdateStatus)
	router.POST("/run_diff_cycle", h.RunDiffCycle)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start the diff cycle service
	diffService.Start()

	// Start HTTP server in a goroutine
	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	diffService.Stop()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Errorf("Failed to close RabbitMQ publisher: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
