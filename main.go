package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/events"
	"github.com/aksrustagi/PULL-backend-sub010/handlers"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
	"github.com/aksrustagi/PULL-backend-sub010/workflow"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("COPYENGINE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewPostgres()
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatalf("failed to init schema: %v", err)
	}

	statusStore := storage.NewStatusStore(store.Redis())
	registry := workflow.NewRegistry(statusStore)

	engine := activities.NewEngineClient(cfg.Engine.BaseURL, time.Duration(cfg.Engine.TimeoutMS)*time.Millisecond)
	notifier := events.NewNotificationPublisher(cfg.Kafka)
	defer notifier.Close()

	library := activities.NewLibrary(store, engine, notifier)

	copyTrade := workflow.NewCopyTradeWorkflow(cfg.CopyTrade, cfg.Retry, library, library, store, registry, nil)
	fraud := workflow.NewFraudWorkflow(cfg.Fraud, cfg.Retry, library, library, store, registry)
	fanout := workflow.NewFanoutWorkflow(cfg.Fanout, cfg.Retry, library, library, store, registry)
	stats := workflow.NewStatsWorkflow(cfg.Stats, cfg.Retry, library, library, store, registry)

	scheduler := workflow.NewScheduler(fraud, stats,
		time.Duration(cfg.Fraud.ScanIntervalHours)*time.Hour,
		time.Duration(cfg.Stats.RefreshIntervalHours)*time.Hour)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Leader trade events trigger propagation runs keyed by the order ID, so
	// a redelivered event resumes the same run instead of duplicating it.
	consumer := events.NewTradeConsumer(cfg.Kafka)
	defer consumer.Close()
	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, trade models.LeaderTrade) error {
			go func() {
				runID := "copy-" + trade.OriginalOrderID
				if _, err := copyTrade.Propagate(context.Background(), runID, trade); err != nil {
					log.Printf("[main] propagation for order %s failed: %v", trade.OriginalOrderID, err)
				}
			}()
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("[main] trade consumer stopped: %v", err)
		}
	}()
	log.Println("[main] trade consumer started")

	// Set up router
	r := gin.Default()
	h := handlers.NewHandler(cfg, store, registry, copyTrade, fraud, fanout, stats)
	h.Register(r)

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(cfg.Server.Port)
	}

	log.Printf("Server starting on http://localhost:%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
