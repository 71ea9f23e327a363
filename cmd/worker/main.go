package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/events"
	"github.com/aksrustagi/PULL-backend-sub010/models"
	"github.com/aksrustagi/PULL-backend-sub010/storage"
	"github.com/aksrustagi/PULL-backend-sub010/workflow"
)

// The worker runs the event consumer and scheduled workflows without the HTTP
// surface. Deploy it separately when propagation volume outgrows the API pods.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("COPYENGINE_CONFIG"))
	if err != nil {
		log.Fatalf("[worker] failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewPostgres()
	if err != nil {
		log.Fatalf("[worker] failed to init storage: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatalf("[worker] failed to init schema: %v", err)
	}
	log.Println("[worker] PostgreSQL storage initialized")

	statusStore := storage.NewStatusStore(store.Redis())
	registry := workflow.NewRegistry(statusStore)

	engine := activities.NewEngineClient(cfg.Engine.BaseURL, time.Duration(cfg.Engine.TimeoutMS)*time.Millisecond)
	notifier := events.NewNotificationPublisher(cfg.Kafka)
	defer notifier.Close()

	library := activities.NewLibrary(store, engine, notifier)

	copyTrade := workflow.NewCopyTradeWorkflow(cfg.CopyTrade, cfg.Retry, library, library, store, registry, nil)
	fraud := workflow.NewFraudWorkflow(cfg.Fraud, cfg.Retry, library, library, store, registry)
	stats := workflow.NewStatsWorkflow(cfg.Stats, cfg.Retry, library, library, store, registry)

	scheduler := workflow.NewScheduler(fraud, stats,
		time.Duration(cfg.Fraud.ScanIntervalHours)*time.Hour,
		time.Duration(cfg.Stats.RefreshIntervalHours)*time.Hour)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	consumer := events.NewTradeConsumer(cfg.Kafka)
	defer consumer.Close()

	log.Println("[worker] consuming leader trades")
	err = consumer.Consume(ctx, func(ctx context.Context, trade models.LeaderTrade) error {
		go func() {
			runID := "copy-" + trade.OriginalOrderID
			if _, err := copyTrade.Propagate(context.Background(), runID, trade); err != nil {
				log.Printf("[worker] propagation for order %s failed: %v", trade.OriginalOrderID, err)
			}
		}()
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("[worker] trade consumer stopped: %v", err)
	}
	log.Println("[worker] shutting down")
}
