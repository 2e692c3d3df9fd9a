package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notification-service/internal/config"
	"notification-service/internal/gateway"
	"notification-service/internal/httpserver"
	"notification-service/internal/mqhandler"
	"notification-service/internal/pubsub"
	"notification-service/internal/recipient"
	"notification-service/internal/repository"
	"notification-service/internal/service"
	"notification-service/internal/store"
	"notification-service/pkg/db"
	"notification-service/pkg/logger"
	"notification-service/pkg/mq"
	redisclient "notification-service/pkg/redis"
	"notification-service/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting notification-service...",
		zap.String("transport_strategy", cfg.Transport.Strategy),
		zap.String("db_host", cfg.DB.Host),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// Durable store: Postgres when configured, in-process otherwise.
	var notificationStore store.Store
	var readiness httpserver.Pinger
	if cfg.DB.Host != "" {
		dbConn, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		defer dbConn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := repository.EnsureSchema(ctx, dbConn); err != nil {
			cancel()
			log.Fatal("Failed to ensure schema", zap.Error(err))
		}
		cancel()

		notificationStore = repository.NewNotificationRepository(dbConn, log)
		readiness = dbConn
	} else {
		log.Warn("No database configured, using in-memory store")
		notificationStore = store.NewMemory()
	}

	// Pub/sub backend: Redis when configured, in-process otherwise.
	var broker pubsub.Broker
	var deduper *util.Deduper
	var retries *util.RetryCounter
	if cfg.Redis.Addr != "" {
		rdb := redisclient.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		broker = pubsub.NewRedisBroker(rdb, log)
		deduper = util.NewDeduperWithLogger(rdb, 24*time.Hour, log)
		retries = util.NewRetryCounter(rdb, time.Hour)
	} else {
		log.Warn("No redis configured, using in-memory broker")
		broker = pubsub.NewMemoryBroker()
	}

	// MQ: inbound notify.requested, outbound email.requested and the DLQ.
	var emails service.EmailPublisher
	var dlq mqhandler.DeadLetterPublisher
	var consumer *mq.Consumer
	if cfg.MQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		emails = service.NewBreakerEmailPublisher(publisher)
		dlq = publisher

		consumer, err = mq.NewConsumer(cfg.MQ.URL, mqhandler.QueueName, mqhandler.RoutingKey, log)
		if err != nil {
			log.Fatal("Failed to init MQ consumer", zap.Error(err))
		}
		defer consumer.Close()
	} else {
		log.Warn("No MQ configured, only the HTTP trigger is active")
	}

	resolver := recipient.NewResolver(log)
	dispatcher := service.NewDispatcher(notificationStore, broker, resolver, emails, log)

	if consumer != nil {
		handler := mqhandler.NewNotifyRequestedHandler(dispatcher, deduper, retries, dlq, log)
		consumer.SetHandler(handler.Handle)
		go func() {
			log.Info("Starting notify.requested consumer...")
			if err := consumer.StartConsuming(); err != nil {
				log.Fatal("notify.requested consumer failed", zap.Error(err))
			}
		}()
	}

	gw, err := gateway.New(cfg.Transport, broker, log)
	if err != nil {
		log.Fatal("Failed to init transport gateway", zap.Error(err))
	}

	notificationHandler := httpserver.NewNotificationHandler(notificationStore, dispatcher, log)
	router := httpserver.NewRouter(notificationHandler, gw, cfg.JWT.Secret, readiness)

	port := cfg.Server.Port
	if port == "" {
		port = ":8086"
	}
	srv := &http.Server{
		Addr:    port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notification-service is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification-service gracefully...")

	if consumer != nil {
		consumer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	// Drain queued pushes before the process exits.
	dispatcher.Close()

	log.Info("notification-service shutdown complete")
}
