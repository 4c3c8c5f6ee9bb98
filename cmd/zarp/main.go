package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zarp/internal/app/session"
	kafkabroker "zarp/internal/infra/broker/kafka"
	"zarp/internal/infra/config"
	mongodb "zarp/internal/infra/db/mongo"
	ginserver "zarp/internal/infra/http/gin"
	"zarp/internal/infra/obs"
	"zarp/internal/infra/snapshot"
	"zarp/internal/infra/storage/memory"
	"zarp/internal/infra/submit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env, getenv("LOG_LEVEL", "info"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	obs.RegisterMetrics()

	var (
		inbox       session.Inbox
		mongoClient *mongodb.Client
	)
	if cfg.MongoURI != "" {
		mongoClient, err = mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			logger.Error("mongo connect failed", "error", err)
			os.Exit(1)
		}
		inbox = mongodb.NewEventInbox(mongoClient.DB, cfg.ClientID)
		logger.Info("event inbox backed by mongo", "database", cfg.MongoDB)
	} else {
		inbox = memory.NewEventInbox()
		logger.Info("event inbox in memory; dedupe does not survive restarts")
	}

	loader := snapshot.NewLoader(cfg.BackendBaseURL, cfg.SnapshotTimeout, logger)
	channels := kafkabroker.NewFactory(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, cfg.KafkaGroupPrefix, cfg.LiveRetryDelay, logger)
	submitter := submit.NewSubmitter(cfg.BackendBaseURL, cfg.SubmitTimeout, logger)
	manager := session.NewManager(loader, channels, submitter, inbox, logger)

	ready := func() error {
		if mongoClient != nil {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return mongoClient.Ping(pingCtx)
		}
		return nil
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: ready}, ginserver.Handlers{
		Session: ginserver.SessionHandler{Manager: manager, ClientID: cfg.ClientID, Logger: logger},
	})

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Live subscriptions are released before their sets are discarded.
	manager.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if mongoClient != nil {
		if err := mongoClient.Close(shutdownCtx); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}
	logger.Info("bye")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
