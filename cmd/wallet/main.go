package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"banking-settlement/internal/config"
	"banking-settlement/internal/dedup"
	"banking-settlement/internal/events"
	"banking-settlement/internal/handler"
	"banking-settlement/internal/repository"
	"banking-settlement/internal/router"
	"banking-settlement/internal/sub"
	"banking-settlement/internal/usecase/ledger"
)

const defaultGroupID = "wallet-ledger"

func main() {
	cfg := config.Load()
	if cfg.GroupID == "" {
		cfg.GroupID = defaultGroupID
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("[Wallet] failed to init logger: %v", err)
	}
	defer logger.Sync()

	pool, err := config.ConnectDB()
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Bus.PublishAttempts, cfg.Bus.PublishBackoff)
	if err != nil {
		logger.Fatal("kafka producer init failed", zap.Error(err))
	}
	defer publisher.Close()

	svc := ledger.New(repository.NewWalletRepo(pool), publisher, cfg.Ledger, logger)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	defer rdb.Close()

	consumer, err := events.NewConsumer(
		cfg.KafkaBrokers,
		cfg.GroupID,
		sub.WalletHandlers(svc),
		events.RetryPolicy{MaxAttempts: cfg.Bus.ConsumeAttempts, Backoff: cfg.Bus.ConsumeBackoff},
		publisher,
		dedup.NewRedis(rdb),
		cfg.Bus.DedupTTL,
		logger,
	)
	if err != nil {
		logger.Fatal("consumer init failed", zap.Error(err))
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer stopped", zap.Error(err))
			stop()
		}
	}()

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router.Wallet(handler.NewWalletHandler(svc)),
	}
	go func() {
		logger.Info("wallet ledger listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
}
