package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paymentcore/config"
	"paymentcore/internal/database"
	"paymentcore/internal/domain"
	"paymentcore/internal/eventbus"
	"paymentcore/internal/fraud"
	"paymentcore/internal/idempotency"
	"paymentcore/internal/orchestrator"
	"paymentcore/internal/provider"
	"paymentcore/internal/repository"
	"paymentcore/internal/router"
	"paymentcore/internal/webhook"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("database migrate failed", zap.Error(err))
	}

	txRepo := repository.NewTransactionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	cache := idempotency.NewCache(cfg.Idempotency.TTL)
	gate := idempotency.NewGate(cache, txRepo)

	threshold, err := decimal.NewFromString(cfg.Fraud.ScoreThreshold)
	if err != nil {
		threshold = fraud.DefaultThreshold
	}
	scorer := fraud.NewScorer(cfg.Fraud.Enabled, threshold)

	bus := eventbus.NewPartitionedBus(cfg.EventBus.Partitions, log)

	providers := provider.Registry{
		string(domain.MethodCard):   provider.NewMpesaAdapter(cfg.MpesaAdapter.BaseURL, cfg.MpesaAdapter.Email, cfg.MpesaAdapter.Password, cfg.MpesaAdapter.WebhookBase, log),
		string(domain.MethodBank):   provider.NewStubAdapter(),
		string(domain.MethodWallet): provider.NewCryptoAdapter(cfg.CryptoAdapter.BaseURL, cfg.CryptoAdapter.Email, cfg.CryptoAdapter.Password, log),
	}

	svc := orchestrator.NewService(txRepo, auditRepo, webhookRepo, gate, scorer, bus, providers, log, 30*time.Second, cfg.Webhook.RetryAttempts)

	ctx, cancel := context.WithCancel(context.Background())

	if err := bus.Subscribe(ctx, domain.TopicPaymentEvents, domain.ConsumerGroupProcessor, func(event eventbus.PaymentEvent) error {
		if event.EventType != domain.EventPaymentInitiated {
			return nil
		}
		return svc.Process(ctx, event.TransactionID)
	}); err != nil {
		log.Fatal("event bus subscribe failed", zap.Error(err))
	}

	dispatcher := webhook.NewDispatcher(webhookRepo, auditRepo, log, cfg.Webhook.Secret, cfg.Webhook.PollPeriod, cfg.Webhook.RequestTimeout, cfg.Webhook.RetryBaseDelay, cfg.Webhook.BatchSize)
	go dispatcher.Run(ctx)

	engine := router.Setup(cfg.Server.Env, log, svc)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	_ = bus.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
