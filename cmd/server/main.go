// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	credhandler "attestor/internal/credential/handler"
	credmetrics "attestor/internal/credential/metrics"
	"attestor/internal/credential/service"
	"attestor/internal/credential/store"
	"attestor/internal/jwttoken"
	"attestor/internal/ledger"
	"attestor/internal/platform/config"
	"attestor/internal/platform/database"
	"attestor/internal/platform/health"
	"attestor/internal/platform/kafka"
	"attestor/internal/platform/kafka/producer"
	"attestor/internal/platform/logger"
	platformredis "attestor/internal/platform/redis"
	"attestor/internal/skills"
	httptransport "attestor/internal/transport/http"
	"attestor/internal/transport/server"
	"attestor/pkg/envelope"
	"attestor/pkg/platform/audit"
	"attestor/pkg/platform/circuit"
	"attestor/pkg/platform/middleware/auth"
	"attestor/pkg/platform/middleware/request"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	log.Info("initializing attestor",
		"addr", cfg.Server.Addr,
		"sealed_payloads", cfg.Sealing.Passphrase != "",
		"skills_enabled", cfg.Skills.BaseURL != "",
	)

	healthHandler := health.New(os.Getenv("ENVIRONMENT"))

	// Storage: Postgres when configured, in-memory otherwise.
	var recordStore store.Store
	pool, err := database.New(database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // shutdown path
		recordStore = store.NewPostgres(pool.DB())
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	} else {
		log.Warn("DATABASE_URL not set, using in-memory record store")
		recordStore = store.NewInMemoryStore()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	// Ledger gateway; the in-memory ledger keeps local development working
	// without an anchoring backend.
	var ledgerClient ledger.Client
	if cfg.Ledger.BaseURL != "" {
		ledgerClient = ledger.NewGateway(cfg.Ledger.BaseURL, cfg.Ledger.APIKey, cfg.Ledger.IssuerRef,
			ledger.WithConfirmWindow(cfg.Ledger.ConfirmWindow),
			ledger.WithPollInterval(cfg.Ledger.PollInterval),
		)
	} else {
		log.Warn("LEDGER_GATEWAY_URL not set, using in-memory ledger")
		ledgerClient = ledger.NewMemory()
	}
	if redisClient != nil {
		ledgerClient = ledger.NewStatusCache(ledgerClient, redisClient.Client, cfg.Redis.StatusTTL, log)
	}

	// Audit trail: Kafka when configured, in-process log otherwise.
	auditSink, closeProducer, err := buildAuditSink(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeProducer()
	if cfg.Kafka.Brokers != "" {
		kafkaCheck := kafka.NewHealthChecker(cfg.Kafka.Brokers)
		healthHandler.RegisterCheck(kafkaCheck.Name(), func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return kafkaCheck.Check(ctx)
		})
	}
	auditor := audit.NewPublisher(auditSink,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditor.Close()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(credmetrics.New()),
		service.WithAuditor(auditor),
		service.WithSkillsRequired(cfg.Skills.Required),
	}

	if cfg.Skills.BaseURL != "" {
		extractor := skills.NewResilientExtractor(
			skills.NewHTTPClient(cfg.Skills.BaseURL, cfg.Skills.APIKey, cfg.Skills.Timeout),
			circuit.New("skills_extractor"),
			log,
		)
		opts = append(opts, service.WithExtractor(extractor))
	}

	if cfg.Sealing.Passphrase != "" {
		codec, err := envelope.New(cfg.Sealing.Passphrase, cfg.Sealing.Salt)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithCodec(codec))
	}

	manager := service.NewManager(recordStore, ledgerClient, opts...)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	var revocations auth.TokenRevocationChecker
	if redisClient != nil {
		revocations = jwttoken.NewRedisTRL(redisClient.Client)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Credentials:    credhandler.New(manager, log),
		Health:         healthHandler,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		Revocations:    revocations,
		Latency:        request.NewMetrics(),
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	srv := server.New(cfg.Server.Addr, router,
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
	)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}

// buildAuditSink returns the Kafka-backed sink when brokers are configured
// and an in-memory sink otherwise, plus a close func for the producer.
func buildAuditSink(cfg config.KafkaConfig, log *slog.Logger) (audit.Sink, func(), error) {
	if cfg.Brokers == "" {
		log.Warn("KAFKA_BROKERS not set, audit events stay in process")
		return audit.NewMemorySink(), func() {}, nil
	}

	prod, err := producer.New(producer.Config{
		Brokers:         cfg.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	return audit.NewKafkaSink(prod, cfg.AuditTopic), func() { _ = prod.Close() }, nil
}
