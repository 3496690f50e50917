package main

import (
	"context"
	"strings"
	"time"

	"github.com/rashenal/navigator/internal/bootstrap"
	"github.com/rashenal/navigator/internal/configstore"
	"github.com/rashenal/navigator/internal/facade"
	"github.com/rashenal/navigator/internal/handlers"
	"github.com/rashenal/navigator/internal/ledger"
	"github.com/rashenal/navigator/pkg/config"
	"github.com/rashenal/navigator/pkg/database"
	"github.com/rashenal/navigator/pkg/kafka"
	"github.com/rashenal/navigator/pkg/llm"
	"github.com/rashenal/navigator/pkg/logging"
	"github.com/rashenal/navigator/pkg/monitoring"
	"github.com/rashenal/navigator/pkg/redis"
	"github.com/rashenal/navigator/pkg/server"
	"github.com/rashenal/navigator/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("navigator")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Navigator (AI Cost Optimization API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	redisURL := config.RequireEnv("REDIS_URL")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Ensure the usage ledger schema exists before anything writes to it
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := database.ApplySchema(schemaCtx, db, logger)
	schemaCancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	// Connect to Redis for config persistence
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := redis.NewClientFromURL(ctx, redisURL)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Optional Kafka usage-event pipeline
	var producer *kafka.Producer
	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		producer, err = kafka.NewProducer(strings.Split(brokers, ","), "navigator", logger)
		if err != nil {
			logger.WithError(err).Warn("Kafka producer unavailable; usage events disabled")
			producer = nil
		} else {
			defer producer.Close()
		}
	}

	// Model backends: local runtime plus two remote tiers
	localBaseURL := config.GetEnv("LOCAL_LLM_API_URL", "http://localhost:11434/v1")
	localModel := config.GetEnv("LOCAL_LLM_MODEL", "llama3.2")
	localCfg := llm.Config{Provider: "ollama", Model: localModel, APIURL: localBaseURL}

	cheapCfg := llm.LoadConfigPrefixed("CHEAP")
	premiumCfg := llm.LoadConfigPrefixed("PREMIUM")

	localProvider, err := llm.NewProvider(localCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure local model provider")
	}
	cheapProvider, err := llm.NewProvider(cheapCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure remote-cheap provider")
	}
	premiumProvider, err := llm.NewProvider(premiumCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure remote-premium provider")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("navigator", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("navigator", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("local_runtime", monitoring.HTTPServiceHealthCheck("local-runtime", strings.TrimSuffix(localBaseURL, "/v1")+"/api/tags"))
	if producer != nil {
		healthChecker.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(producer.GetClient()))
	}
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
		"REDIS_URL":    redisURL,
	}))

	// Domain metrics
	facadeMetrics := &facade.Metrics{}
	facadeMetrics.Decisions, facadeMetrics.Tokens, facadeMetrics.Latency = metricsCollector.CreateRoutingMetrics()
	facadeMetrics.CacheLookups, facadeMetrics.CacheEntries = metricsCollector.CreateCacheMetrics()

	// Assemble and bootstrap the optimization layer
	var publisher ledger.EventPublisher
	if producer != nil {
		publisher = producer
	}
	supervisor := bootstrap.New(bootstrap.Deps{
		Ledger:          ledger.New(db, publisher, logger),
		ConfigStore:     configstore.New(redisClient, logger),
		LocalProvider:   localProvider,
		LocalBaseURL:    localBaseURL,
		LocalModel:      localModel,
		CheapProvider:   cheapProvider,
		PremiumProvider: premiumProvider,
		FacadeMetrics:   facadeMetrics,
		Logger:          logger,
	})

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	health := supervisor.Initialize(bootCtx)
	bootCancel()
	if !health.Overall {
		logger.WithField("health", health).Warn("Starting with degraded component health")
	}

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "navigator", healthChecker, metricsCollector)
	handlers.New(supervisor, logger).RegisterRoutes(router)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("navigator", "18090")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
