// main.go
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/inngest/inngestgo"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/patientsignal/signal-workflows/internal/analyzer"
	"github.com/patientsignal/signal-workflows/internal/api"
	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/database"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/providers"
	"github.com/patientsignal/signal-workflows/internal/search"
	"github.com/patientsignal/signal-workflows/services"
	"github.com/patientsignal/signal-workflows/workflows"
)

func main() {
	envErr := godotenv.Load()
	if envErr != nil {
		envErr = godotenv.Load("dev.env")
	}

	cfg := config.Load()
	logging.Setup(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Info().Err(envErr).Msg("No .env or dev.env file loaded")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("port", cfg.Port).
		Str("database_host", cfg.Database.Host).
		Str("database_name", cfg.Database.Name).
		Str("time_zone", cfg.Location().String()).
		Msg("Configuration loaded")

	ctx := context.Background()
	dbClient, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbClient.Close()
	if err := dbClient.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Msg("Successfully connected to database")

	repoManager := services.NewRepositoryManager(dbClient)

	if cfg.Environment == "development" || cfg.Environment == "" {
		os.Unsetenv("INNGEST_SIGNING_KEY")
		cfg.InngestSigningKey = ""
		log.Info().Msg("Running in development mode - signing key verification disabled")
	}

	// Search indexes are optional; a crawl never fails because one is down
	var (
		indexers    []search.Indexer
		crawlOpts   []services.CrawlOption
		textIndex   *search.TypesenseIndex
		vectorIndex *search.QdrantIndex
	)
	if cfg.Typesense.Enabled {
		textIndex = search.NewTypesenseIndex(cfg.Typesense)
		if err := textIndex.EnsureCollection(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to create Typesense collection")
		}
		indexers = append(indexers, textIndex)
		crawlOpts = append(crawlOpts, services.WithTextSearch(textIndex))
		log.Info().Str("collection", cfg.Typesense.Collection).Msg("Typesense collection is ready")
	}
	if cfg.Qdrant.Enabled {
		embedder := search.NewOpenAIEmbedder(cfg.Platforms.ChatGPT.APIKey, cfg.EmbeddingModel)
		vectorIndex, err = search.NewQdrantIndex(cfg.Qdrant, embedder)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Qdrant client")
		}
		if err := vectorIndex.EnsureCollection(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to create Qdrant collection")
		}
		indexers = append(indexers, vectorIndex)
		crawlOpts = append(crawlOpts, services.WithSimilarSearch(vectorIndex))
		log.Info().Str("collection", cfg.Qdrant.Collection).Msg("Qdrant collection is ready")
	}
	if len(indexers) > 0 {
		crawlOpts = append(crawlOpts, services.WithIndexer(search.NewFanout(indexers...)))
	}

	notifier := workflows.NewSlackNotifier(cfg.SlackWebhookURL)
	if notifier.Enabled() {
		crawlOpts = append(crawlOpts, services.WithAlerter(notifier))
	}

	costService := services.NewCostService()
	registry := providers.NewRegistry(cfg, costService)
	for platform, ok := range registry.Status() {
		log.Info().Str("platform", string(platform)).Bool("available", ok).Msg("Platform credential check")
	}

	scoreService := services.NewScoreService(cfg, repoManager)
	crawlService := services.NewCrawlService(cfg, repoManager, registry, analyzer.New(cfg), scoreService, crawlOpts...)
	competitorService := services.NewCompetitorService(repoManager)
	promptService := services.NewPromptService(repoManager)

	client, err := inngestgo.NewClient(
		inngestgo.ClientOpts{
			AppID:    "signal-workflows",
			EventKey: inngestgo.StrPtr(cfg.InngestEventKey),
			Env:      inngestgo.StrPtr(cfg.Environment),
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Inngest client")
	}

	crawlProcessor := workflows.NewCrawlProcessor(crawlService, notifier)
	crawlProcessor.SetClient(client)
	crawlProcessor.CrawlHospital()

	scheduledProcessor := workflows.NewScheduledProcessor(cfg, crawlService, competitorService, notifier)
	scheduledProcessor.SetClient(client)
	scheduledProcessor.DailyCrawlSweep()
	scheduledProcessor.WeeklyCompetitorDetect()
	scheduledProcessor.WeeklyCrawlHealth()
	log.Info().Msg("All processors initialized and functions registered")

	// Without an event key there is nothing to receive the event, so run in-process
	var dispatcher api.Dispatcher = crawlProcessor
	if cfg.InngestEventKey == "" {
		dispatcher = api.NewBackgroundDispatcher(crawlService)
		log.Warn().Msg("INNGEST_EVENT_KEY not set - API crawls run in-process")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/inngest", client.Serve())

	// Root endpoint for ALB health check
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"service":"signal-workflows","status":"running"}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := api.NewServer(api.Config{
		CronSecret:   cfg.CronSecret,
		CronSchedule: cfg.Crawl.Cron,
	}, crawlService, scoreService, competitorService, promptService, dispatcher)
	server.Register(mux)

	log.Info().Str("port", cfg.Port).Msg("Starting Patient Signal workflows service")
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatal().Err(err).Msg("HTTP server stopped")
	}
}
