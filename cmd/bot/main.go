package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/handlers"
	"github.com/incidentops/teams-copilot/internal/i18n"
	"github.com/incidentops/teams-copilot/internal/middleware"
	"github.com/incidentops/teams-copilot/internal/scheduler"
	"github.com/incidentops/teams-copilot/internal/server"
	"github.com/incidentops/teams-copilot/internal/services/ai"
	"github.com/incidentops/teams-copilot/internal/services/incident"
	"github.com/incidentops/teams-copilot/internal/services/planner"
	"github.com/incidentops/teams-copilot/internal/services/search"
	"github.com/incidentops/teams-copilot/internal/services/state"
	"github.com/incidentops/teams-copilot/internal/services/status"
	"github.com/incidentops/teams-copilot/internal/services/store"
	"github.com/incidentops/teams-copilot/internal/teams"
	"github.com/incidentops/teams-copilot/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting Teams bot...")

	// Message log
	records, err := store.NewManager(&cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize message log")
	}
	defer records.Close()

	// Conversation references for proactive messaging
	refs, err := teams.NewReferenceStore(cfg.Storage.RefsPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize conversation reference store")
	}

	// Collaborators
	aiService := ai.NewAzureAI(&cfg.Azure, log)
	searchService := search.NewTavily(&cfg.Tavily, &cfg.Cache, log)
	statusClient := status.NewClient(cfg.Incident.PublishBaseURL, cfg.Incident.PublishTimeout, log)
	stateManager := state.NewManager(log)
	teamsClient := teams.NewClient(cfg.Bot.AppID, cfg.Bot.Name, log)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	rateLimiter := middleware.NewRateLimiter(cfg, log)
	metrics := middleware.NewMetrics()

	// Incident pipeline
	tracker, err := buildTracker(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize summary tracker")
	}

	pipeline := incident.NewPipeline(
		&cfg.Incident,
		records,
		incident.NewClassifier(aiService, cfg.Incident.MinConfidence, log),
		incident.NewAggregator(records, cfg.Bot.Name, cfg.Incident.FallbackWindow),
		tracker,
		incident.NewGenerator(aiService, log),
		incident.NewPublisher(cfg.Incident.PublishBaseURL, cfg.Incident.PublishTimeout, log),
		metrics,
		cfg.Bot.Name,
		log,
	)

	plannerService := planner.New(aiService, stateManager, searchService, statusClient, localizer, metrics, log)

	messageHandler := handlers.NewMessageHandler(
		cfg,
		teamsClient,
		refs,
		records,
		plannerService,
		pipeline,
		rateLimiter,
		localizer,
		metrics,
		log,
	)
	proactiveHandler := handlers.NewProactiveHandler(
		teamsClient,
		refs,
		stateManager,
		localizer,
		cfg.I18n.DefaultLanguage,
		metrics,
		log,
	)

	srv := server.New(cfg, messageHandler, proactiveHandler, log)

	sweeper := scheduler.New(pipeline, cfg.Incident.SweepInterval, log)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start sweep scheduler")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Server stopped unexpectedly")
		}
	}

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}

	log.Info("Bot stopped")
}

// buildTracker selects the summary tracker backend. Redis gives the tracker
// durability across restarts; the in-memory tracker matches a single-process
// deployment.
func buildTracker(cfg *config.Config, log *logrus.Logger) (incident.Tracker, error) {
	if !cfg.Storage.Redis.Enabled {
		return incident.NewMemoryTracker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	return incident.NewRedisTracker(client, cfg.Incident.IdleExpiry, log)
}
