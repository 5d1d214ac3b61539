package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/incidentops/teams-copilot/internal/config"
	"github.com/incidentops/teams-copilot/internal/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server hosts the Bot Framework activity endpoint, the proactive messaging
// API, health and status probes, and the Prometheus scrape path.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *logrus.Logger
	startedAt  time.Time
}

// New builds the server and its route table
func New(
	cfg *config.Config,
	messages *handlers.MessageHandler,
	proactive *handlers.ProactiveHandler,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/messages", messages.ServeMessages).Methods(http.MethodPost)
	router.HandleFunc("/api/send-message", proactive.SendMessage).Methods(http.MethodPost)
	router.HandleFunc("/api/initiate-chat", proactive.InitiateChat).Methods(http.MethodPost)
	router.HandleFunc("/api/broadcast-message", proactive.Broadcast).Methods(http.MethodPost)
	router.HandleFunc("/api/conversation-references", proactive.References).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	if cfg.Monitoring.Metrics.Enabled {
		router.Handle(cfg.Monitoring.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	router.Use(s.logRequests)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Bot.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving; it blocks until the listener fails or Shutdown runs
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// handleStatus reports which collaborators are configured, mirroring the
// health surface operators use to verify a deployment
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"bot_name":       s.cfg.Bot.Name,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"features": map[string]bool{
			"azure_openai":      s.cfg.Azure.Endpoint != "",
			"web_search":        s.cfg.Tavily.APIKey != "",
			"incident_pipeline": s.cfg.Incident.PublishBaseURL != "",
			"redis_tracker":     s.cfg.Storage.Redis.Enabled,
			"rate_limiting":     s.cfg.RateLimit.Enabled,
			"metrics":           s.cfg.Monitoring.Metrics.Enabled,
		},
		"storage": map[string]string{
			"type": s.cfg.Storage.Type,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("Request handled")
	})
}
