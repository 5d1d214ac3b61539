package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Activity metrics
	activitiesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teams_bot_activities_received_total",
		Help: "Total number of activities received",
	}, []string{"conversation_type"})

	activitiesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teams_bot_activities_processed_total",
		Help: "Total number of activities processed",
	}, []string{"status"})

	// Planner metrics
	plannerActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teams_bot_planner_actions_total",
		Help: "Total number of planner actions executed",
	}, []string{"action", "status"})

	// LLM metrics
	llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teams_bot_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"purpose", "status"})

	llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teams_bot_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"purpose", "status"})

	// Incident pipeline metrics
	incidentClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teams_bot_incident_classifications_total",
		Help: "Total number of incident classifications by verdict",
	}, []string{"verdict"})

	summaryPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teams_bot_incident_summary_publishes_total",
		Help: "Total number of incident summary publish attempts",
	}, []string{"status"})

	trackedIncidents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teams_bot_tracked_incidents",
		Help: "Number of incidents currently being tracked",
	})

	// Proactive messaging metrics
	proactiveMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teams_bot_proactive_messages_total",
		Help: "Total number of proactive message sends",
	}, []string{"status"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teams_bot_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordActivityReceived records a received activity
func (m *Metrics) RecordActivityReceived(conversationType string) {
	activitiesReceived.WithLabelValues(conversationType).Inc()
}

// RecordActivityProcessed records a processed activity
func (m *Metrics) RecordActivityProcessed(status string) {
	activitiesProcessed.WithLabelValues(status).Inc()
}

// RecordPlannerAction records an executed planner action
func (m *Metrics) RecordPlannerAction(action, status string) {
	plannerActions.WithLabelValues(action, status).Inc()
}

// RecordLLMRequest records an LLM request
func (m *Metrics) RecordLLMRequest(purpose, status string, duration time.Duration) {
	llmRequestDuration.WithLabelValues(purpose, status).Observe(duration.Seconds())
	llmRequestsTotal.WithLabelValues(purpose, status).Inc()
}

// RecordIncidentClassification records a classifier verdict
func (m *Metrics) RecordIncidentClassification(verdict string) {
	incidentClassifications.WithLabelValues(verdict).Inc()
}

// RecordSummaryPublish records a summary publish attempt
func (m *Metrics) RecordSummaryPublish(status string) {
	summaryPublishes.WithLabelValues(status).Inc()
}

// SetTrackedIncidents sets the number of currently tracked incidents
func (m *Metrics) SetTrackedIncidents(count float64) {
	trackedIncidents.Set(count)
}

// RecordProactiveMessage records a proactive message send
func (m *Metrics) RecordProactiveMessage(status string) {
	proactiveMessages.WithLabelValues(status).Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}
