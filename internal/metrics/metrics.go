package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BreachedTickets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sla_breached_tickets",
		Help: "Open tickets breaching an SLA target at the last scan.",
	})
	AtRiskTickets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sla_at_risk_tickets",
		Help: "Open tickets nearing an SLA target at the last scan.",
	})
	EvaluationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_evaluation_errors_total",
		Help: "Tickets skipped during a scan because their policy or calendar could not be loaded.",
	})
	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sla_scan_duration_seconds",
		Help:    "Duration of SLA breach scans.",
		Buckets: prometheus.DefBuckets,
	})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_notifications_total",
		Help: "SLA notifications enqueued, by kind.",
	}, []string{"kind"})
	RateLimitRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Number of requests rejected by rate limiting.",
	}, []string{"route"})
	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_clients",
		Help: "Number of connected WebSocket clients",
	})
)

func init() {
	prometheus.MustRegister(
		BreachedTickets,
		AtRiskTickets,
		EvaluationErrorsTotal,
		ScanDuration,
		NotificationsTotal,
		RateLimitRejectionsTotal,
		WSClients,
	)
}
