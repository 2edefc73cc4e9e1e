package infrastructure

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics records pipeline counters on its own registry.
type PrometheusMetrics struct {
	registry    *prometheus.Registry
	submissions *prometheus.CounterVec
	quota       *prometheus.CounterVec
	jobs        *prometheus.CounterVec
	stages      *prometheus.HistogramVec
	providers   *prometheus.CounterVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "video_insight_submissions_total",
			Help: "Submissions by outcome.",
		}, []string{"outcome"}),
		quota: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "video_insight_quota_rejections_total",
			Help: "Guest submissions refused by the quota ledger.",
		}, []string{"reason"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "video_insight_jobs_total",
			Help: "Processed job attempts by result.",
		}, []string{"result"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "video_insight_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: []float64{.05, .25, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage", "status"}),
		providers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "video_insight_provider_calls_total",
			Help: "Calls to external transcript and insight providers.",
		}, []string{"kind", "provider", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submissions, m.quota, m.jobs, m.stages, m.providers,
	)
	return m
}

func (m *PrometheusMetrics) SubmissionRecorded(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) QuotaRejected(reason string) {
	m.quota.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) JobFinished(result string) {
	m.jobs.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) StageObserved(stage string, d time.Duration, err error) {
	m.stages.WithLabelValues(stage, statusLabel(err)).Observe(d.Seconds())
}

func (m *PrometheusMetrics) ProviderCalled(kind, provider string, err error) {
	m.providers.WithLabelValues(kind, provider, statusLabel(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry { return m.registry }

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
