package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the intake subsystem.
type Metrics struct {
	CapturesTotal      prometheus.Counter
	FlagsDerivedTotal  *prometheus.CounterVec
	FlagDecisionsTotal *prometheus.CounterVec
	FinalizationsTotal *prometheus.CounterVec
	SubmissionsTotal   *prometheus.CounterVec
	StoreWriteDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns intake metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CapturesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_captures_total",
			Help: "Total triage records captured.",
		}),
		FlagsDerivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_flags_derived_total",
			Help: "Total flags derived at capture time, by flag code.",
		}, []string{"flag"}),
		FlagDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_flag_decisions_total",
			Help: "Total per-flag reviewer decisions, by flag code and decision.",
		}, []string{"flag", "decision"}),
		FinalizationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_finalizations_total",
			Help: "Total whole-record reviewer decisions, by decision.",
		}, []string{"decision"}),
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Total insurer submissions, by result.",
		}, []string{"result"}),
		StoreWriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_store_write_duration_seconds",
			Help:    "Duration of store mutations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.CapturesTotal,
		m.FlagsDerivedTotal,
		m.FlagDecisionsTotal,
		m.FinalizationsTotal,
		m.SubmissionsTotal,
		m.StoreWriteDuration,
	)

	return m
}

// NopMetrics returns metrics backed by a throwaway registry, for tests and
// callers that do not care about instrumentation.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
