package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics exposes counters/histograms for the token booking flows.
type SchedulerMetrics struct {
	blocksTotal        *prometheus.CounterVec
	bookingsTotal      *prometheus.CounterVec
	releasesTotal      *prometheus.CounterVec
	visitsTotal        *prometheus.CounterVec
	cancellationsTotal *prometheus.CounterVec
	scoringDoctors     *prometheus.CounterVec
	scoringRunSeconds  prometheus.Histogram
	workflowLatency    *prometheus.HistogramVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		blocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "populardoctor",
			Subsystem: "tokens",
			Name:      "token_blocks_total",
			Help:      "Token block attempts by result",
		}, []string{"result"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "populardoctor",
			Subsystem: "bookings",
			Name:      "bookings_total",
			Help:      "Booking attempts by result",
		}, []string{"result"}),
		releasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "populardoctor",
			Subsystem: "tokens",
			Name:      "token_releases_total",
			Help:      "Blocked tokens returned to OPEN",
		}, []string{"source"}),
		visitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "populardoctor",
			Subsystem: "bookings",
			Name:      "visits_total",
			Help:      "Confirmed visits by confirmation method",
		}, []string{"method"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "populardoctor",
			Subsystem: "bookings",
			Name:      "cancellations_total",
			Help:      "Cancelled bookings by reason",
		}, []string{"reason"}),
		scoringDoctors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "populardoctor",
			Subsystem: "scoring",
			Name:      "doctors_total",
			Help:      "Doctors processed by scoring runs",
		}, []string{"result"}),
		scoringRunSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "populardoctor",
			Subsystem: "scoring",
			Name:      "run_seconds",
			Help:      "Duration of scoring runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		workflowLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "populardoctor",
			Subsystem: "bookings",
			Name:      "workflow_latency_seconds",
			Help:      "Latency of booking workflow operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.blocksTotal, m.bookingsTotal, m.releasesTotal, m.visitsTotal,
		m.cancellationsTotal, m.scoringDoctors, m.scoringRunSeconds, m.workflowLatency,
	)
	return m
}

func (m *SchedulerMetrics) ObserveBlock(result string) {
	if m == nil {
		return
	}
	m.blocksTotal.WithLabelValues(result).Inc()
}

func (m *SchedulerMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

// ObserveRelease counts n released tokens. source is timer, sweep or admin.
func (m *SchedulerMetrics) ObserveRelease(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.releasesTotal.WithLabelValues(source).Add(float64(n))
}

func (m *SchedulerMetrics) ObserveVisit(method string) {
	if m == nil {
		return
	}
	m.visitsTotal.WithLabelValues(method).Inc()
}

func (m *SchedulerMetrics) ObserveCancellation(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cancellationsTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *SchedulerMetrics) ObserveScoredDoctor(ok bool) {
	if m == nil {
		return
	}
	label := "ok"
	if !ok {
		label = "failed"
	}
	m.scoringDoctors.WithLabelValues(label).Inc()
}

func (m *SchedulerMetrics) ObserveScoringRun(seconds float64) {
	if m == nil {
		return
	}
	m.scoringRunSeconds.Observe(seconds)
}

func (m *SchedulerMetrics) ObserveLatency(op string, seconds float64) {
	if m == nil {
		return
	}
	m.workflowLatency.WithLabelValues(op).Observe(seconds)
}
