package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	StrandsIssued      prometheus.Counter
	GenerationLatency  prometheus.Histogram
	GenerationFailures *prometheus.CounterVec
	EndpointLatency    *prometheus.HistogramVec

	// Verification metrics
	BarrierOutcomes     *prometheus.CounterVec
	VerificationLatency prometheus.Histogram

	// Challenge metrics
	ChallengesStarted   prometheus.Counter
	ChallengesCompleted *prometheus.CounterVec
	ChallengesPurged    prometheus.Counter

	// Revocation metrics
	Revocations          *prometheus.CounterVec
	FilterRebuilds       prometheus.Counter
	FilterFalsePositives prometheus.Counter
	FilterEntries        prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StrandsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "strand_credentials_issued_total",
			Help: "Total number of strand credentials issued",
		}),
		GenerationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "strand_generation_latency_seconds",
			Help:    "Latency of credential generation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		GenerationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_generation_failures_total",
			Help: "Total number of failed generations, labeled by error code",
		}, []string{"code"}),
		// - Latency per endpoint (histogram)
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strand_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		BarrierOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_barrier_outcomes_total",
			Help: "Verification barrier results, labeled by barrier and outcome",
		}, []string{"barrier", "outcome"}),
		VerificationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "strand_verification_latency_seconds",
			Help:    "Latency of full verification pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ChallengesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "strand_challenges_started_total",
			Help: "Total number of challenges issued",
		}),
		ChallengesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_challenges_completed_total",
			Help: "Completed challenges, labeled by result code",
		}, []string{"result"}),
		ChallengesPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "strand_challenges_purged_total",
			Help: "Expired challenges and tombstones removed by the janitor",
		}),
		Revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strand_revocations_total",
			Help: "Total number of revocations, labeled by reason",
		}, []string{"reason"}),
		FilterRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "strand_revocation_filter_rebuilds_total",
			Help: "Total number of completed revocation filter rebuilds",
		}),
		FilterFalsePositives: factory.NewCounter(prometheus.CounterOpts{
			Name: "strand_revocation_filter_false_positives_total",
			Help: "Filter hits that the authoritative store did not confirm",
		}),
		FilterEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "strand_revocation_filter_entries",
			Help: "Number of identifiers inserted into the current filter generation",
		}),
	}
}

// ObserveEndpointLatency records the latency for a given endpoint
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

func (m *Metrics) IncrementStrandsIssued() {
	m.StrandsIssued.Inc()
}

// ObserveGenerationLatency records the latency of one credential generation
func (m *Metrics) ObserveGenerationLatency(durationSeconds float64) {
	m.GenerationLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementGenerationFailures(code string) {
	m.GenerationFailures.WithLabelValues(code).Inc()
}

// ObserveBarrier counts one barrier result. outcome is "passed" or the
// failure reason code.
func (m *Metrics) ObserveBarrier(barrier, outcome string) {
	m.BarrierOutcomes.WithLabelValues(barrier, outcome).Inc()
}

func (m *Metrics) ObserveVerificationLatency(durationSeconds float64) {
	m.VerificationLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementChallengesStarted() {
	m.ChallengesStarted.Inc()
}

func (m *Metrics) IncrementChallengesCompleted(result string) {
	m.ChallengesCompleted.WithLabelValues(result).Inc()
}

func (m *Metrics) AddChallengesPurged(count int) {
	m.ChallengesPurged.Add(float64(count))
}

func (m *Metrics) IncrementRevocations(reason string) {
	m.Revocations.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementFilterRebuilds() {
	m.FilterRebuilds.Inc()
}

func (m *Metrics) IncrementFilterFalsePositives() {
	m.FilterFalsePositives.Inc()
}

func (m *Metrics) SetFilterEntries(count int) {
	m.FilterEntries.Set(float64(count))
}
