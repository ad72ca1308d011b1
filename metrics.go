package seqstream

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the client's Prometheus collector bundle, registered against
// the Registerer passed to WithMetricsRegisterer.
type Metrics struct {
	PushesTotal   *prometheus.CounterVec
	FlushesTotal  *prometheus.CounterVec
	BatchBytes    *prometheus.HistogramVec
	FlushLatency  *prometheus.HistogramVec
	MergeHeapSize *prometheus.GaugeVec
	StickyErrors  *prometheus.CounterVec
}

func newMetricsVecs() *Metrics {
	return &Metrics{
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seqstream",
			Name:      "pushes_total",
			Help:      "Number of messages pushed to a topic writer.",
		}, []string{"topic"}),
		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seqstream",
			Name:      "flushes_total",
			Help:      "Number of batches flushed by the background flusher, by outcome.",
		}, []string{"topic", "outcome"}),
		BatchBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "seqstream",
			Name:      "batch_bytes",
			Help:      "Size in bytes of flushed record batches.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"topic"}),
		FlushLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "seqstream",
			Name:      "flush_latency_seconds",
			Help:      "Latency of a single background flush.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		MergeHeapSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "seqstream",
			Name:      "merge_heap_size",
			Help:      "Current number of topics resident in a SequenceDataStreamer's merge heap.",
		}, []string{"sequence"}),
		StickyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seqstream",
			Name:      "sticky_errors_total",
			Help:      "Number of topics that entered a sticky-error state.",
		}, []string{"topic"}),
	}
}

// newMetrics builds the bundle and registers every collector against r.
// Registration failures (e.g. duplicate registration against a shared
// registry) are ignored the same way Prometheus client examples typically
// discard them for idempotent re-registration in tests.
func newMetrics(r prometheus.Registerer) *Metrics {
	m := newMetricsVecs()
	for _, c := range []prometheus.Collector{m.PushesTotal, m.FlushesTotal, m.BatchBytes, m.FlushLatency, m.MergeHeapSize, m.StickyErrors} {
		_ = r.Register(c)
	}
	return m
}

// newUnregisteredMetrics builds the bundle without registering it anywhere,
// used when the caller doesn't supply a Registerer. The collectors still
// work; they're just not exposed.
func newUnregisteredMetrics() *Metrics {
	return newMetricsVecs()
}
