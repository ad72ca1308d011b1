package seqstream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/motionlake/seqstream-go/transport"
)

// =============================================================================
// Client options
// =============================================================================

type clientConfig struct {
	baseURL     string
	dialer      transport.Dialer
	logger      *zap.Logger
	tracer      trace.Tracer
	registerer  prometheus.Registerer
	retryPolicy *RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithBaseURL sets the platform base URL used to resolve sequence/topic
// endpoints.
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithDialer overrides the record-batch channel dialer. Tests use this to
// install an in-memory transport (see package seqstreamtest).
func WithDialer(d transport.Dialer) ClientOption {
	return func(c *clientConfig) { c.dialer = d }
}

// WithLogger sets the structured logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = l }
}

// WithTracer sets the OpenTelemetry tracer used for writer/streamer spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *clientConfig) { c.tracer = t }
}

// WithMetricsRegisterer registers the client's Prometheus collectors against
// the given registerer. If unset, no metrics are registered.
func WithMetricsRegisterer(r prometheus.Registerer) ClientOption {
	return func(c *clientConfig) { c.registerer = r }
}

// WithRetryPolicy overrides the default retry policy for sticky-error
// recovery on the background flusher.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *clientConfig) { c.retryPolicy = &p }
}

// RetryPolicy configures the single permitted retry of an idempotent-
// retryable transport error on the background flusher.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// =============================================================================
// Sequence writer options
// =============================================================================

// OnErrorPolicy decides what happens to a sequence whose close observed a
// topic finalize failure.
type OnErrorPolicy int

const (
	// OnErrorDelete sends SEQUENCE_ABORT; the server purges all data.
	OnErrorDelete OnErrorPolicy = iota
	// OnErrorReport sends SEQUENCE_UNLOCK; partial data persists.
	OnErrorReport
)

// SequenceConfig configures a SequenceWriter.
type SequenceConfig struct {
	Metadata        map[string]any
	OnError         OnErrorPolicy
	MaxBatchBytes   int
	MaxBatchRecs    int
	BlockOnOverflow bool
	QueueDepth      int
}

// DefaultSequenceConfig returns sensible defaults: report-on-error, 4MiB /
// 10k-record batch thresholds, blocking backpressure with an 8-batch queue.
func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		OnError:         OnErrorReport,
		MaxBatchBytes:   4 << 20,
		MaxBatchRecs:    10_000,
		BlockOnOverflow: true,
		QueueDepth:      8,
	}
}
