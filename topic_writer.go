package seqstream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/motionlake/seqstream-go/ontology"
	"github.com/motionlake/seqstream-go/transport"
)

const (
	topicOpen int32 = iota
	topicClosed
)

// envelopeOverhead is a rough per-message byte estimate for the envelope
// columns (timestamp_ns + header), added to the JSON-marshaled payload size
// when deciding whether the pending batch has crossed its byte threshold.
const envelopeOverhead = 32

// TopicWriter accumulates messages for one topic, batches them by size or
// record count, and flushes batches on a single background goroutine.
// Obtained via SequenceWriter.TopicCreate; never constructed directly.
type TopicWriter struct {
	client       *Client
	sequenceName string
	name         string // canonical, leading "/"
	ontologyTag  string
	codec        ontology.Codec
	channel      transport.RecordBatchChannel
	cfg          SequenceConfig
	logger       *zap.Logger
	tracer       trace.Tracer
	metrics      *Metrics

	mu           sync.Mutex
	pending      []Message
	pendingBytes int

	state     atomic.Int32
	stickyMu  sync.Mutex
	stickyErr error

	queue       chan []Message
	flusherDone chan struct{}
	closeOnce   sync.Once
}

func newTopicWriter(client *Client, sequenceName, name, ontologyTag string, codec ontology.Codec, channel transport.RecordBatchChannel, cfg SequenceConfig) *TopicWriter {
	tw := &TopicWriter{
		client:       client,
		sequenceName: sequenceName,
		name:         name,
		ontologyTag:  ontologyTag,
		codec:        codec,
		channel:      channel,
		cfg:          cfg,
		logger:       client.logger,
		tracer:       client.tracer,
		metrics:      client.metrics,
		queue:        make(chan []Message, cfg.QueueDepth),
		flusherDone:  make(chan struct{}),
	}
	go tw.runFlusher()
	return tw
}

// Push validates payload against the topic's ontology tag and appends it to
// the pending batch. Crossing either batch threshold hands the batch to the
// background flusher; with BlockOnOverflow disabled a full work-queue fails
// the call with ErrBufferOverflow instead of blocking.
func (tw *TopicWriter) Push(ctx context.Context, payload ontology.Payload, timestampNs int64, header *Header) error {
	if tw.state.Load() == topicClosed {
		return newOpError("push", tw.sequenceName, tw.name, KindLifecycle, ErrWriterClosed)
	}
	if err := tw.stickyError(); err != nil {
		return newOpError("push", tw.sequenceName, tw.name, KindTransport, err)
	}
	if payload.OntologyTag() != tw.ontologyTag {
		return newOpError("push", tw.sequenceName, tw.name, KindValidation, ErrOntologyMismatch)
	}
	if timestampNs < 0 {
		return newOpError("push", tw.sequenceName, tw.name, KindValidation, ErrNegativeTimestamp)
	}

	ctx, span := startSpan(ctx, tw.tracer, "push", tw.sequenceName, tw.name)
	defer span.End()

	msg := Message{TimestampNs: timestampNs, Header: header, Data: payload}
	size := estimateSize(payload)

	var toEnqueue []Message
	tw.mu.Lock()
	tw.pending = append(tw.pending, msg)
	tw.pendingBytes += size
	if tw.pendingBytes >= tw.cfg.MaxBatchBytes || len(tw.pending) >= tw.cfg.MaxBatchRecs {
		toEnqueue = tw.pending
		tw.pending = nil
		tw.pendingBytes = 0
	}
	tw.mu.Unlock()

	if toEnqueue == nil {
		if tw.metrics != nil {
			tw.metrics.PushesTotal.WithLabelValues(tw.name).Inc()
		}
		return nil
	}
	if err := tw.enqueue(ctx, toEnqueue); err != nil {
		return newOpError("push", tw.sequenceName, tw.name, KindTransport, err)
	}
	if tw.metrics != nil {
		tw.metrics.PushesTotal.WithLabelValues(tw.name).Inc()
	}
	return nil
}

// PushMessage is the pre-assembled form of Push, for callers that already
// hold a Message value (e.g. replaying from another streamer).
func (tw *TopicWriter) PushMessage(ctx context.Context, msg Message) error {
	return tw.Push(ctx, msg.Data, msg.TimestampNs, msg.Header)
}

func estimateSize(p ontology.Payload) int {
	if b, err := json.Marshal(p); err == nil {
		return len(b) + envelopeOverhead
	}
	return envelopeOverhead
}

func (tw *TopicWriter) enqueue(ctx context.Context, batch []Message) error {
	if tw.cfg.BlockOnOverflow {
		select {
		case tw.queue <- batch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case tw.queue <- batch:
		return nil
	default:
		return ErrBufferOverflow
	}
}

// Finalize flushes any pending batch, joins the background flusher, and
// half-closes the transport stream. Idempotent. If withError is true any
// partial pending batch is dropped rather than flushed.
func (tw *TopicWriter) Finalize(ctx context.Context, withError bool) error {
	var returnErr error
	tw.closeOnce.Do(func() {
		tw.mu.Lock()
		final := tw.pending
		tw.pending = nil
		tw.pendingBytes = 0
		tw.mu.Unlock()

		if withError {
			final = nil
		}
		if len(final) > 0 {
			if err := tw.enqueue(ctx, final); err != nil {
				returnErr = newOpError("finalize", tw.sequenceName, tw.name, KindTransport, err)
			}
		}

		close(tw.queue)
		<-tw.flusherDone
		tw.state.Store(topicClosed)

		if err := tw.channel.CloseSend(ctx); err != nil && returnErr == nil {
			returnErr = newOpError("finalize", tw.sequenceName, tw.name, KindTransport, err)
		}
		if err := tw.channel.Close(); err != nil && returnErr == nil {
			returnErr = newOpError("finalize", tw.sequenceName, tw.name, KindTransport, err)
		}
		if stickyErr := tw.stickyError(); stickyErr != nil && returnErr == nil {
			returnErr = newOpError("finalize", tw.sequenceName, tw.name, KindTransport, stickyErr)
		}
	})
	return returnErr
}

func (tw *TopicWriter) runFlusher() {
	defer close(tw.flusherDone)
	for batch := range tw.queue {
		if err := tw.flushWithRetry(context.Background(), batch); err != nil {
			onset := tw.stickyError() == nil
			tw.setSticky(err)
			if tw.metrics != nil {
				tw.metrics.FlushesTotal.WithLabelValues(tw.name, "error").Inc()
				if onset {
					tw.metrics.StickyErrors.WithLabelValues(tw.name).Inc()
				}
			}
			tw.logger.Warn("seqstream: topic flush failed, entering sticky error state",
				zap.String("topic", tw.name), zap.Error(err))
			continue
		}
		if tw.metrics != nil {
			tw.metrics.FlushesTotal.WithLabelValues(tw.name, "ok").Inc()
		}
	}
}

func (tw *TopicWriter) flushWithRetry(ctx context.Context, batch []Message) error {
	ctx, span := startSpan(ctx, tw.tracer, "flush", tw.sequenceName, tw.name)
	defer span.End()

	start := time.Now()
	err := tw.flushOnce(ctx, batch)
	if err != nil && isIdempotentRetryable(err) {
		delay := tw.client.retryPolicy.InitialDelay
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		err = tw.flushOnce(ctx, batch)
	}
	if tw.metrics != nil {
		tw.metrics.FlushLatency.WithLabelValues(tw.name).Observe(time.Since(start).Seconds())
	}
	return err
}

func (tw *TopicWriter) flushOnce(ctx context.Context, batch []Message) error {
	data, err := encodeBatch(batch, tw.codec)
	if err != nil {
		return err
	}
	if tw.metrics != nil {
		tw.metrics.BatchBytes.WithLabelValues(tw.name).Observe(float64(len(data)))
	}
	return tw.channel.Push(ctx, data)
}

// isIdempotentRetryable decides whether a failed batch may be resent once.
// The channel abstraction doesn't expose HTTP status codes directly, so
// cancellation/deadline errors are excluded and everything else (connection
// resets, transient 5xx surfaced by the dialer) is treated as retryable.
func isIdempotentRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (tw *TopicWriter) setSticky(err error) {
	tw.stickyMu.Lock()
	defer tw.stickyMu.Unlock()
	if tw.stickyErr == nil {
		tw.stickyErr = &StickyError{Topic: tw.name, Cause: err}
	}
}

func (tw *TopicWriter) stickyError() error {
	tw.stickyMu.Lock()
	defer tw.stickyMu.Unlock()
	return tw.stickyErr
}

// Name returns the topic's canonical name.
func (tw *TopicWriter) Name() string { return tw.name }
