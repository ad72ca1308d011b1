package seqstream

import (
	"container/heap"
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// mergeEntry is one (next_timestamp, topic_name) pair in the merge heap.
type mergeEntry struct {
	timestamp int64
	topic     string
}

// mergeHeap is a min-heap on (timestamp_ns, topic_name); the name tiebreak
// makes the merge order a deterministic total order.
type mergeHeap []mergeEntry

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp < h[j].timestamp
	}
	return h[i].topic < h[j].topic
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeEntry)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// SequenceDataStreamer fuses one TopicDataStreamer per topic of a sequence
// into a single non-decreasing timestamp_ns timeline via an explicit
// min-heap k-way merge. It never pre-buffers: at most one record batch per
// topic may be resident at once.
type SequenceDataStreamer struct {
	sequenceName string
	streamers    map[string]*TopicDataStreamer
	tracer       trace.Tracer
	metrics      *Metrics

	mu     sync.Mutex
	heap   mergeHeap
	closed bool
	broken error
}

// newSequenceDataStreamer polls every streamer's next_timestamp once to
// seed the heap, skipping any topic that is already empty.
func newSequenceDataStreamer(ctx context.Context, sequenceName string, streamers map[string]*TopicDataStreamer, tracer trace.Tracer, metrics *Metrics) (*SequenceDataStreamer, error) {
	sds := &SequenceDataStreamer{
		sequenceName: sequenceName,
		streamers:    streamers,
		tracer:       tracer,
		metrics:      metrics,
	}
	for topic, ts := range streamers {
		next, err := ts.NextTimestamp(ctx)
		if err != nil {
			_ = sds.Close()
			return nil, newOpError("sequence_streamer_open", sequenceName, topic, KindTransport, err)
		}
		if next != nil {
			sds.heap = append(sds.heap, mergeEntry{timestamp: *next, topic: topic})
		}
	}
	heap.Init(&sds.heap)
	sds.reportHeapSize()
	return sds, nil
}

// Next pops the earliest-timestamp topic, consumes its head message, then
// re-polls that topic's next timestamp and re-pushes it onto the heap if
// more data remains; a drained topic leaves the heap permanently.
func (sds *SequenceDataStreamer) Next(ctx context.Context) (string, Message, error) {
	ctx, span := startSpan(ctx, sds.tracer, "next", sds.sequenceName, "")
	defer span.End()

	sds.mu.Lock()
	defer sds.mu.Unlock()

	if sds.closed {
		return "", Message{}, newOpError("next", sds.sequenceName, "", KindCancelled, ErrCancelled)
	}
	if sds.broken != nil {
		return "", Message{}, sds.broken
	}
	if sds.heap.Len() == 0 {
		return "", Message{}, Done
	}

	entry := heap.Pop(&sds.heap).(mergeEntry)
	ts := sds.streamers[entry.topic]

	msg, err := ts.Next(ctx)
	if err != nil {
		wrapped := newOpError("next", sds.sequenceName, entry.topic, KindTransport, err)
		sds.broken = wrapped
		return "", Message{}, wrapped
	}

	next, err := ts.NextTimestamp(ctx)
	if err != nil {
		wrapped := newOpError("next", sds.sequenceName, entry.topic, KindTransport, err)
		sds.broken = wrapped
		return "", Message{}, wrapped
	}
	if next != nil {
		heap.Push(&sds.heap, mergeEntry{timestamp: *next, topic: entry.topic})
	}
	sds.reportHeapSize()

	return entry.topic, msg, nil
}

// NextTimestamp returns the current heap root's timestamp without mutating
// state, or nil if the heap is empty.
func (sds *SequenceDataStreamer) NextTimestamp() *int64 {
	sds.mu.Lock()
	defer sds.mu.Unlock()
	if sds.heap.Len() == 0 {
		return nil
	}
	ts := sds.heap[0].timestamp
	return &ts
}

// Close closes every child streamer. Idempotent.
func (sds *SequenceDataStreamer) Close() error {
	sds.mu.Lock()
	defer sds.mu.Unlock()
	if sds.closed {
		return nil
	}
	sds.closed = true

	var firstErr error
	for _, ts := range sds.streamers {
		if err := ts.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (sds *SequenceDataStreamer) reportHeapSize() {
	if sds.metrics != nil {
		sds.metrics.MergeHeapSize.WithLabelValues(sds.sequenceName).Set(float64(sds.heap.Len()))
	}
}
