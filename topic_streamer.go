package seqstream

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/motionlake/seqstream-go/ontology"
	"github.com/motionlake/seqstream-go/transport"
)

// TopicDataStreamer is a pull-mode iterator over one topic's messages.
// At most one record batch is resident at a time; the previous batch is
// released when the next one is fetched.
type TopicDataStreamer struct {
	sequenceName string
	name         string
	codec        ontology.Codec
	channel      transport.RecordBatchChannel
	tracer       trace.Tracer

	mu     sync.Mutex
	buffer []Message
	pos    int
	eof    bool
	broken error
	closed bool
}

func newTopicDataStreamer(sequenceName, name string, codec ontology.Codec, channel transport.RecordBatchChannel, tracer trace.Tracer) *TopicDataStreamer {
	return &TopicDataStreamer{
		sequenceName: sequenceName,
		name:         name,
		codec:        codec,
		channel:      channel,
		tracer:       tracer,
	}
}

// Next decodes and returns the head message, fetching a new record batch
// from the transport if the local buffer is empty. Returns Done at
// end-of-stream.
func (ts *TopicDataStreamer) Next(ctx context.Context) (Message, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.closed {
		return Message{}, newOpError("next", ts.sequenceName, ts.name, KindCancelled, ErrCancelled)
	}
	if ts.broken != nil {
		return Message{}, ts.broken
	}

	if ts.pos >= len(ts.buffer) {
		if err := ts.fetchLocked(ctx); err != nil {
			return Message{}, err
		}
	}
	if ts.pos >= len(ts.buffer) {
		return Message{}, Done
	}

	msg := ts.buffer[ts.pos]
	ts.pos++
	return msg, nil
}

// NextTimestamp peeks the timestamp of the head message without consuming
// it, fetching a batch if the buffer is empty. Returns nil at end-of-stream.
func (ts *TopicDataStreamer) NextTimestamp(ctx context.Context) (*int64, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.closed {
		return nil, newOpError("next_timestamp", ts.sequenceName, ts.name, KindCancelled, ErrCancelled)
	}
	if ts.broken != nil {
		return nil, ts.broken
	}

	if ts.pos >= len(ts.buffer) {
		if err := ts.fetchLocked(ctx); err != nil {
			return nil, err
		}
	}
	if ts.pos >= len(ts.buffer) {
		return nil, nil
	}
	timestamp := ts.buffer[ts.pos].TimestampNs
	return &timestamp, nil
}

// fetchLocked pulls and decodes the next record batch. Caller holds ts.mu.
func (ts *TopicDataStreamer) fetchLocked(ctx context.Context) error {
	if ts.eof {
		return nil
	}
	data, err := ts.channel.Pull(ctx)
	if errors.Is(err, io.EOF) {
		ts.eof = true
		ts.buffer = nil
		ts.pos = 0
		return nil
	}
	if err != nil {
		wrapped := newOpError("next", ts.sequenceName, ts.name, KindTransport, err)
		ts.broken = wrapped
		return wrapped
	}

	messages, err := decodeBatch(data, ts.codec)
	if err != nil {
		wrapped := newOpError("next", ts.sequenceName, ts.name, KindData, err)
		ts.broken = wrapped
		return wrapped
	}

	ts.buffer = messages
	ts.pos = 0
	return nil
}

// Close releases the transport channel. Idempotent.
func (ts *TopicDataStreamer) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return nil
	}
	ts.closed = true
	return ts.channel.Close()
}
