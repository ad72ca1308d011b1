// Package transport implements the record-batch channel client: an opaque
// columnar push/pull stream per (sequence, topic) endpoint, in the shape of
// Arrow Flight's DoPut/DoGet but carried over a pooled HTTP/2 client with
// length-prefixed framing rather than gRPC.
package transport

import (
	"context"
	"io"
)

// ControlMessage names the platform's control-plane operations.
type ControlMessage string

const (
	SequenceCreate   ControlMessage = "SEQUENCE_CREATE"
	SequenceFinalize ControlMessage = "SEQUENCE_FINALIZE"
	SequenceAbort    ControlMessage = "SEQUENCE_ABORT"
	SequenceUnlock   ControlMessage = "SEQUENCE_UNLOCK"
	TopicCreate      ControlMessage = "TOPIC_CREATE"
	Query            ControlMessage = "QUERY"
)

// Endpoint identifies a (sequence, topic) pair on the platform.
type Endpoint struct {
	Sequence string
	Topic    string
}

// RecordBatchChannel is the opaque transport contract: a push/pull stream of
// length-prefixed encoded record batches terminated by an end-of-stream
// marker. Implementations must be safe for the
// single-writer-per-topic / single-reader-per-streamer usage the rest of
// this SDK relies on; they need not be safe for concurrent Push and Pull
// from multiple goroutines on the same channel.
type RecordBatchChannel interface {
	// Push sends one encoded record batch. It does not block waiting for
	// an acknowledgment beyond what the transport requires to detect
	// failure.
	Push(ctx context.Context, batch []byte) error

	// CloseSend half-closes the push side, signaling end-of-stream to the
	// server. Idempotent.
	CloseSend(ctx context.Context) error

	// Pull fetches the next encoded record batch. Returns io.EOF when the
	// topic has no more data (the server has observed CloseSend or the
	// sequence is finalized).
	Pull(ctx context.Context) ([]byte, error)

	// Close releases any resources (connections, buffers) held by the
	// channel. Idempotent, safe to call from any goroutine, and preempts a
	// blocked Push/Pull with context.Canceled.
	Close() error
}

// Dialer opens a RecordBatchChannel for an endpoint and sends a control
// message establishing the channel's purpose (push vs. pull is implied by
// which of Push/Pull the caller subsequently uses).
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint, ctrl ControlMessage) (RecordBatchChannel, error)

	// SendControl sends a standalone control message with no associated
	// data channel (e.g. SEQUENCE_FINALIZE, SEQUENCE_ABORT, TOPIC_CREATE,
	// QUERY) and returns the raw response body, if any.
	SendControl(ctx context.Context, ep Endpoint, ctrl ControlMessage, body []byte) ([]byte, error)
}

var _ io.Closer = RecordBatchChannel(nil)
