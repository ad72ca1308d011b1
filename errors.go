package seqstream

import (
	"errors"
	"fmt"

	"github.com/motionlake/seqstream-go/query"
)

// Done is returned by streamers when iteration is complete.
// Check with errors.Is(err, seqstream.Done).
var Done = errors.New("seqstream: no more messages")

// Sentinel errors. Each belongs to exactly one of the five error kinds
// below; Is/As work through the standard errors package.
var (
	// Lifecycle errors: misuse of a writer's scope or state.
	ErrUnsafeLifecycle = errors.New("seqstream: SequenceWriter constructed outside WithSequence")
	ErrWriterClosed    = errors.New("seqstream: writer is closed")
	ErrSequenceClosed  = errors.New("seqstream: sequence is not Pending")
	ErrAlreadyClosed   = errors.New("seqstream: already closed")

	// Validation errors: synchronous, caller-correctable.
	ErrDuplicateTopic    = errors.New("seqstream: topic already exists")
	ErrOntologyMismatch  = errors.New("seqstream: payload ontology tag does not match topic")
	ErrNegativeTimestamp = errors.New("seqstream: timestamp_ns must be non-negative")

	// ErrDuplicateField and ErrHeterogeneousCatalogQuery are query-builder
	// validation errors; canonical definitions live in package query since
	// that's where they're raised, re-exported here to keep the full
	// ValidationError taxonomy visible from one import.
	ErrDuplicateField            = query.ErrDuplicateField
	ErrHeterogeneousCatalogQuery = query.ErrHeterogeneousCatalogQuery

	// Transport errors: recoverable once if idempotent-retryable, else sticky.
	ErrBufferOverflow = errors.New("seqstream: topic work-queue is full")

	// Data errors: decode/corruption on read.
	ErrCorruptBatch = errors.New("seqstream: record batch failed to decode")

	// Cancellation.
	ErrCancelled = errors.New("seqstream: closed or context cancelled")

	errTopicNotFound = errors.New("seqstream: topic not found in sequence")
)

// ErrorKind classifies an error by how it should be handled: lifecycle and
// validation errors are caller mistakes, transport and data errors come
// from the platform or the wire, and cancellation is deliberate.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindLifecycle
	KindValidation
	KindTransport
	KindData
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindLifecycle:
		return "lifecycle"
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindData:
		return "data"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OpError wraps an error with the operation and resource it happened on.
type OpError struct {
	Op       string // "push", "finalize", "topic_create", "close", "next", ...
	Sequence string
	Topic    string
	Kind     ErrorKind
	Err      error
}

func newOpError(op, sequence, topic string, kind ErrorKind, err error) *OpError {
	return &OpError{Op: op, Sequence: sequence, Topic: topic, Kind: kind, Err: err}
}

func (e *OpError) Error() string {
	switch {
	case e.Topic != "":
		return fmt.Sprintf("seqstream: %s %s/%s: %v", e.Op, e.Sequence, e.Topic, e.Err)
	case e.Sequence != "":
		return fmt.Sprintf("seqstream: %s %s: %v", e.Op, e.Sequence, e.Err)
	default:
		return fmt.Sprintf("seqstream: %s: %v", e.Op, e.Err)
	}
}

func (e *OpError) Unwrap() error { return e.Err }

// StickyError is surfaced by the next push/finalize call after a background
// flush observed a transport failure.
type StickyError struct {
	Topic string
	Cause error
}

func (e *StickyError) Error() string {
	return fmt.Sprintf("seqstream: topic %s has a sticky flush error: %v", e.Topic, e.Cause)
}

func (e *StickyError) Unwrap() error { return e.Cause }
