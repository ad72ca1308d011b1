package seqstream

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motionlake/seqstream-go/ontology"
	"github.com/motionlake/seqstream-go/transport"
)

// SequenceWriter owns a sequence's lifecycle and its topic writers. Only
// obtainable through WithSequence; on a zero-value or otherwise directly
// constructed SequenceWriter, TopicCreate and Close fail with
// ErrUnsafeLifecycle. The read-only accessors (SequenceStatus, TopicExists,
// ListTopics, GetTopic) do not perform that check.
type SequenceWriter struct {
	scoped bool

	client     *Client
	name       string
	metadata   map[string]any
	cfg        SequenceConfig
	producerID string

	mu     sync.Mutex
	status SequenceStatus
	topics map[string]*TopicWriter
}

func newSequenceWriter(client *Client, name string, metadata map[string]any, cfg SequenceConfig) *SequenceWriter {
	return &SequenceWriter{
		scoped:     true,
		client:     client,
		name:       name,
		metadata:   metadata,
		cfg:        cfg,
		producerID: uuid.NewString(),
		status:     SequenceStatusPending,
		topics:     make(map[string]*TopicWriter),
	}
}

func (sw *SequenceWriter) requireScoped(op string) error {
	if !sw.scoped {
		return newOpError(op, sw.name, "", KindLifecycle, ErrUnsafeLifecycle)
	}
	return nil
}

// WithSequence is the mandatory scoped-acquisition entry point: it opens
// the sequence, runs body with exclusive access to the writer, and
// guarantees Close (or the panic-path unlock) runs on every exit path.
func WithSequence(ctx context.Context, client *Client, name string, cfg SequenceConfig, body func(*SequenceWriter) error) (err error) {
	sw := newSequenceWriter(client, name, cfg.Metadata, cfg)

	ctx, span := startSpan(ctx, client.tracer, "sequence_create", name, "")
	createBody, marshalErr := transport.MarshalControlBody(map[string]any{"metadata": cfg.Metadata, "producer_id": sw.producerID})
	if marshalErr != nil {
		span.End()
		return newOpError("sequence_create", name, "", KindValidation, marshalErr)
	}
	if _, dialErr := client.dialer.SendControl(ctx, transport.Endpoint{Sequence: name}, transport.SequenceCreate, createBody); dialErr != nil {
		span.End()
		return newOpError("sequence_create", name, "", KindTransport, dialErr)
	}
	span.End()

	defer func() {
		if r := recover(); r != nil {
			sw.closeOnPanic(ctx)
			panic(r)
		}
		if closeErr := sw.Close(ctx); err == nil {
			err = closeErr
		}
	}()

	return body(sw)
}

// closeOnPanic best-effort finalizes the topic writers with the drop-last-
// batch policy and unlocks the sequence when body panics, so the deferred
// re-panic above doesn't leave flusher goroutines running or the sequence
// dangling Pending server-side. Errors are swallowed: a panic already takes
// priority.
func (sw *SequenceWriter) closeOnPanic(ctx context.Context) {
	sw.mu.Lock()
	if sw.status != SequenceStatusPending {
		sw.mu.Unlock()
		return
	}
	sw.status = SequenceStatusUnlocked
	topics := make([]*TopicWriter, 0, len(sw.topics))
	for _, tw := range sw.topics {
		topics = append(topics, tw)
	}
	sw.mu.Unlock()

	for _, tw := range topics {
		_ = tw.Finalize(ctx, true)
	}
	_, _ = sw.client.dialer.SendControl(ctx, transport.Endpoint{Sequence: sw.name}, transport.SequenceUnlock, nil)
	sw.client.logger.Warn("seqstream: sequence unlocked after panic in scoped body",
		zap.String("sequence", sw.name))
}

// TopicCreate registers a topic server-side, allocates its record-batch
// channel, and returns its writer.
func (sw *SequenceWriter) TopicCreate(ctx context.Context, name string, metadata map[string]any, ontologyTag string) (*TopicWriter, error) {
	if err := sw.requireScoped("topic_create"); err != nil {
		return nil, err
	}

	canonical := NormalizeTopicName(name)

	sw.mu.Lock()
	if sw.status != SequenceStatusPending {
		sw.mu.Unlock()
		return nil, newOpError("topic_create", sw.name, canonical, KindLifecycle, ErrSequenceClosed)
	}
	if _, exists := sw.topics[canonical]; exists {
		sw.mu.Unlock()
		return nil, newOpError("topic_create", sw.name, canonical, KindValidation, ErrDuplicateTopic)
	}
	sw.mu.Unlock()

	_, codec, err := ontology.DefaultRegistry.Lookup(ontologyTag)
	if err != nil {
		return nil, newOpError("topic_create", sw.name, canonical, KindValidation, err)
	}

	ep := transport.Endpoint{Sequence: sw.name, Topic: canonical}
	body, err := transport.MarshalControlBody(map[string]any{"metadata": metadata, "ontology_tag": ontologyTag})
	if err != nil {
		return nil, newOpError("topic_create", sw.name, canonical, KindValidation, err)
	}
	if _, err := sw.client.dialer.SendControl(ctx, ep, transport.TopicCreate, body); err != nil {
		return nil, newOpError("topic_create", sw.name, canonical, KindTransport, err)
	}

	channel, err := sw.client.dialer.Dial(ctx, ep, transport.SequenceCreate)
	if err != nil {
		return nil, newOpError("topic_create", sw.name, canonical, KindTransport, err)
	}

	tw := newTopicWriter(sw.client, sw.name, canonical, ontologyTag, codec, channel, sw.cfg)

	sw.mu.Lock()
	if _, exists := sw.topics[canonical]; exists {
		sw.mu.Unlock()
		_ = tw.Finalize(ctx, true)
		return nil, newOpError("topic_create", sw.name, canonical, KindValidation, ErrDuplicateTopic)
	}
	sw.topics[canonical] = tw
	sw.mu.Unlock()

	return tw, nil
}

// Close finalizes every tracked topic writer and the sequence itself.
// Idempotent.
func (sw *SequenceWriter) Close(ctx context.Context) error {
	if err := sw.requireScoped("close"); err != nil {
		return err
	}

	sw.mu.Lock()
	if sw.status != SequenceStatusPending {
		sw.mu.Unlock()
		return nil
	}
	topics := make([]*TopicWriter, 0, len(sw.topics))
	for _, tw := range sw.topics {
		topics = append(topics, tw)
	}
	sw.mu.Unlock()

	var topicErr error
	for _, tw := range topics {
		if err := tw.Finalize(ctx, false); err != nil && topicErr == nil {
			topicErr = err
		}
	}

	body, _ := transport.MarshalControlBody(map[string]any{"producer_id": sw.producerID})
	_, finalizeErr := sw.client.dialer.SendControl(ctx, transport.Endpoint{Sequence: sw.name}, transport.SequenceFinalize, body)

	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.status = SequenceStatusFinalized

	if topicErr == nil && finalizeErr == nil {
		sw.client.logger.Info("seqstream: sequence finalized",
			zap.String("sequence", sw.name), zap.Int("topics", len(topics)))
		return nil
	}

	var ctrl transport.ControlMessage
	switch sw.cfg.OnError {
	case OnErrorDelete:
		ctrl = transport.SequenceAbort
		sw.status = SequenceStatusError
	default:
		ctrl = transport.SequenceUnlock
		sw.status = SequenceStatusUnlocked
	}
	_, _ = sw.client.dialer.SendControl(ctx, transport.Endpoint{Sequence: sw.name}, ctrl, nil)
	sw.client.logger.Warn("seqstream: sequence close failed, applied on-error policy",
		zap.String("sequence", sw.name),
		zap.String("status", sw.status.String()),
		zap.NamedError("topic_error", topicErr),
		zap.NamedError("finalize_error", finalizeErr))

	if topicErr != nil {
		return newOpError("close", sw.name, "", KindTransport, topicErr)
	}
	return newOpError("close", sw.name, "", KindTransport, finalizeErr)
}

// SequenceStatus returns the sequence's current lifecycle status.
func (sw *SequenceWriter) SequenceStatus() SequenceStatus {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.status
}

// TopicExists reports whether a topic has been created on this sequence.
func (sw *SequenceWriter) TopicExists(name string) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	_, ok := sw.topics[NormalizeTopicName(name)]
	return ok
}

// ListTopics returns the canonical names of every topic created so far.
func (sw *SequenceWriter) ListTopics() []string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	names := make([]string, 0, len(sw.topics))
	for name := range sw.topics {
		names = append(names, name)
	}
	return names
}

// GetTopic returns the writer for an already-created topic.
func (sw *SequenceWriter) GetTopic(name string) (*TopicWriter, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	canonical := NormalizeTopicName(name)
	tw, ok := sw.topics[canonical]
	if !ok {
		return nil, newOpError("get_topic", sw.name, canonical, KindValidation, errTopicNotFound)
	}
	return tw, nil
}
