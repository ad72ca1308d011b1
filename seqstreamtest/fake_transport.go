// Package seqstreamtest provides in-memory test doubles for the record-batch
// transport: an in-process fake instead of a real network listener, so
// client code can be exercised without spinning up a server.
package seqstreamtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/motionlake/seqstream-go/transport"
)

// FakeDialer is an in-memory transport.Dialer. Each (sequence, topic)
// endpoint gets its own FIFO queue of pushed frames; Dial returns a channel
// reading from or writing to that queue depending on which of Push/Pull the
// caller uses. Control messages are recorded for assertions and answered
// from pre-seeded responses.
type FakeDialer struct {
	mu sync.Mutex

	queues map[string]*frameQueue

	controlLog      []ControlCall
	controlResponse map[transport.ControlMessage][]byte
	controlErr      map[transport.ControlMessage]error
}

// ControlCall records one observed SendControl invocation.
type ControlCall struct {
	Endpoint transport.Endpoint
	Message  transport.ControlMessage
	Body     []byte
}

// NewFakeDialer returns an empty FakeDialer.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		queues:          make(map[string]*frameQueue),
		controlResponse: make(map[transport.ControlMessage][]byte),
		controlErr:      make(map[transport.ControlMessage]error),
	}
}

func endpointKey(ep transport.Endpoint) string {
	return ep.Sequence + "\x00" + ep.Topic
}

// SeedControlResponse configures the body SendControl returns for a given
// control message, regardless of endpoint.
func (d *FakeDialer) SeedControlResponse(msg transport.ControlMessage, body any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, _ := json.Marshal(body)
	d.controlResponse[msg] = data
}

// SeedControlError makes SendControl fail for a given control message.
func (d *FakeDialer) SeedControlError(msg transport.ControlMessage, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controlErr[msg] = err
}

// ControlCalls returns every SendControl invocation observed so far, in
// order, for assertions.
func (d *FakeDialer) ControlCalls() []ControlCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ControlCall, len(d.controlLog))
	copy(out, d.controlLog)
	return out
}

// SendControl implements transport.Dialer.
func (d *FakeDialer) SendControl(ctx context.Context, ep transport.Endpoint, ctrl transport.ControlMessage, body []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controlLog = append(d.controlLog, ControlCall{Endpoint: ep, Message: ctrl, Body: body})

	if err, ok := d.controlErr[ctrl]; ok {
		return nil, err
	}
	if resp, ok := d.controlResponse[ctrl]; ok {
		return resp, nil
	}
	return []byte(`{}`), nil
}

// Dial implements transport.Dialer, returning a fake channel bound to the
// endpoint's frame queue.
func (d *FakeDialer) Dial(ctx context.Context, ep transport.Endpoint, ctrl transport.ControlMessage) (transport.RecordBatchChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := endpointKey(ep)
	q, ok := d.queues[key]
	if !ok {
		q = newFrameQueue()
		d.queues[key] = q
	}
	return &fakeChannel{queue: q}, nil
}

// PushRaw seeds raw encoded frames directly into an endpoint's queue, for
// tests that want to drive a TopicDataStreamer without going through a
// TopicWriter.
func (d *FakeDialer) PushRaw(ep transport.Endpoint, frames ...[]byte) {
	d.mu.Lock()
	q, ok := d.queues[endpointKey(ep)]
	if !ok {
		q = newFrameQueue()
		d.queues[endpointKey(ep)] = q
	}
	d.mu.Unlock()

	for _, f := range frames {
		q.push(f)
	}
}

// frameQueue is an unbounded FIFO of pushed frames shared by both ends of a
// single endpoint's push/pull pipe, closed once the writer half closes.
type frameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	closed bool
}

func newFrameQueue() *frameQueue {
	q := &frameQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *frameQueue) push(frame []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append(q.frames, frame)
	q.cond.Broadcast()
}

func (q *frameQueue) closeSend() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *frameQueue) pull(ctx context.Context) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) == 0 {
		if q.closed {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}

	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, nil
}

// fakeChannel implements transport.RecordBatchChannel over a frameQueue.
type fakeChannel struct {
	queue  *frameQueue
	mu     sync.Mutex
	closed bool
}

func (c *fakeChannel) Push(ctx context.Context, batch []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("seqstreamtest: channel is closed")
	}
	c.queue.push(batch)
	return nil
}

func (c *fakeChannel) CloseSend(ctx context.Context) error {
	c.queue.closeSend()
	return nil
}

func (c *fakeChannel) Pull(ctx context.Context) ([]byte, error) {
	return c.queue.pull(ctx)
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

var _ transport.Dialer = (*FakeDialer)(nil)
var _ transport.RecordBatchChannel = (*fakeChannel)(nil)
