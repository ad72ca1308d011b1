package seqstream

import (
	"context"
	"errors"
	"testing"

	"github.com/motionlake/seqstream-go/ontology"
	"github.com/motionlake/seqstream-go/seqstreamtest"
	"github.com/motionlake/seqstream-go/transport"
)

func seedScalarBatch(t *testing.T, dialer *seqstreamtest.FakeDialer, ep transport.Endpoint, codec ontology.Codec, timestamps []int64) {
	t.Helper()
	messages := make([]Message, len(timestamps))
	for i, ts := range timestamps {
		messages[i] = Message{TimestampNs: ts, Data: seqstreamtest.Scalar{V: float64(ts)}}
	}
	data, err := encodeBatch(messages, codec)
	if err != nil {
		t.Fatalf("encodeBatch failed: %v", err)
	}
	dialer.PushRaw(ep, data)
}

func TestTopicDataStreamer_NextConsumesInOrder(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	_, codec, _ := ontology.DefaultRegistry.Lookup(seqstreamtest.ScalarOntologyTag)
	ep := transport.Endpoint{Sequence: "seq-1", Topic: "/scalar"}
	seedScalarBatch(t, dialer, ep, codec, []int64{10, 20, 30})

	ctx := context.Background()
	channel, err := dialer.Dial(ctx, ep, transport.TopicCreate)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := channel.CloseSend(ctx); err != nil {
		t.Fatalf("close send failed: %v", err)
	}

	ts := newTopicDataStreamer("seq-1", "/scalar", codec, channel, nil)
	var got []int64
	for {
		msg, err := ts.Next(ctx)
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		got = append(got, msg.TimestampNs)
	}

	want := []int64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTopicDataStreamer_NextTimestampPeeksWithoutConsuming(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	_, codec, _ := ontology.DefaultRegistry.Lookup(seqstreamtest.ScalarOntologyTag)
	ep := transport.Endpoint{Sequence: "seq-1", Topic: "/scalar"}
	seedScalarBatch(t, dialer, ep, codec, []int64{100})

	ctx := context.Background()
	channel, _ := dialer.Dial(ctx, ep, transport.TopicCreate)
	channel.CloseSend(ctx)

	ts := newTopicDataStreamer("seq-1", "/scalar", codec, channel, nil)

	peek1, err := ts.NextTimestamp(ctx)
	if err != nil {
		t.Fatalf("first peek failed: %v", err)
	}
	peek2, err := ts.NextTimestamp(ctx)
	if err != nil {
		t.Fatalf("second peek failed: %v", err)
	}
	if peek1 == nil || peek2 == nil || *peek1 != 100 || *peek2 != 100 {
		t.Fatalf("expected repeated peeks to return the same unconsumed timestamp, got %v, %v", peek1, peek2)
	}

	msg, err := ts.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if msg.TimestampNs != 100 {
		t.Errorf("expected consumed message to match peeked timestamp, got %d", msg.TimestampNs)
	}

	end, err := ts.NextTimestamp(ctx)
	if err != nil {
		t.Fatalf("peek at end failed: %v", err)
	}
	if end != nil {
		t.Errorf("expected nil at end of stream, got %v", *end)
	}
}

func TestTopicDataStreamer_CorruptBatchBreaksStreamerPermanently(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	_, codec, _ := ontology.DefaultRegistry.Lookup(seqstreamtest.ScalarOntologyTag)
	ep := transport.Endpoint{Sequence: "seq-1", Topic: "/scalar"}
	dialer.PushRaw(ep, []byte{0x01}) // too short to contain a valid envelope length

	ctx := context.Background()
	channel, _ := dialer.Dial(ctx, ep, transport.TopicCreate)
	channel.CloseSend(ctx)

	ts := newTopicDataStreamer("seq-1", "/scalar", codec, channel, nil)

	if _, err := ts.Next(ctx); err == nil {
		t.Fatal("expected corrupt batch to surface an error")
	}
	// A second call must return the same sticky error, not retry the transport.
	if _, err := ts.Next(ctx); err == nil {
		t.Fatal("expected streamer to remain broken after a data error")
	}
}
