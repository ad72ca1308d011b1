package seqstream

import (
	"context"
	"errors"
	"testing"

	"github.com/motionlake/seqstream-go/ontology"
	"github.com/motionlake/seqstream-go/seqstreamtest"
	"github.com/motionlake/seqstream-go/transport"
)

func openSeededStreamer(t *testing.T, dialer *seqstreamtest.FakeDialer, sequence, topic string, timestamps []int64) *TopicDataStreamer {
	t.Helper()
	_, codec, err := ontology.DefaultRegistry.Lookup(seqstreamtest.ScalarOntologyTag)
	if err != nil {
		t.Fatalf("lookup codec failed: %v", err)
	}
	ep := transport.Endpoint{Sequence: sequence, Topic: topic}
	if len(timestamps) > 0 {
		seedScalarBatch(t, dialer, ep, codec, timestamps)
	}
	ctx := context.Background()
	channel, err := dialer.Dial(ctx, ep, transport.TopicCreate)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := channel.CloseSend(ctx); err != nil {
		t.Fatalf("close send failed: %v", err)
	}
	return newTopicDataStreamer(sequence, topic, codec, channel, nil)
}

func TestSequenceDataStreamer_MergesInTimestampOrder(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	imu := openSeededStreamer(t, dialer, "seq-1", "/imu", []int64{10, 30, 50})
	camera := openSeededStreamer(t, dialer, "seq-1", "/camera", []int64{20, 40})

	ctx := context.Background()
	streamers := map[string]*TopicDataStreamer{"/imu": imu, "/camera": camera}
	sds, err := newSequenceDataStreamer(ctx, "seq-1", streamers, nil, nil)
	if err != nil {
		t.Fatalf("newSequenceDataStreamer failed: %v", err)
	}
	defer sds.Close()

	type seen struct {
		topic string
		ts    int64
	}
	var got []seen
	for {
		topic, msg, err := sds.Next(ctx)
		if errors.Is(err, Done) {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		got = append(got, seen{topic, msg.TimestampNs})
	}

	want := []seen{
		{"/imu", 10}, {"/camera", 20}, {"/imu", 30}, {"/camera", 40}, {"/imu", 50},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d merged messages, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSequenceDataStreamer_InterleavesThreeTopics(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	a := openSeededStreamer(t, dialer, "seq-1", "/a", []int64{100, 300})
	b := openSeededStreamer(t, dialer, "seq-1", "/b", []int64{150, 200, 400})
	c := openSeededStreamer(t, dialer, "seq-1", "/c", []int64{250})

	ctx := context.Background()
	streamers := map[string]*TopicDataStreamer{"/a": a, "/b": b, "/c": c}
	sds, err := newSequenceDataStreamer(ctx, "seq-1", streamers, nil, nil)
	if err != nil {
		t.Fatalf("newSequenceDataStreamer failed: %v", err)
	}
	defer sds.Close()

	type seen struct {
		topic string
		ts    int64
	}
	want := []seen{
		{"/a", 100}, {"/b", 150}, {"/b", 200}, {"/c", 250}, {"/a", 300}, {"/b", 400},
	}
	for i, w := range want {
		topic, msg, err := sds.Next(ctx)
		if err != nil {
			t.Fatalf("next %d failed: %v", i, err)
		}
		if topic != w.topic || msg.TimestampNs != w.ts {
			t.Errorf("message %d: got (%s, %d), want (%s, %d)", i, topic, msg.TimestampNs, w.topic, w.ts)
		}
	}
	if _, _, err := sds.Next(ctx); !errors.Is(err, Done) {
		t.Errorf("expected Done after all topics drained, got %v", err)
	}
}

func TestSequenceDataStreamer_TieBreaksByTopicName(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	zTopic := openSeededStreamer(t, dialer, "seq-1", "/z-topic", []int64{100})
	aTopic := openSeededStreamer(t, dialer, "seq-1", "/a-topic", []int64{100})

	ctx := context.Background()
	streamers := map[string]*TopicDataStreamer{"/z-topic": zTopic, "/a-topic": aTopic}
	sds, err := newSequenceDataStreamer(ctx, "seq-1", streamers, nil, nil)
	if err != nil {
		t.Fatalf("newSequenceDataStreamer failed: %v", err)
	}
	defer sds.Close()

	topic, _, err := sds.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if topic != "/a-topic" {
		t.Errorf("expected lexicographically-smaller topic name to win the tie, got %q", topic)
	}
}

func TestSequenceDataStreamer_EmptyTopicSkippedAtOpen(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	imu := openSeededStreamer(t, dialer, "seq-1", "/imu", []int64{5})
	empty := openSeededStreamer(t, dialer, "seq-1", "/empty", nil)

	ctx := context.Background()
	streamers := map[string]*TopicDataStreamer{"/imu": imu, "/empty": empty}
	sds, err := newSequenceDataStreamer(ctx, "seq-1", streamers, nil, nil)
	if err != nil {
		t.Fatalf("newSequenceDataStreamer failed: %v", err)
	}
	defer sds.Close()

	if sds.NextTimestamp() == nil {
		t.Fatal("expected a non-nil next timestamp from the non-empty topic")
	}

	topic, _, err := sds.Next(ctx)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if topic != "/imu" {
		t.Errorf("expected /imu to be the only contributing topic, got %q", topic)
	}

	if _, _, err := sds.Next(ctx); !errors.Is(err, Done) {
		t.Errorf("expected Done once the only non-empty topic is drained, got %v", err)
	}
}
