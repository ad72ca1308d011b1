package seqstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/motionlake/seqstream-go/seqstreamtest"
	"github.com/motionlake/seqstream-go/transport"
)

// closeTopicEndpoint pre-closes an endpoint's frame queue so a later Dial
// by handler code observes end-of-stream immediately instead of blocking
// on an empty queue that nothing ever closes.
func closeTopicEndpoint(t *testing.T, dialer *seqstreamtest.FakeDialer, sequence, topic string) {
	t.Helper()
	ctx := context.Background()
	ch, err := dialer.Dial(ctx, transport.Endpoint{Sequence: sequence, Topic: topic}, transport.TopicCreate)
	if err != nil {
		t.Fatalf("pre-dial failed: %v", err)
	}
	if err := ch.CloseSend(ctx); err != nil {
		t.Fatalf("pre-close failed: %v", err)
	}
}

func seedDescribeResponse(dialer *seqstreamtest.FakeDialer, seqMeta map[string]any, topics []map[string]any) {
	dialer.SeedControlResponse(transport.Query, map[string]any{
		"sequence": map[string]any{
			"user_metadata": seqMeta,
			"status":        "finalized",
			"size_bytes":    int64(4096),
			"created_at":    time.Unix(1700000000, 0).UTC(),
		},
		"topics": topics,
	})
}

func TestSequenceHandler_ResolvesMetadataAndTopics(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	seedDescribeResponse(dialer, map[string]any{"env": "test"}, []map[string]any{
		{"name": "imu", "ontology_tag": seqstreamtest.ScalarOntologyTag, "user_metadata": map[string]any{}, "volume_bytes": int64(128)},
	})
	client := NewClient(WithDialer(dialer))

	sh, err := client.SequenceHandler(context.Background(), "seq-1")
	if err != nil {
		t.Fatalf("SequenceHandler failed: %v", err)
	}
	if sh.Name() != "seq-1" {
		t.Errorf("unexpected name: %q", sh.Name())
	}
	if sh.SequenceInfo().Status != SequenceStatusFinalized {
		t.Errorf("expected finalized status, got %s", sh.SequenceInfo().Status)
	}
	topics := sh.Topics()
	if len(topics) != 1 || topics[0] != "/imu" {
		t.Fatalf("expected normalized topic name /imu, got %v", topics)
	}

	th, err := sh.GetTopic("imu")
	if err != nil {
		t.Fatalf("GetTopic failed: %v", err)
	}
	if th.Name() != "/imu" {
		t.Errorf("unexpected topic handler name: %q", th.Name())
	}

	// repeated GetTopic must return the cached instance
	th2, err := sh.GetTopic("/imu")
	if err != nil {
		t.Fatalf("second GetTopic failed: %v", err)
	}
	if th != th2 {
		t.Error("expected GetTopic to return the cached TopicHandler")
	}
}

func TestSequenceHandler_GetTopicMissing(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	seedDescribeResponse(dialer, nil, nil)
	client := NewClient(WithDialer(dialer))

	sh, err := client.SequenceHandler(context.Background(), "seq-1")
	if err != nil {
		t.Fatalf("SequenceHandler failed: %v", err)
	}
	if _, err := sh.GetTopic("/missing"); !errors.Is(err, errTopicNotFound) {
		t.Errorf("expected errTopicNotFound, got %v", err)
	}
}

func TestSequenceHandler_DataStreamerCachesAndForcesNew(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	seedDescribeResponse(dialer, nil, []map[string]any{
		{"name": "imu", "ontology_tag": seqstreamtest.ScalarOntologyTag, "user_metadata": map[string]any{}},
	})
	client := NewClient(WithDialer(dialer))

	sh, err := client.SequenceHandler(context.Background(), "seq-1")
	if err != nil {
		t.Fatalf("SequenceHandler failed: %v", err)
	}
	closeTopicEndpoint(t, dialer, "seq-1", "/imu")

	ctx := context.Background()
	sds1, err := sh.DataStreamer(ctx, false)
	if err != nil {
		t.Fatalf("DataStreamer failed: %v", err)
	}
	sds2, err := sh.DataStreamer(ctx, false)
	if err != nil {
		t.Fatalf("DataStreamer (cached) failed: %v", err)
	}
	if sds1 != sds2 {
		t.Error("expected DataStreamer to return the cached instance without forceNewInstance")
	}

	sds3, err := sh.DataStreamer(ctx, true)
	if err != nil {
		t.Fatalf("DataStreamer (forced) failed: %v", err)
	}
	if sds3 == sds1 {
		t.Error("expected forceNewInstance to open a fresh SequenceDataStreamer")
	}

	if err := sh.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestTopicHandler_DataStreamerCachesAndForcesNew(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	seedDescribeResponse(dialer, nil, []map[string]any{
		{"name": "imu", "ontology_tag": seqstreamtest.ScalarOntologyTag, "user_metadata": map[string]any{}},
	})
	client := NewClient(WithDialer(dialer))

	sh, err := client.SequenceHandler(context.Background(), "seq-1")
	if err != nil {
		t.Fatalf("SequenceHandler failed: %v", err)
	}
	th, err := sh.GetTopic("/imu")
	if err != nil {
		t.Fatalf("GetTopic failed: %v", err)
	}
	closeTopicEndpoint(t, dialer, "seq-1", "/imu")

	ctx := context.Background()
	ts1, err := th.DataStreamer(ctx, false)
	if err != nil {
		t.Fatalf("DataStreamer failed: %v", err)
	}
	ts2, err := th.DataStreamer(ctx, false)
	if err != nil {
		t.Fatalf("DataStreamer (cached) failed: %v", err)
	}
	if ts1 != ts2 {
		t.Error("expected cached TopicDataStreamer without forceNewInstance")
	}

	if err := th.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
