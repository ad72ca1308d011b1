package seqstream

import (
	"context"
	"errors"
	"testing"

	"github.com/motionlake/seqstream-go/query"
	"github.com/motionlake/seqstream-go/seqstreamtest"
	"github.com/motionlake/seqstream-go/transport"
)

func TestClient_ExecuteQuery_ParsesResponse(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	dialer.SeedControlResponse(transport.Query, []map[string]any{
		{"sequence": "seq-1", "topics": []string{"imu", "/camera"}},
		{"sequence": "seq-2", "topics": []string{}},
	})
	client := NewClient(WithDialer(dialer))

	q, err := query.NewQuerySequence().WithName("seq-1")
	if err != nil {
		t.Fatalf("build query failed: %v", err)
	}

	resp, err := client.ExecuteQuery(context.Background(), q)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	if resp.Len() != 2 {
		t.Fatalf("expected 2 response items, got %d", resp.Len())
	}
	if resp.Items[0].Sequence != "seq-1" {
		t.Errorf("unexpected sequence: %q", resp.Items[0].Sequence)
	}
	if len(resp.Items[0].Topics) != 2 || resp.Items[0].Topics[0] != "/imu" || resp.Items[0].Topics[1] != "/camera" {
		t.Errorf("expected normalized topic paths, got %v", resp.Items[0].Topics)
	}

	calls := dialer.ControlCalls()
	if len(calls) != 1 || calls[0].Message != transport.Query {
		t.Fatalf("expected exactly one QUERY control call, got %+v", calls)
	}
}

func TestClient_ExecuteQuery_TransportErrorWrapped(t *testing.T) {
	dialer := seqstreamtest.NewFakeDialer()
	dialer.SeedControlError(transport.Query, errors.New("boom"))
	client := NewClient(WithDialer(dialer))

	q, _ := query.NewQuerySequence().WithName("seq-1")
	_, err := client.ExecuteQuery(context.Background(), q)
	if err == nil {
		t.Fatal("expected ExecuteQuery to surface the transport error")
	}
}
