package query

import "testing"

func TestNewResponseItem_NormalizesTopicPaths(t *testing.T) {
	item := NewResponseItem("flight-042", []string{"flight-042/imu", "/camera", "flight-042camera2"})

	want := []string{"/imu", "/camera", "/camera2"}
	if len(item.Topics) != len(want) {
		t.Fatalf("expected %d topics, got %d: %+v", len(want), len(item.Topics), item.Topics)
	}
	for i, w := range want {
		if item.Topics[i] != w {
			t.Errorf("topic[%d]: got %q, want %q", i, item.Topics[i], w)
		}
	}
}

func TestResponse_LenAndIsEmpty(t *testing.T) {
	empty := &Response{}
	if !empty.IsEmpty() {
		t.Error("expected empty response to report IsEmpty")
	}

	resp := &Response{Items: []ResponseItem{{Sequence: "a"}}}
	if resp.IsEmpty() {
		t.Error("expected non-empty response to report not empty")
	}
	if resp.Len() != 1 {
		t.Errorf("expected len 1, got %d", resp.Len())
	}
}

func TestResponse_ToQuerySequenceBuildsInFilter(t *testing.T) {
	resp := &Response{Items: []ResponseItem{
		{Sequence: "a"}, {Sequence: "b"},
	}}

	q, err := resp.ToQuerySequence()
	if err != nil {
		t.Fatalf("ToQuerySequence failed: %v", err)
	}
	if len(q.exprs.order) != 1 {
		t.Fatalf("expected one filter, got %d", len(q.exprs.order))
	}
	e := q.exprs.order[0]
	if e.Path != "sequence.name" || e.Op != OpIn {
		t.Errorf("unexpected filter: %+v", e)
	}
	values, ok := e.Value.([]any)
	if !ok || len(values) != 2 {
		t.Fatalf("expected 2 values in $in filter, got %+v", e.Value)
	}
}

func TestResponse_ToQueryTopicBuildsInFilter(t *testing.T) {
	resp := &Response{Items: []ResponseItem{
		{Sequence: "a", Topics: []string{"/imu", "/camera"}},
		{Sequence: "b", Topics: []string{"/imu"}},
	}}

	q, err := resp.ToQueryTopic()
	if err != nil {
		t.Fatalf("ToQueryTopic failed: %v", err)
	}
	e := q.exprs.order[0]
	values, ok := e.Value.([]any)
	if !ok || len(values) != 3 {
		t.Fatalf("expected 3 values in $in filter, got %+v", e.Value)
	}
}
