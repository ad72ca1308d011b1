package querycache

import (
	"context"
	"testing"

	"github.com/motionlake/seqstream-go/query"
)

func TestCache_MaterializeAndQuery(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	resp := &query.Response{
		Items: []query.ResponseItem{
			query.NewResponseItem("seq1", []string{"seq1/a"}),
			query.NewResponseItem("seq2", []string{"seq2/b", "seq2/c"}),
		},
	}

	ctx := context.Background()
	if err := c.Materialize(ctx, resp); err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	rows, err := c.Query(ctx, "SELECT sequence_name, topic_name FROM "+c.TableName()+" ORDER BY sequence_name, topic_name")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var seq, topic string
		if err := rows.Scan(&seq, &topic); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		got = append(got, seq+":"+topic)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows iteration failed: %v", err)
	}

	want := []string{"seq1:/a", "seq2:/b", "seq2:/c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCache_MaterializeOverwritesPriorTable(t *testing.T) {
	c, err := Open("", WithTableName("custom_results"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()
	if c.TableName() != "custom_results" {
		t.Fatalf("expected custom table name, got %q", c.TableName())
	}

	ctx := context.Background()
	first := &query.Response{Items: []query.ResponseItem{query.NewResponseItem("seqA", []string{"seqA/x"})}}
	if err := c.Materialize(ctx, first); err != nil {
		t.Fatalf("first Materialize failed: %v", err)
	}

	second := &query.Response{Items: []query.ResponseItem{query.NewResponseItem("seqB", []string{"seqB/y"})}}
	if err := c.Materialize(ctx, second); err != nil {
		t.Fatalf("second Materialize failed: %v", err)
	}

	rows, err := c.Query(ctx, "SELECT COUNT(*) FROM custom_results")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var count int
	if !rows.Next() {
		t.Fatal("expected one row from COUNT(*)")
	}
	if err := rows.Scan(&count); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected table to be replaced with exactly 1 row, got %d", count)
	}
}
