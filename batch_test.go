package seqstream

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/motionlake/seqstream-go/ontology"
	"github.com/motionlake/seqstream-go/seqstreamtest"
)

func scalarCodec(t *testing.T) ontology.Codec {
	t.Helper()
	_, codec, err := ontology.DefaultRegistry.Lookup(seqstreamtest.ScalarOntologyTag)
	if err != nil {
		t.Fatalf("lookup codec failed: %v", err)
	}
	return codec
}

func TestEncodeDecodeBatch_RoundTrip(t *testing.T) {
	codec := scalarCodec(t)
	messages := []Message{
		{TimestampNs: 10, Data: seqstreamtest.Scalar{V: 1.5}},
		{TimestampNs: 20, Data: seqstreamtest.Scalar{V: 2.5}, Header: &Header{FrameID: "base_link"}},
		{TimestampNs: 30, Data: seqstreamtest.Scalar{V: 3.5}},
	}

	data, err := encodeBatch(messages, codec)
	if err != nil {
		t.Fatalf("encodeBatch failed: %v", err)
	}

	decoded, err := decodeBatch(data, codec)
	if err != nil {
		t.Fatalf("decodeBatch failed: %v", err)
	}
	if len(decoded) != len(messages) {
		t.Fatalf("expected %d messages, got %d", len(messages), len(decoded))
	}
	for i, want := range messages {
		if decoded[i].TimestampNs != want.TimestampNs {
			t.Errorf("message %d: timestamp got %d, want %d", i, decoded[i].TimestampNs, want.TimestampNs)
		}
	}
	if decoded[1].Header == nil || decoded[1].Header.FrameID != "base_link" {
		t.Errorf("expected header to round-trip for message 1, got %+v", decoded[1].Header)
	}
}

func TestDecodeBatch_TruncatedEnvelopeLength(t *testing.T) {
	codec := scalarCodec(t)
	_, err := decodeBatch([]byte{0x01, 0x02}, codec)
	if !errors.Is(err, ErrCorruptBatch) {
		t.Errorf("expected ErrCorruptBatch for a too-short frame, got %v", err)
	}
}

func TestDecodeBatch_EnvelopeLengthExceedsFrame(t *testing.T) {
	codec := scalarCodec(t)
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, 1000) // claims a huge envelope but the frame is empty
	_, err := decodeBatch(data, codec)
	if !errors.Is(err, ErrCorruptBatch) {
		t.Errorf("expected ErrCorruptBatch when envelope length exceeds frame, got %v", err)
	}
}

func TestDecodeBatch_RowCountMismatch(t *testing.T) {
	codec := scalarCodec(t)
	messages := []Message{
		{TimestampNs: 10, Data: seqstreamtest.Scalar{V: 1}},
		{TimestampNs: 20, Data: seqstreamtest.Scalar{V: 2}},
	}
	data, err := encodeBatch(messages, codec)
	if err != nil {
		t.Fatalf("encodeBatch failed: %v", err)
	}

	// Corrupt the envelope by rewriting it with only one timestamp while
	// leaving the two-row Arrow payload untouched, reproducing an
	// envelope/payload row-count mismatch.
	envLen := binary.BigEndian.Uint32(data[:4])
	badEnv := []byte(`{"timestamp_ns":[10],"headers":[null]}`)
	out := make([]byte, 4+len(badEnv)+len(data[4+envLen:]))
	binary.BigEndian.PutUint32(out[:4], uint32(len(badEnv)))
	copy(out[4:], badEnv)
	copy(out[4+len(badEnv):], data[4+envLen:])

	_, err = decodeBatch(out, codec)
	if !errors.Is(err, ErrCorruptBatch) {
		t.Errorf("expected ErrCorruptBatch for row-count mismatch, got %v", err)
	}
}

func TestDecodeBatch_MalformedEnvelopeJSON(t *testing.T) {
	codec := scalarCodec(t)
	badEnv := []byte(`{not-json`)
	out := make([]byte, 4+len(badEnv))
	binary.BigEndian.PutUint32(out[:4], uint32(len(badEnv)))
	copy(out[4:], badEnv)

	_, err := decodeBatch(out, codec)
	if !errors.Is(err, ErrCorruptBatch) {
		t.Errorf("expected ErrCorruptBatch for malformed envelope JSON, got %v", err)
	}
}
