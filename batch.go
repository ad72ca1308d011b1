package seqstream

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/motionlake/seqstream-go/ontology"
)

// wireEnvelope carries the two columns every record-batch row needs beyond
// the ontology payload itself: the reception timestamp and the optional
// header. It rides alongside the Arrow-encoded payload batch as a small
// JSON sidecar rather than folding timestamp/header into the ontology
// schema itself, since those two columns are identical across every
// ontology tag.
type wireEnvelope struct {
	TimestampNs []int64   `json:"timestamp_ns"`
	Headers     []*Header `json:"headers"`
}

// encodeBatch builds one flushable record batch from buffered messages: an
// envelope column pair (timestamp_ns, header) plus the Arrow-encoded
// payload batch, framed as [4-byte envelope length][envelope JSON][payload bytes].
func encodeBatch(messages []Message, codec ontology.Codec) ([]byte, error) {
	env := wireEnvelope{
		TimestampNs: make([]int64, len(messages)),
		Headers:     make([]*Header, len(messages)),
	}
	builder := codec.NewBatchBuilder()
	defer builder.Release()

	for i, m := range messages {
		env.TimestampNs[i] = m.TimestampNs
		env.Headers[i] = m.Header
		if err := builder.Append(m.Data); err != nil {
			return nil, fmt.Errorf("seqstream: encode message %d: %w", i, err)
		}
	}

	payload, err := builder.Finish()
	if err != nil {
		return nil, fmt.Errorf("seqstream: finish batch: %w", err)
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("seqstream: encode envelope: %w", err)
	}

	out := make([]byte, 4+len(envBytes)+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(envBytes)))
	copy(out[4:], envBytes)
	copy(out[4+len(envBytes):], payload)
	return out, nil
}

// decodeBatch reverses encodeBatch, reconstituting Message values in
// row order (row order carries the within-batch push order invariant).
func decodeBatch(data []byte, codec ontology.Codec) ([]Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: truncated envelope length", ErrCorruptBatch)
	}
	envLen := binary.BigEndian.Uint32(data[:4])
	if int(envLen) > len(data)-4 {
		return nil, fmt.Errorf("%w: envelope length exceeds frame", ErrCorruptBatch)
	}
	envBytes := data[4 : 4+envLen]
	payload := data[4+envLen:]

	var env wireEnvelope
	if err := json.Unmarshal(envBytes, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope decode: %v", ErrCorruptBatch, err)
	}

	payloads, err := codec.DecodeBatch(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload decode: %v", ErrCorruptBatch, err)
	}
	if len(payloads) != len(env.TimestampNs) {
		return nil, fmt.Errorf("%w: envelope/payload row count mismatch (%d vs %d)", ErrCorruptBatch, len(env.TimestampNs), len(payloads))
	}

	messages := make([]Message, len(payloads))
	for i, p := range payloads {
		messages[i] = Message{
			TimestampNs: env.TimestampNs[i],
			Header:      env.Headers[i],
			Data:        p,
		}
	}
	return messages, nil
}
