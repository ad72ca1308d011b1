package seqstream

import (
	"context"

	"github.com/motionlake/seqstream-go/checkpoint"
)

// CheckpointedStreamer wraps a SequenceDataStreamer with a local checkpoint
// store: every message handed back to the caller updates the stored
// (topic, timestamp_ns) position, and messages a prior run already
// delivered (timestamp_ns <= the topic's stored checkpoint) are skipped
// rather than re-delivered. Per-topic read order is non-decreasing, so
// once a topic's stream passes its checkpoint every later message from
// that topic does too; a per-message filter suffices, with no look-ahead
// or rewind.
//
// This never changes what the server considers committed; it is purely a
// client-side optimization that degrades to a full re-read when the
// checkpoint is missing or corrupt. A corrupt record is reported by
// Store.Get as checkpoint.ErrCheckpointCorrupt alongside ok=false; Next
// logs nothing about it here and simply re-reads, and the Put after the
// next delivered message overwrites the bad record.
type CheckpointedStreamer struct {
	sequenceName string
	inner        *SequenceDataStreamer
	store        *checkpoint.Store
}

// NewCheckpointedStreamer wraps inner with checkpoint-based resume tracking
// against store.
func NewCheckpointedStreamer(sequenceName string, inner *SequenceDataStreamer, store *checkpoint.Store) *CheckpointedStreamer {
	return &CheckpointedStreamer{sequenceName: sequenceName, inner: inner, store: store}
}

// Next returns the next merged message not already covered by a prior
// checkpoint, and records its topic's new checkpoint position. Returns Done
// under the same conditions as the wrapped SequenceDataStreamer.
func (cs *CheckpointedStreamer) Next(ctx context.Context) (string, Message, error) {
	for {
		topic, msg, err := cs.inner.Next(ctx)
		if err != nil {
			return "", Message{}, err
		}
		// A checkpoint.ErrCheckpointCorrupt from Get arrives with ok=false,
		// so a corrupt record reads as "no checkpoint" and the message is
		// delivered rather than skipped.
		if pos, ok, _ := cs.store.Get(cs.sequenceName, topic); ok && msg.TimestampNs <= pos.TimestampNs {
			continue
		}
		if putErr := cs.store.Put(cs.sequenceName, topic, msg.TimestampNs); putErr != nil {
			return topic, msg, newOpError("next", cs.sequenceName, topic, KindData, putErr)
		}
		return topic, msg, nil
	}
}

// NextTimestamp delegates to the wrapped streamer. It does not account for
// checkpoint skipping: a caller peeking the next timestamp may see one that
// Next then silently skips.
func (cs *CheckpointedStreamer) NextTimestamp() *int64 { return cs.inner.NextTimestamp() }

// Close closes the wrapped streamer. The checkpoint store outlives the
// streamer and is closed separately by whoever opened it.
func (cs *CheckpointedStreamer) Close() error { return cs.inner.Close() }
