package seqstream

import (
	"strings"
	"time"

	"github.com/motionlake/seqstream-go/ontology"
)

// SequenceStatus is the lifecycle state of a Sequence.
type SequenceStatus int

const (
	SequenceStatusPending SequenceStatus = iota
	SequenceStatusFinalized
	SequenceStatusError
	SequenceStatusUnlocked
)

func (s SequenceStatus) String() string {
	switch s {
	case SequenceStatusPending:
		return "pending"
	case SequenceStatusFinalized:
		return "finalized"
	case SequenceStatusError:
		return "error"
	case SequenceStatusUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// SequenceInfo is the server-reported system metadata for a sequence.
type SequenceInfo struct {
	Name         string
	UserMetadata map[string]any
	Status       SequenceStatus
	SizeBytes    int64
	CreatedAt    time.Time
}

// TopicInfo is the server-reported system metadata for a topic.
type TopicInfo struct {
	Name         string // canonical, leading "/"
	UserMetadata map[string]any
	OntologyTag  string
	CreatedAt    time.Time
	VolumeBytes  int64
}

// Stamp is a data-generation timestamp, distinct from the platform
// reception timestamp carried on Message.
type Stamp struct {
	Sec     int64
	Nanosec int32
}

// Header carries the optional data-generation metadata of a Message.
type Header struct {
	Stamp   Stamp
	FrameID string
}

// Message is the unit of ingestion and delivery.
type Message struct {
	TimestampNs int64
	Header      *Header
	Data        ontology.Payload
}

// NormalizeTopicName applies the canonical form: a single leading "/" and
// no other leading slashes. Idempotent: NormalizeTopicName(NormalizeTopicName(x)) == NormalizeTopicName(x).
func NormalizeTopicName(name string) string {
	return "/" + strings.TrimLeft(name, "/")
}
