package seqstream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/motionlake/seqstream-go/checkpoint"
	"github.com/motionlake/seqstream-go/ontology"
	"github.com/motionlake/seqstream-go/transport"
)

type describeWire struct {
	Sequence struct {
		UserMetadata map[string]any `json:"user_metadata"`
		Status       string         `json:"status"`
		SizeBytes    int64          `json:"size_bytes"`
		CreatedAt    time.Time      `json:"created_at"`
	} `json:"sequence"`
	Topics []struct {
		Name         string         `json:"name"`
		UserMetadata map[string]any `json:"user_metadata"`
		OntologyTag  string         `json:"ontology_tag"`
		CreatedAt    time.Time      `json:"created_at"`
		VolumeBytes  int64          `json:"volume_bytes"`
	} `json:"topics"`
}

func parseSequenceStatus(s string) SequenceStatus {
	switch s {
	case "finalized":
		return SequenceStatusFinalized
	case "error":
		return SequenceStatusError
	case "unlocked":
		return SequenceStatusUnlocked
	default:
		return SequenceStatusPending
	}
}

// describeSequence resolves the read-side view of a sequence: its metadata
// plus the metadata of every topic it holds. This reuses the QUERY
// control-plane message as a describe mechanism since the platform doesn't
// expose a distinct introspection call.
func (c *Client) describeSequence(ctx context.Context, name string) (SequenceInfo, []TopicInfo, error) {
	body, err := transport.MarshalControlBody(map[string]any{"describe": "sequence", "name": name})
	if err != nil {
		return SequenceInfo{}, nil, err
	}
	data, err := c.dialer.SendControl(ctx, transport.Endpoint{Sequence: name}, transport.Query, body)
	if err != nil {
		return SequenceInfo{}, nil, err
	}

	var wire describeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return SequenceInfo{}, nil, err
	}

	info := SequenceInfo{
		Name:         name,
		UserMetadata: wire.Sequence.UserMetadata,
		Status:       parseSequenceStatus(wire.Sequence.Status),
		SizeBytes:    wire.Sequence.SizeBytes,
		CreatedAt:    wire.Sequence.CreatedAt,
	}
	topics := make([]TopicInfo, len(wire.Topics))
	for i, t := range wire.Topics {
		topics[i] = TopicInfo{
			Name:         NormalizeTopicName(t.Name),
			UserMetadata: t.UserMetadata,
			OntologyTag:  t.OntologyTag,
			CreatedAt:    t.CreatedAt,
			VolumeBytes:  t.VolumeBytes,
		}
	}
	return info, topics, nil
}

// SequenceHandler is a thin read-side proxy for an existing sequence: it
// exposes metadata and caches streamer instances.
type SequenceHandler struct {
	client *Client
	name   string
	info   SequenceInfo
	topics []TopicInfo

	mu             sync.Mutex
	cachedStreamer *SequenceDataStreamer
	cachedHandlers map[string]*TopicHandler
}

// SequenceHandler resolves a SequenceHandler for an existing sequence by
// name, fetching its metadata and topic list.
func (c *Client) SequenceHandler(ctx context.Context, name string) (*SequenceHandler, error) {
	info, topics, err := c.describeSequence(ctx, name)
	if err != nil {
		return nil, newOpError("sequence_handler", name, "", KindTransport, err)
	}
	return &SequenceHandler{
		client:         c,
		name:           name,
		info:           info,
		topics:         topics,
		cachedHandlers: make(map[string]*TopicHandler),
	}, nil
}

// Name returns the sequence's name.
func (sh *SequenceHandler) Name() string { return sh.name }

// UserMetadata returns the sequence's user metadata.
func (sh *SequenceHandler) UserMetadata() map[string]any { return sh.info.UserMetadata }

// SequenceInfo returns the sequence's system metadata.
func (sh *SequenceHandler) SequenceInfo() SequenceInfo { return sh.info }

// Topics returns the canonical names of every topic in the sequence.
func (sh *SequenceHandler) Topics() []string {
	names := make([]string, len(sh.topics))
	for i, t := range sh.topics {
		names[i] = t.Name
	}
	return names
}

// GetTopic returns (creating if necessary) a cached TopicHandler for name.
func (sh *SequenceHandler) GetTopic(name string) (*TopicHandler, error) {
	canonical := NormalizeTopicName(name)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if th, ok := sh.cachedHandlers[canonical]; ok {
		return th, nil
	}
	for _, t := range sh.topics {
		if t.Name == canonical {
			th := &TopicHandler{client: sh.client, sequenceName: sh.name, info: t}
			sh.cachedHandlers[canonical] = th
			return th, nil
		}
	}
	return nil, newOpError("get_topic", sh.name, canonical, KindValidation, errTopicNotFound)
}

// DataStreamer returns the cached SequenceDataStreamer, opening one
// TopicDataStreamer per topic on first use. forceNewInstance closes any
// cached streamer and opens a fresh one over new channels.
func (sh *SequenceHandler) DataStreamer(ctx context.Context, forceNewInstance bool) (*SequenceDataStreamer, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.cachedStreamer != nil {
		if !forceNewInstance {
			return sh.cachedStreamer, nil
		}
		_ = sh.cachedStreamer.Close()
		sh.cachedStreamer = nil
	}

	streamers := make(map[string]*TopicDataStreamer, len(sh.topics))
	for _, t := range sh.topics {
		_, codec, err := ontology.DefaultRegistry.Lookup(t.OntologyTag)
		if err != nil {
			return nil, newOpError("data_streamer", sh.name, t.Name, KindValidation, err)
		}
		channel, err := sh.client.dialer.Dial(ctx, transport.Endpoint{Sequence: sh.name, Topic: t.Name}, transport.TopicCreate)
		if err != nil {
			return nil, newOpError("data_streamer", sh.name, t.Name, KindTransport, err)
		}
		streamers[t.Name] = newTopicDataStreamer(sh.name, t.Name, codec, channel, sh.client.tracer)
	}

	sds, err := newSequenceDataStreamer(ctx, sh.name, streamers, sh.client.tracer, sh.client.metrics)
	if err != nil {
		return nil, err
	}
	sh.cachedStreamer = sds
	return sds, nil
}

// CheckpointedDataStreamer is DataStreamer wrapped with local resume
// tracking against store: messages a prior run already delivered are
// skipped, and each delivered message updates its topic's checkpoint.
// forceNewInstance behaves as in DataStreamer.
func (sh *SequenceHandler) CheckpointedDataStreamer(ctx context.Context, store *checkpoint.Store, forceNewInstance bool) (*CheckpointedStreamer, error) {
	sds, err := sh.DataStreamer(ctx, forceNewInstance)
	if err != nil {
		return nil, err
	}
	return NewCheckpointedStreamer(sh.name, sds, store), nil
}

// Close releases every cached resource held by the handler.
func (sh *SequenceHandler) Close() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var firstErr error
	if sh.cachedStreamer != nil {
		firstErr = sh.cachedStreamer.Close()
		sh.cachedStreamer = nil
	}
	for _, th := range sh.cachedHandlers {
		if err := th.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TopicHandler is a thin read-side proxy for a single topic.
type TopicHandler struct {
	client       *Client
	sequenceName string
	info         TopicInfo

	mu             sync.Mutex
	cachedStreamer *TopicDataStreamer
}

// Name returns the topic's canonical name.
func (th *TopicHandler) Name() string { return th.info.Name }

// UserMetadata returns the topic's user metadata.
func (th *TopicHandler) UserMetadata() map[string]any { return th.info.UserMetadata }

// TopicInfo returns the topic's system metadata.
func (th *TopicHandler) TopicInfo() TopicInfo { return th.info }

// DataStreamer returns the cached TopicDataStreamer, opening one on first
// use. forceNewInstance closes any cached streamer and opens a fresh one.
func (th *TopicHandler) DataStreamer(ctx context.Context, forceNewInstance bool) (*TopicDataStreamer, error) {
	th.mu.Lock()
	defer th.mu.Unlock()

	if th.cachedStreamer != nil {
		if !forceNewInstance {
			return th.cachedStreamer, nil
		}
		_ = th.cachedStreamer.Close()
		th.cachedStreamer = nil
	}

	_, codec, err := ontology.DefaultRegistry.Lookup(th.info.OntologyTag)
	if err != nil {
		return nil, newOpError("data_streamer", th.sequenceName, th.info.Name, KindValidation, err)
	}
	channel, err := th.client.dialer.Dial(ctx, transport.Endpoint{Sequence: th.sequenceName, Topic: th.info.Name}, transport.TopicCreate)
	if err != nil {
		return nil, newOpError("data_streamer", th.sequenceName, th.info.Name, KindTransport, err)
	}
	th.cachedStreamer = newTopicDataStreamer(th.sequenceName, th.info.Name, codec, channel, th.client.tracer)
	return th.cachedStreamer, nil
}

// Close releases the cached streamer, if any.
func (th *TopicHandler) Close() error {
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.cachedStreamer == nil {
		return nil
	}
	err := th.cachedStreamer.Close()
	th.cachedStreamer = nil
	return err
}
