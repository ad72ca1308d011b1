// Package checkpoint provides local, crash-durable bookkeeping of how far a
// SequenceDataStreamer has read into each topic of a sequence, so a
// restarted process can resume without re-reading from the start. This is
// client-local bookkeeping only: it never changes what the server considers
// committed, and a corrupt or missing checkpoint degrades to "start from
// the beginning," never a silent data skip.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// ErrCheckpointCorrupt is returned by Get when a stored checkpoint record
// can't be decoded; callers should treat it as "no checkpoint" rather than
// fail, since a later Put overwrites the bad record.
var ErrCheckpointCorrupt = errors.New("checkpoint: stored record is corrupt")

var bucketName = []byte("checkpoints")

// Position is the last-seen timestamp for one topic of a sequence.
type Position struct {
	Sequence    string
	Topic       string
	TimestampNs int64
	UpdatedAt   time.Time
}

type record struct {
	TimestampNs int64 `json:"timestamp_ns"`
	UpdatedAt   int64 `json:"updated_at"`
}

// Store is a bbolt-backed local checkpoint store, one row per
// (sequence, topic) key.
type Store struct {
	db     *bbolt.DB
	mu     sync.Mutex
	closed bool
}

// Open creates or opens a checkpoint database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "checkpoints.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open bbolt database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func key(sequence, topic string) []byte {
	return []byte(sequence + "\x00" + topic)
}

// Put records the last-seen timestamp for a (sequence, topic) pair.
func (s *Store) Put(sequence, topic string, timestampNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("checkpoint: store is closed")
	}

	rec := record{TimestampNs: timestampNs, UpdatedAt: time.Now().Unix()}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key(sequence, topic), data)
	})
}

// Get returns the last-recorded position for (sequence, topic), or ok=false
// if no checkpoint is stored. When stored bytes fail to decode it reports
// ok=false together with ErrCheckpointCorrupt, so a corrupt checkpoint
// degrades to "start from the beginning" while remaining observable.
func (s *Store) Get(sequence, topic string) (Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Position{}, false, nil
	}

	var found bool
	var pos Position
	var corrupt error
	s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get(key(sequence, topic))
		if data == nil {
			return nil
		}
		dataCopy := make([]byte, len(data))
		copy(dataCopy, data)

		var rec record
		if err := json.Unmarshal(dataCopy, &rec); err != nil {
			corrupt = fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
			return nil
		}
		pos = Position{
			Sequence:    sequence,
			Topic:       topic,
			TimestampNs: rec.TimestampNs,
			UpdatedAt:   time.Unix(rec.UpdatedAt, 0),
		}
		found = true
		return nil
	})
	return pos, found, corrupt
}

// Delete removes any stored checkpoint for (sequence, topic).
func (s *Store) Delete(sequence, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("checkpoint: store is closed")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key(sequence, topic))
	})
}

// Close closes the underlying bbolt database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
