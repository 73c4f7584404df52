// Package offsetstore persists committed consumer-group offsets for the
// byte-stream backend. It is what lets a resumable consumer pick up from its
// previous committed sequence after a process restart; message history
// itself is never persisted here.
package offsetstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"github.com/carlocorradini/sea-streamer/internal/logger"
	"github.com/carlocorradini/sea-streamer/stream"
)

// Store is a pebble-backed map of (group, stream, shard) to the last
// committed sequence.
type Store struct {
	db  *pebble.DB
	log zerolog.Logger
}

// Open creates or opens the store under dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("offsetstore: directory is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("offsetstore: failed to open %s: %w", dir, err)
	}
	return &Store{
		db:  db,
		log: logger.WithComponent("offsetstore"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// offsetKey composes the storage key. Stream keys cannot contain '|', which
// keeps the composition unambiguous.
func offsetKey(group string, key stream.StreamKey, shard stream.ShardID) []byte {
	return []byte(fmt.Sprintf("offset|%s|%s|%d", group, key, shard))
}

// Commit stores the sequence idempotently: a commit lower than the stored
// one is ignored, so replayed or out-of-order commits never move the cursor
// backwards.
func (s *Store) Commit(group string, key stream.StreamKey, shard stream.ShardID, seq stream.SeqNo) error {
	k := offsetKey(group, key, shard)

	if prev, ok, err := s.get(k); err != nil {
		return err
	} else if ok && seq <= prev {
		return nil
	}

	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(seq))
	if err := s.db.Set(k, v[:], pebble.Sync); err != nil {
		return fmt.Errorf("offsetstore: failed to commit: %w", err)
	}

	s.log.Debug().
		Str("group", group).
		Str("stream", string(key)).
		Uint32("shard", uint32(shard)).
		Uint64("seq", uint64(seq)).
		Msg("Offset committed")
	return nil
}

// Committed loads the last committed sequence, reporting whether one exists.
func (s *Store) Committed(group string, key stream.StreamKey, shard stream.ShardID) (stream.SeqNo, bool, error) {
	seq, ok, err := s.get(offsetKey(group, key, shard))
	return seq, ok, err
}

func (s *Store) get(k []byte) (stream.SeqNo, bool, error) {
	v, closer, err := s.db.Get(k)
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("offsetstore: failed to read: %w", err)
	}
	defer closer.Close()
	if len(v) < 8 {
		return 0, false, nil
	}
	return stream.SeqNo(binary.BigEndian.Uint64(v[:8])), true, nil
}
