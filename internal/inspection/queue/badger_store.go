package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var (
	pendingPrefix = []byte("pending/")
	parkedPrefix  = []byte("parked/")
	seqKey        = []byte("queue-seq")
)

// BadgerStore is the durable Store used on devices that must survive a full
// reload: queued submissions are written to an embedded badger database and
// read back in append order on the next start.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadgerStore opens (or creates) the queue database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database at %s: %w", dir, err)
	}
	seq, err := db.GetSequence(seqKey, 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open queue sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Append(ctx context.Context, item *QueuedSubmission) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to advance queue sequence: %w", err)
	}
	// Sequence numbers start at 1 so a zero Seq always means "unassigned".
	item.Seq = n + 1

	value, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode queued submission: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(item.Seq), value)
	})
	if err != nil {
		return fmt.Errorf("failed to append queued submission: %w", err)
	}
	return nil
}

func (s *BadgerStore) Pending(ctx context.Context) ([]QueuedSubmission, error) {
	return s.scan(pendingPrefix)
}

func (s *BadgerStore) Remove(ctx context.Context, seq uint64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(pendingKey(seq))
	})
	if err != nil {
		return fmt.Errorf("failed to remove queued submission %d: %w", seq, err)
	}
	return nil
}

func (s *BadgerStore) Park(ctx context.Context, seq uint64, reason string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pendingKey(seq))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		var queued QueuedSubmission
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &queued)
		}); err != nil {
			return err
		}
		queued.ParkReason = reason
		value, err := json.Marshal(&queued)
		if err != nil {
			return err
		}
		if err := txn.Set(parkedKey(seq), value); err != nil {
			return err
		}
		return txn.Delete(pendingKey(seq))
	})
	if err != nil {
		return fmt.Errorf("failed to park queued submission %d: %w", seq, err)
	}
	return nil
}

func (s *BadgerStore) Parked(ctx context.Context) ([]QueuedSubmission, error) {
	return s.scan(parkedPrefix)
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("failed to release queue sequence: %w", err)
	}
	return s.db.Close()
}

// scan reads all entries under a prefix. Keys embed the big-endian sequence
// number, so badger's lexicographic iteration yields FIFO order directly.
func (s *BadgerStore) scan(prefix []byte) ([]QueuedSubmission, error) {
	var items []QueuedSubmission
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var queued QueuedSubmission
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &queued)
			}); err != nil {
				return err
			}
			items = append(items, queued)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}
	return items, nil
}

func pendingKey(seq uint64) []byte { return numberedKey(pendingPrefix, seq) }
func parkedKey(seq uint64) []byte  { return numberedKey(parkedPrefix, seq) }

func numberedKey(prefix []byte, seq uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}
