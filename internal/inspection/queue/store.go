package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/model"
)

// QueuedSubmission is one step submission awaiting delivery. The original
// idempotency key travels with it so a replay of a submission that actually
// reached the server is absorbed as a duplicate, never a double effect.
type QueuedSubmission struct {
	Seq        uint64              `json:"seq"` // Append order, assigned by the store
	OrderID    string              `json:"orderId"`
	RunID      uuid.UUID           `json:"runId"`
	Request    model.SubmitStepDTO `json:"request"`
	EnqueuedAt time.Time           `json:"enqueuedAt"`
	ParkReason string              `json:"parkReason,omitempty"`
}

// Store is the durable port behind the offline queue. Implementations must
// preserve append order and survive process restarts where durability is
// required; the queue logic itself is storage-agnostic so it can run against
// badger on a handheld client or in memory under test.
type Store interface {
	// Append persists item at the tail of the pending list and assigns its
	// sequence number.
	Append(ctx context.Context, item *QueuedSubmission) error

	// Pending returns all queued submissions in append (FIFO) order.
	Pending(ctx context.Context) ([]QueuedSubmission, error)

	// Remove deletes a delivered submission from the pending list.
	Remove(ctx context.Context, seq uint64) error

	// Park moves a submission out of the automatic retry path, recording
	// why. Parked entries await manual attention and never block the drain.
	Park(ctx context.Context, seq uint64, reason string) error

	// Parked returns the submissions set aside for manual attention.
	Parked(ctx context.Context) ([]QueuedSubmission, error)

	// Close releases the store's resources.
	Close() error
}

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.Mutex
	nextSeq uint64
	pending map[uint64]QueuedSubmission
	parked  map[uint64]QueuedSubmission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextSeq: 1,
		pending: make(map[uint64]QueuedSubmission),
		parked:  make(map[uint64]QueuedSubmission),
	}
}

func (s *MemoryStore) Append(ctx context.Context, item *QueuedSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Seq = s.nextSeq
	s.nextSeq++
	s.pending[item.Seq] = *item
	return nil
}

func (s *MemoryStore) Pending(ctx context.Context) ([]QueuedSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.pending), nil
}

func (s *MemoryStore) Remove(ctx context.Context, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, seq)
	return nil
}

func (s *MemoryStore) Park(ctx context.Context, seq uint64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.pending[seq]
	if !ok {
		return nil
	}
	delete(s.pending, seq)
	item.ParkReason = reason
	s.parked[seq] = item
	return nil
}

func (s *MemoryStore) Parked(ctx context.Context) ([]QueuedSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.parked), nil
}

func (s *MemoryStore) Close() error { return nil }

func sortedValues(m map[uint64]QueuedSubmission) []QueuedSubmission {
	out := make([]QueuedSubmission, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
