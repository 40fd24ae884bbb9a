package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"meal-plan-assistant/internal/swap"
)

// DefaultPendingTTL is how long substitute options wait for a choice.
const DefaultPendingTTL = 15 * time.Minute

const pendingSwapType = "pending_swap"

var (
	_ swap.PendingStore = (*MemoryStore)(nil)
	_ swap.PendingStore = (*SQLiteStore)(nil)
	_ swap.PendingStore = (*RedisStore)(nil)
)

// MemoryStore keeps pending swaps in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	pending   swap.Pending
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl uses DefaultPendingTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, owner string) (*swap.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[owner]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, owner)
		return nil, nil
	}
	p := clonePending(e.pending)
	return &p, nil
}

func (s *MemoryStore) Put(ctx context.Context, p swap.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[p.Owner] = memoryEntry{pending: clonePending(p), expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, owner)
	return nil
}

// clonePending round-trips through JSON so stored options share no slices
// with the caller.
func clonePending(p swap.Pending) swap.Pending {
	data, err := json.Marshal(p)
	if err != nil {
		return p
	}
	var out swap.Pending
	if err := json.Unmarshal(data, &out); err != nil {
		return p
	}
	return out
}

// SQLiteStore keeps pending swaps in the sessions table.
type SQLiteStore struct {
	repo *Repository
	ttl  time.Duration
}

// NewSQLiteStore creates a SQLiteStore. A non-positive ttl uses DefaultPendingTTL.
func NewSQLiteStore(repo *Repository, ttl time.Duration) *SQLiteStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &SQLiteStore{repo: repo, ttl: ttl}
}

func (s *SQLiteStore) Get(ctx context.Context, owner string) (*swap.Pending, error) {
	sess, err := s.repo.GetActive(ctx, owner, pendingSwapType, time.Now())
	if err != nil || sess == nil {
		return nil, err
	}
	var p swap.Pending
	if err := json.Unmarshal([]byte(sess.ContextData), &p); err != nil {
		return nil, fmt.Errorf("failed to decode pending swap: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) Put(ctx context.Context, p swap.Pending) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pending swap: %w", err)
	}
	return s.repo.Upsert(ctx, p.Owner, pendingSwapType, string(data), s.ttl)
}

func (s *SQLiteStore) Delete(ctx context.Context, owner string) error {
	return s.repo.Delete(ctx, owner, pendingSwapType)
}
