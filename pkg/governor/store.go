// Package governor enforces per-workflow cooldowns and rolling-hour rate
// limits. All mutations to cooldown and rate state go through a Store's
// atomic primitives; no other component writes this state.
package governor

import (
	"context"
	"sync"
	"time"
)

// Store is the persistent counter store behind the governor. Reserve and
// ReserveExecution are the only mutation primitives and both are atomic
// claim-if-allowed operations, so two concurrent events cannot both pass the
// same gate.
type Store interface {
	// Reserve claims key for ttl if it is absent or expired. Returns true
	// when the claim succeeded.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Live reports whether a non-expired reservation exists for key.
	Live(ctx context.Context, key string) (bool, error)

	// ReserveExecution atomically claims one rate-window slot when fewer
	// than max claims fall inside the trailing window. The token names the
	// claim so a later gate denial can withdraw it.
	ReserveExecution(ctx context.Context, workflowID, token string, window time.Duration, max int) (bool, error)

	// ReleaseExecution withdraws a claimed slot. Unknown tokens are a no-op.
	ReleaseExecution(ctx context.Context, workflowID, token string) error

	// CountInWindow counts claimed slots within the trailing window.
	CountInWindow(ctx context.Context, workflowID string, window time.Duration) (int, error)

	Close() error
}

// MemoryStore is a mutex-guarded in-process Store. The clock is injectable
// for tests; production uses time.Now.
type MemoryStore struct {
	mu         sync.Mutex
	cooldowns  map[string]time.Time
	executions map[string][]execution
	now        func() time.Time
}

type execution struct {
	at    time.Time
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cooldowns:  make(map[string]time.Time),
		executions: make(map[string][]execution),
		now:        time.Now,
	}
}

// WithClock replaces the store's time source. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now

	return s
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if expiry, ok := s.cooldowns[key]; ok && expiry.After(now) {
		return false, nil
	}

	s.cooldowns[key] = now.Add(ttl)

	return true, nil
}

func (s *MemoryStore) Live(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.cooldowns[key]

	return ok && expiry.After(s.now()), nil
}

func (s *MemoryStore) ReserveExecution(_ context.Context, workflowID, token string, window time.Duration, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.prune(workflowID, window)) >= max {
		return false, nil
	}

	s.executions[workflowID] = append(s.executions[workflowID], execution{at: s.now(), token: token})

	return true, nil
}

func (s *MemoryStore) ReleaseExecution(_ context.Context, workflowID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.executions[workflowID][:0]

	for _, entry := range s.executions[workflowID] {
		if entry.token != token {
			kept = append(kept, entry)
		}
	}

	s.executions[workflowID] = kept

	return nil
}

func (s *MemoryStore) CountInWindow(_ context.Context, workflowID string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.prune(workflowID, window)), nil
}

// prune drops entries past the window edge; callers hold s.mu.
func (s *MemoryStore) prune(workflowID string, window time.Duration) []execution {
	cutoff := s.now().Add(-window)
	kept := s.executions[workflowID][:0]

	for _, entry := range s.executions[workflowID] {
		if entry.at.After(cutoff) {
			kept = append(kept, entry)
		}
	}

	s.executions[workflowID] = kept

	return kept
}

func (s *MemoryStore) Close() error {
	return nil
}
