package emergency

import (
	"context"
	"sync"
	"time"
)

// StopStateStore persists the emergency stop flag outside a single
// process, so every replica sharing the store honors a stop raised by
// any of them. Implementations must treat activation as monotonic: only
// Deactivate clears it.
type StopStateStore interface {
	// Activate records the stop flag with its reason.
	Activate(ctx context.Context, reason string) error

	// Deactivate clears the stop flag.
	Deactivate(ctx context.Context) error

	// Get returns whether the flag is set and the recorded reason.
	Get(ctx context.Context) (bool, string, error)
}

// MemoryStopStore is an in-process StopStateStore for single-replica
// deployments and tests.
type MemoryStopStore struct {
	mu          sync.Mutex
	active      bool
	reason      string
	activatedAt time.Time
}

// NewMemoryStopStore creates an inactive in-memory store.
func NewMemoryStopStore() *MemoryStopStore {
	return &MemoryStopStore{}
}

// Activate records the stop flag.
func (s *MemoryStopStore) Activate(_ context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.reason = reason
	s.activatedAt = time.Now()
	return nil
}

// Deactivate clears the stop flag.
func (s *MemoryStopStore) Deactivate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.reason = ""
	return nil
}

// Get returns the current flag state.
func (s *MemoryStopStore) Get(_ context.Context) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.reason, nil
}
