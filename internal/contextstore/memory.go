package contextstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rick1330/cybersage/internal/types"
)

// MemoryStore implements Store in memory. Suitable for single-process
// deployments and tests; contexts expire after the configured TTL.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[types.ID]*Context
	ttl      time.Duration
	now      func() time.Time
}

// MemoryOption is a functional option for configuring MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL sets the context time-to-live. Default: DefaultTTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source. Used by tests to exercise expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a new in-memory context store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		contexts: make(map[types.ID]*Context),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateContext implements Store.
func (s *MemoryStore) CreateContext(ctx context.Context, workflowID types.ID, contextType types.ContextType, level types.SecurityLevel) (*Context, error) {
	if workflowID.IsZero() {
		return nil, types.NewError(types.CONTEXT_CREATE_FAILED, "workflow id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contexts[workflowID]; exists {
		return nil, types.NewError(types.CONTEXT_CREATE_FAILED,
			fmt.Sprintf("context already exists for workflow %s", workflowID))
	}

	wctx := newContext(workflowID, contextType, level, s.ttl)
	s.contexts[workflowID] = wctx

	return copyContext(wctx), nil
}

// GetContext implements Store.
func (s *MemoryStore) GetContext(ctx context.Context, workflowID types.ID) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wctx, exists := s.contexts[workflowID]
	if !exists {
		return nil, types.NewError(types.CONTEXT_NOT_FOUND,
			fmt.Sprintf("context not found for workflow %s", workflowID))
	}

	if s.now().UTC().After(wctx.Expiry) {
		delete(s.contexts, workflowID)
		return nil, types.NewError(types.CONTEXT_NOT_FOUND,
			fmt.Sprintf("context expired for workflow %s", workflowID))
	}

	return copyContext(wctx), nil
}

// UpdateContext implements Store. The update is merged into the context
// state and the expiry is extended by the store TTL.
func (s *MemoryStore) UpdateContext(ctx context.Context, workflowID types.ID, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wctx, exists := s.contexts[workflowID]
	if !exists {
		return types.NewError(types.CONTEXT_NOT_FOUND,
			fmt.Sprintf("context not found for workflow %s", workflowID))
	}

	now := s.now().UTC()
	if now.After(wctx.Expiry) {
		delete(s.contexts, workflowID)
		return types.NewError(types.CONTEXT_EXPIRED,
			fmt.Sprintf("context expired for workflow %s", workflowID))
	}

	for k, v := range updates {
		wctx.State[k] = v
	}
	wctx.LastUpdated = now
	wctx.Expiry = now.Add(s.ttl)

	return nil
}

// ClearContext implements Store.
func (s *MemoryStore) ClearContext(ctx context.Context, workflowID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contexts, workflowID)
	return nil
}

// Len returns the number of live contexts. Useful for monitoring and tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

// copyContext returns a deep-enough copy so callers cannot mutate the
// stored state through the returned pointer.
func copyContext(c *Context) *Context {
	cp := *c
	cp.State = make(map[string]any, len(c.State))
	for k, v := range c.State {
		cp.State[k] = v
	}
	cp.Metadata = make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// Ensure MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
