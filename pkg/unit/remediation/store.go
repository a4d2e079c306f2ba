package remediation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists remediation actions.
//
// MarkExecuting is the dispatch leg's exclusivity point: it must flip
// approved→executing only if the action is still approved, so two racing
// heartbeats can never both deliver the same action.
type Store interface {
	Create(ctx context.Context, action *Action) error
	Get(ctx context.Context, id string) (*Action, error)
	List(ctx context.Context, filter Filter) ([]Action, int, error)
	Update(ctx context.Context, action *Action) error

	// MarkApproved transitions pending→approved, returning false without
	// error if the action already left pending. Like MarkExecuting, the
	// status check and the write are one atomic step so racing approvals
	// cannot overwrite a terminal decision.
	MarkApproved(ctx context.Context, id, by string, at time.Time) (bool, error)
	// MarkRejected transitions pending→rejected with the reason recorded,
	// under the same conditional-write contract as MarkApproved.
	MarkRejected(ctx context.Context, id, by, reason string, at time.Time) (bool, error)
	// NextApproved returns the oldest approved action for the server, or
	// ErrActionNotFound when the queue is empty.
	NextApproved(ctx context.Context, serverID string) (*Action, error)
	// MarkExecuting transitions the action to executing with executed_at set,
	// returning false without error if it was no longer approved.
	MarkExecuting(ctx context.Context, id string, at time.Time) (bool, error)
	// ListExecutingOlderThan returns executing actions dispatched before the
	// cutoff, for the stuck-execution sweep.
	ListExecutingOlderThan(ctx context.Context, cutoff time.Time) ([]Action, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]*Action)}
}

func (s *MemoryStore) Create(ctx context.Context, action *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	cp := *action
	s.actions[action.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.actions[id]
	if !exists {
		return nil, ErrActionNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Action, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Action
	for _, a := range s.actions {
		if filter.ServerID != "" && a.ServerID != filter.ServerID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.AlertID != "" && a.AlertID != filter.AlertID {
			continue
		}
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	total := len(result)

	offset := filter.Offset
	if offset > len(result) {
		offset = len(result)
	}

	end := len(result)
	if filter.Limit > 0 {
		end = offset + filter.Limit
		if end > len(result) {
			end = len(result)
		}
	}

	return result[offset:end], total, nil
}

func (s *MemoryStore) Update(ctx context.Context, action *Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actions[action.ID]; !exists {
		return ErrActionNotFound
	}

	cp := *action
	s.actions[action.ID] = &cp
	return nil
}

func (s *MemoryStore) MarkApproved(ctx context.Context, id, by string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.actions[id]
	if !exists {
		return false, ErrActionNotFound
	}
	if err := Approve(a, by, at); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) MarkRejected(ctx context.Context, id, by, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.actions[id]
	if !exists {
		return false, ErrActionNotFound
	}
	if err := Reject(a, by, reason, at); err != nil {
		if errors.Is(err, ErrReasonRequired) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) NextApproved(ctx context.Context, serverID string) (*Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *Action
	for _, a := range s.actions {
		if a.ServerID != serverID || a.Status != StatusApproved {
			continue
		}
		if oldest == nil || a.CreatedAt.Before(oldest.CreatedAt) {
			oldest = a
		}
	}
	if oldest == nil {
		return nil, ErrActionNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (s *MemoryStore) MarkExecuting(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.actions[id]
	if !exists {
		return false, ErrActionNotFound
	}
	if a.Status != StatusApproved {
		return false, nil
	}

	a.Status = StatusExecuting
	executedAt := at
	a.ExecutedAt = &executedAt
	return true, nil
}

func (s *MemoryStore) ListExecutingOlderThan(ctx context.Context, cutoff time.Time) ([]Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Action
	for _, a := range s.actions {
		if a.Status == StatusExecuting && a.ExecutedAt != nil && a.ExecutedAt.Before(cutoff) {
			result = append(result, *a)
		}
	}
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
