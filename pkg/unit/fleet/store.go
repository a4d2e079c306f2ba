package fleet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrServerNotFound = errors.New("server not found")

type Store interface {
	Create(ctx context.Context, server *Server) error
	Get(ctx context.Context, id string) (*Server, error)
	List(ctx context.Context, filter Filter) ([]Server, int, error)
	Update(ctx context.Context, server *Server) error

	// SetPaused flips the maintenance-mode flag. Idempotent.
	SetPaused(ctx context.Context, id string, paused bool) error
	// Touch records a heartbeat: last_seen and online status.
	Touch(ctx context.Context, id string, at time.Time) error
	// ListOnlineStale returns servers still marked online whose last_seen is
	// before the cutoff, for the offline sweep.
	ListOnlineStale(ctx context.Context, cutoff time.Time) ([]Server, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	servers map[string]*Server
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{servers: make(map[string]*Server)}
}

func (s *MemoryStore) Create(ctx context.Context, server *Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now()
	}
	if server.Status == "" {
		server.Status = StatusUnknown
	}

	cp := *server
	s.servers[server.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	srv, exists := s.servers[id]
	if !exists {
		return nil, ErrServerNotFound
	}
	cp := *srv
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Server, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Server
	for _, srv := range s.servers {
		if filter.Status != "" && srv.Status != filter.Status {
			continue
		}
		result = append(result, *srv)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
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

func (s *MemoryStore) Update(ctx context.Context, server *Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.servers[server.ID]; !exists {
		return ErrServerNotFound
	}

	cp := *server
	s.servers[server.ID] = &cp
	return nil
}

func (s *MemoryStore) SetPaused(ctx context.Context, id string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, exists := s.servers[id]
	if !exists {
		return ErrServerNotFound
	}
	srv.IsPaused = paused
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, exists := s.servers[id]
	if !exists {
		return ErrServerNotFound
	}
	seen := at
	srv.LastSeen = &seen
	srv.Status = StatusOnline
	return nil
}

func (s *MemoryStore) ListOnlineStale(ctx context.Context, cutoff time.Time) ([]Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Server
	for _, srv := range s.servers {
		if srv.Status != StatusOnline {
			continue
		}
		if srv.LastSeen == nil || srv.LastSeen.Before(cutoff) {
			result = append(result, *srv)
		}
	}
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
