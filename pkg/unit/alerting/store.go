package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists alerts and the cross-heartbeat breach counters. Counters are
// durable keyed records, not process memory, so sustained-breach tracking
// survives coordinator restarts.
type Store interface {
	CreateAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)
	// GetOpenAlert returns the single non-resolved alert for the key, or
	// ErrAlertNotFound when the condition has no open alert.
	GetOpenAlert(ctx context.Context, serverID string, alertType AlertType) (*Alert, error)
	ListAlerts(ctx context.Context, filter Filter) ([]Alert, int, error)
	UpdateAlert(ctx context.Context, alert *Alert) error
	// RecordNotification stamps last_notified_at and the notified tier on an
	// alert that is still unresolved, returning false when the alert resolved
	// or vanished since the caller read it. No other column is touched, so a
	// late notifier can never clobber lifecycle state.
	RecordNotification(ctx context.Context, id string, at time.Time, severity Severity) (bool, error)

	// Breach counters, keyed by (server_id, metric). SetBreachCount with 0
	// clears the record.
	GetBreachCount(ctx context.Context, serverID string, metric MetricType) (int, error)
	SetBreachCount(ctx context.Context, serverID string, metric MetricType, count int) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	alerts   map[string]*Alert
	breaches map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:   make(map[string]*Alert),
		breaches: make(map[string]int),
	}
}

func (s *MemoryStore) CreateAlert(ctx context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.alerts[id]
	if !exists {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetOpenAlert(ctx context.Context, serverID string, alertType AlertType) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.ServerID == serverID && a.Type == alertType && a.Open() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (s *MemoryStore) ListAlerts(ctx context.Context, filter Filter) ([]Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Alert
	for _, a := range s.alerts {
		if filter.ServerID != "" && a.ServerID != filter.ServerID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
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

func (s *MemoryStore) UpdateAlert(ctx context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[alert.ID]; !exists {
		return ErrAlertNotFound
	}

	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *MemoryStore) RecordNotification(ctx context.Context, id string, at time.Time, severity Severity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.alerts[id]
	if !exists || !a.Open() {
		return false, nil
	}
	notified := at
	a.LastNotifiedAt = &notified
	a.NotifiedSeverity = severity
	return true, nil
}

func (s *MemoryStore) GetBreachCount(ctx context.Context, serverID string, metric MetricType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breaches[breachKey(serverID, metric)], nil
}

func (s *MemoryStore) SetBreachCount(ctx context.Context, serverID string, metric MetricType, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := breachKey(serverID, metric)
	if count <= 0 {
		delete(s.breaches, key)
		return nil
	}
	s.breaches[key] = count
	return nil
}

func breachKey(serverID string, metric MetricType) string {
	return serverID + "/" + string(metric)
}

var _ Store = (*MemoryStore)(nil)
