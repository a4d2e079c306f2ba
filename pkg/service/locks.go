package service

import "sync"

// serverLocks serializes engine work per server. Heartbeat handling, the
// offline sweep, and action dispatch for one server must not interleave;
// different servers proceed in parallel.
type serverLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newServerLocks() *serverLocks {
	return &serverLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *serverLocks) lock(serverID string) func() {
	l.mu.Lock()
	m, ok := l.locks[serverID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[serverID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
