package fleet

import "time"

type ServerStatus string

const (
	StatusOnline  ServerStatus = "online"
	StatusOffline ServerStatus = "offline"
	StatusUnknown ServerStatus = "unknown"
)

// Server is the monitored host the engine references. The engine owns the
// status/last_seen fields it maintains from heartbeats and the offline sweep;
// IsPaused is the maintenance-mode flag read by the action queue at creation
// time only.
type Server struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    ServerStatus `json:"status"`
	IsPaused  bool         `json:"is_paused"`
	LastSeen  *time.Time   `json:"last_seen,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type Filter struct {
	Status ServerStatus
	Limit  int
	Offset int
}
