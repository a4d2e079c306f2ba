package service

import (
	"context"
	"fmt"

	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
)

// FleetService exposes server listing and the maintenance toggle.
type FleetService struct {
	servers fleet.Store
	bus     *eventbus.Bus
}

func NewFleetService(servers fleet.Store, bus *eventbus.Bus) *FleetService {
	return &FleetService{servers: servers, bus: bus}
}

type ListServersResult struct {
	Servers []fleet.Server `json:"servers"`
	Total   int            `json:"total"`
}

func (s *FleetService) List(ctx context.Context, filter fleet.Filter) (*ListServersResult, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	servers, total, err := s.servers.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return &ListServersResult{Servers: servers, Total: total}, nil
}

func (s *FleetService) Get(ctx context.Context, id string) (*fleet.Server, error) {
	return s.servers.Get(ctx, id)
}

// SetPaused flips maintenance mode. Idempotent; affects only actions created
// after the flip.
func (s *FleetService) SetPaused(ctx context.Context, id string, paused bool) (*fleet.Server, error) {
	if err := s.servers.SetPaused(ctx, id, paused); err != nil {
		return nil, err
	}

	server, err := s.servers.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.Info("server maintenance mode", "server_id", id, "paused", paused)
	publish(s.bus, "server", "server.maintenance", server)
	return server, nil
}
