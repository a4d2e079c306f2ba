package service

import (
	"github.com/homelabcmd/homelabcmd/pkg/infra/eventbus"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// normalizePage clamps list pagination: zero limit gets the default, and the
// limit never exceeds the maximum.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// publish sends a bus event, logging instead of failing the operation when
// the bus is saturated. Engine state changes must never depend on delivery.
func publish(bus *eventbus.Bus, domain, eventType string, payload any) {
	if bus == nil {
		return
	}
	if err := bus.Publish(eventbus.NewEvent(domain, eventType, payload)); err != nil {
		logger.Warn("event dropped", "domain", domain, "type", eventType, "error", err)
	}
}
