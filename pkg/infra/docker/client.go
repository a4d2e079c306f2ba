// Package docker wraps the container operations the agent needs for
// restart_container actions.
package docker

import "context"

// Client is the interface for the container operations an agent performs.
type Client interface {
	// RestartContainer restarts the named container. timeout is the stop
	// grace period in seconds.
	RestartContainer(ctx context.Context, name string, timeout int) error

	// ContainerStatus returns the container state (e.g. "running", "exited").
	ContainerStatus(ctx context.Context, name string) (string, error)

	// ListContainers returns the names of all containers, running or not.
	ListContainers(ctx context.Context) ([]string, error)
}

var _ Client = (*SDKClient)(nil)
