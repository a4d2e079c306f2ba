package docker

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory Client for tests.
type MockClient struct {
	mu         sync.Mutex
	Containers map[string]string // name -> status
	Restarted  []string
	RestartErr error
}

func NewMockClient() *MockClient {
	return &MockClient{Containers: make(map[string]string)}
}

var _ Client = (*MockClient)(nil)

func (c *MockClient) RestartContainer(ctx context.Context, name string, timeout int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.RestartErr != nil {
		return c.RestartErr
	}
	if _, ok := c.Containers[name]; !ok {
		return fmt.Errorf("container %q not found", name)
	}
	c.Containers[name] = "running"
	c.Restarted = append(c.Restarted, name)
	return nil
}

func (c *MockClient) ContainerStatus(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.Containers[name]
	if !ok {
		return "", fmt.Errorf("container %q not found", name)
	}
	return status, nil
}

func (c *MockClient) ListContainers(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.Containers))
	for name := range c.Containers {
		names = append(names, name)
	}
	return names, nil
}
