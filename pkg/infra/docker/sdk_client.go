package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// SDKClient implements Client using the official Docker Go SDK.
type SDKClient struct {
	cli *dockerclient.Client
}

// NewSDKClient creates an SDKClient configured from environment variables
// (DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH, DOCKER_API_VERSION).
func NewSDKClient() (*SDKClient, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client: %w", err)
	}
	return &SDKClient{cli: cli}, nil
}

// RestartContainer restarts the named container with the given stop timeout
// in seconds.
func (c *SDKClient) RestartContainer(ctx context.Context, name string, timeout int) error {
	opts := container.StopOptions{Timeout: &timeout}
	if err := c.cli.ContainerRestart(ctx, name, opts); err != nil {
		return fmt.Errorf("docker ContainerRestart: %w", err)
	}
	return nil
}

// ContainerStatus returns the container state string (e.g. "running", "exited").
func (c *SDKClient) ContainerStatus(ctx context.Context, name string) (string, error) {
	info, err := c.cli.ContainerInspect(ctx, name)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return "", fmt.Errorf("container %q not found", name)
		}
		return "", fmt.Errorf("docker ContainerInspect: %w", err)
	}
	return info.State.Status, nil
}

// ListContainers returns the names of all containers, running or not.
func (c *SDKClient) ListContainers(ctx context.Context) ([]string, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("docker ContainerList: %w", err)
	}

	names := make([]string, 0, len(containers))
	for _, ct := range containers {
		for _, n := range ct.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}
	}
	return names, nil
}

// Close releases the underlying SDK client.
func (c *SDKClient) Close() error {
	return c.cli.Close()
}
