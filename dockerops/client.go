package dockerops

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/opsflow/opsflow/core"
)

// ContainerAPI is the slice of the Docker Engine API the provider
// needs. *client.Client satisfies it; tests substitute a stub.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

// Provider exposes container operations as handler capabilities.
// Failures are classified for the step executor's retry policy:
// a missing container is permanent, daemon connectivity is transient.
type Provider struct {
	api    ContainerAPI
	logger core.Logger
}

// NewProvider connects to the Docker daemon. An empty host falls back
// to DOCKER_HOST and the platform default socket.
func NewProvider(host string, logger core.Logger) (*Provider, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return NewProviderWithAPI(cli, logger), nil
}

// NewProviderWithAPI creates a provider over an existing API client
func NewProviderWithAPI(api ContainerAPI, logger core.Logger) *Provider {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Provider{api: api, logger: logger}
}

// classify maps Docker API errors onto the transient/permanent error
// taxonomy. name is the container the operation targeted.
func classify(err error, name string) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: '%s'", core.ErrContainerNotFound, name)
	}
	return fmt.Errorf("%w: %v", core.ErrConnectionFailed, err)
}
