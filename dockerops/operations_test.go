package dockerops

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsflow/opsflow/core"
)

// stubAPI implements ContainerAPI with canned data.
type stubAPI struct {
	containers []types.Container
	inspect    map[string]types.ContainerJSON
	logs       []byte
	listErr    error
	inspectErr error
	logsErr    error
	restartErr error

	lastListOptions container.ListOptions
	restarted       []string
}

func (s *stubAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	s.lastListOptions = options
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.containers, nil
}

func (s *stubAPI) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	if s.inspectErr != nil {
		return types.ContainerJSON{}, s.inspectErr
	}
	info, ok := s.inspect[containerID]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(fmt.Errorf("no such container: %s", containerID))
	}
	return info, nil
}

func (s *stubAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	if s.logsErr != nil {
		return nil, s.logsErr
	}
	return io.NopCloser(bytes.NewReader(s.logs)), nil
}

func (s *stubAPI) ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error {
	s.restarted = append(s.restarted, containerID)
	return s.restartErr
}

func runningContainer(name, image string) types.Container {
	return types.Container{
		ID:     "cid-" + name,
		Names:  []string{"/" + name},
		Image:  image,
		State:  "running",
		Status: "Up 2 hours",
	}
}

func inspectResult(name string, running bool, health *types.Health, tty bool) types.ContainerJSON {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			Name: "/" + name,
			State: &types.ContainerState{
				Running: running,
				Status:  map[bool]string{true: "running", false: "exited"}[running],
				Health:  health,
			},
		},
		Config: &container.Config{Tty: tty},
	}
}

// muxFrame wraps payload in the Docker multiplexed stream framing.
func muxFrame(stream byte, payload string) []byte {
	frame := make([]byte, 8+len(payload))
	frame[0] = stream
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	return frame
}

func TestStatusListsContainers(t *testing.T) {
	api := &stubAPI{containers: []types.Container{
		runningContainer("nginx", "nginx:latest"),
		runningContainer("redis", "redis:7"),
	}}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 container(s):")
	assert.Contains(t, out, "nginx (nginx:latest)")
	assert.Contains(t, out, "redis (redis:7)")
	assert.True(t, api.lastListOptions.All, "status should include stopped containers")
}

func TestStatusNoContainers(t *testing.T) {
	p := NewProviderWithAPI(&stubAPI{}, nil)

	out, err := p.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "No containers found on this system", out)

	out, err = p.Status(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "No containers found matching 'ghost'", out)
}

func TestStatusFilterSemantics(t *testing.T) {
	api := &stubAPI{containers: []types.Container{runningContainer("nginx", "nginx:latest")}}
	p := NewProviderWithAPI(api, nil)

	// A known state word filters by status.
	_, err := p.Status(context.Background(), "Running")
	require.NoError(t, err)
	assert.Equal(t, []string{"running"}, api.lastListOptions.Filters.Get("status"))

	// Anything else filters by name.
	_, err = p.Status(context.Background(), "nginx")
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx"}, api.lastListOptions.Filters.Get("name"))
}

func TestStatusDaemonError(t *testing.T) {
	p := NewProviderWithAPI(&stubAPI{listErr: errors.New("dial unix: connection refused")}, nil)

	_, err := p.Status(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.True(t, core.IsRetryable(err))
}

func TestHealthNamedContainer(t *testing.T) {
	api := &stubAPI{inspect: map[string]types.ContainerJSON{
		"web": inspectResult("web", true, &types.Health{Status: types.Healthy}, false),
	}}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Health(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, "✓ web: healthy", out)
}

func TestHealthUnknownContainerIsPermanent(t *testing.T) {
	p := NewProviderWithAPI(&stubAPI{inspect: map[string]types.ContainerJSON{}}, nil)

	_, err := p.Health(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrContainerNotFound)
	assert.True(t, core.IsPermanent(err))
	assert.Contains(t, err.Error(), "'ghost'")
}

func TestHealthAllRunning(t *testing.T) {
	api := &stubAPI{
		containers: []types.Container{
			runningContainer("web", "nginx:latest"),
			runningContainer("db", "postgres:16"),
		},
		inspect: map[string]types.ContainerJSON{
			"cid-web": inspectResult("web", true, &types.Health{Status: types.Healthy}, false),
			"cid-db":  inspectResult("db", true, &types.Health{Status: types.Unhealthy, FailingStreak: 3}, false),
		},
	}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Health(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "Health check for 2 running container(s):")
	assert.Contains(t, out, "✓ web: healthy")
	assert.Contains(t, out, "✗ db: unhealthy (failing streak: 3)")
	assert.Contains(t, out, "Summary: 1/2 containers healthy")
}

func TestHealthNoRunningContainers(t *testing.T) {
	p := NewProviderWithAPI(&stubAPI{}, nil)

	out, err := p.Health(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "No running containers found", out)
}

func TestHealthWithoutHealthcheckFallsBackToState(t *testing.T) {
	api := &stubAPI{inspect: map[string]types.ContainerJSON{
		"plain": inspectResult("plain", true, nil, false),
		"dead":  inspectResult("dead", false, nil, false),
	}}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Health(context.Background(), "plain")
	require.NoError(t, err)
	assert.Equal(t, "✓ plain: running (no healthcheck configured)", out)

	out, err = p.Health(context.Background(), "dead")
	require.NoError(t, err)
	assert.Contains(t, out, "✗ dead: not running")
}

func TestLogsDemultiplexesStreams(t *testing.T) {
	logs := append(muxFrame(1, "stdout line\n"), muxFrame(2, "stderr line\n")...)
	api := &stubAPI{
		inspect: map[string]types.ContainerJSON{"api": inspectResult("api", true, nil, false)},
		logs:    logs,
	}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Logs(context.Background(), "api", 50)
	require.NoError(t, err)
	assert.Contains(t, out, "Last 50 lines from container 'api':")
	assert.Contains(t, out, "stdout line")
	assert.Contains(t, out, "stderr line")
	assert.NotContains(t, out, "\x01", "mux framing must not leak into output")
}

func TestLogsTTYStreamReadRaw(t *testing.T) {
	api := &stubAPI{
		inspect: map[string]types.ContainerJSON{"repl": inspectResult("repl", true, nil, true)},
		logs:    []byte("raw tty output\n"),
	}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Logs(context.Background(), "repl", 10)
	require.NoError(t, err)
	assert.Contains(t, out, "raw tty output")
}

func TestLogsEmpty(t *testing.T) {
	api := &stubAPI{
		inspect: map[string]types.ContainerJSON{"quiet": inspectResult("quiet", true, nil, false)},
	}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Logs(context.Background(), "quiet", 100)
	require.NoError(t, err)
	assert.Equal(t, "No logs found for container 'quiet'", out)
}

func TestLogsUnknownContainer(t *testing.T) {
	p := NewProviderWithAPI(&stubAPI{inspect: map[string]types.ContainerJSON{}}, nil)

	_, err := p.Logs(context.Background(), "ghost", 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrContainerNotFound)
}

func TestRestartSuccess(t *testing.T) {
	api := &stubAPI{
		inspect: map[string]types.ContainerJSON{"nginx": inspectResult("nginx", true, nil, false)},
	}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Restart(context.Background(), "nginx")
	require.NoError(t, err)
	assert.Equal(t, "✓ Successfully restarted container 'nginx'", out)
	assert.Equal(t, []string{"nginx"}, api.restarted)
}

func TestRestartNotRunningAfterward(t *testing.T) {
	api := &stubAPI{
		inspect: map[string]types.ContainerJSON{"flaky": inspectResult("flaky", false, nil, false)},
	}
	p := NewProviderWithAPI(api, nil)

	out, err := p.Restart(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, "Container 'flaky' was restarted but may not be running properly", out)
}

func TestRestartUnknownContainer(t *testing.T) {
	api := &stubAPI{restartErr: errdefs.NotFound(errors.New("no such container"))}
	p := NewProviderWithAPI(api, nil)

	_, err := p.Restart(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrContainerNotFound)
	assert.True(t, core.IsPermanent(err))
}

func TestRestartDaemonErrorIsTransient(t *testing.T) {
	api := &stubAPI{restartErr: errors.New("daemon busy")}
	p := NewProviderWithAPI(api, nil)

	_, err := p.Restart(context.Background(), "nginx")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.True(t, core.IsRetryable(err))
}
