package dockerops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/pkg/stdcopy"
)

// containerStates are the filter values treated as state filters; any
// other filter value filters by container name.
var containerStates = map[string]bool{
	"running":    true,
	"stopped":    true,
	"paused":     true,
	"exited":     true,
	"restarting": true,
}

// Status lists containers with an optional filter. A filter matching a
// known container state filters by state; anything else filters by name.
func (p *Provider) Status(ctx context.Context, filterBy string) (string, error) {
	p.logger.Info("Getting container status", map[string]interface{}{
		"operation": "container_status",
		"filter":    filterBy,
	})

	opts := container.ListOptions{All: true}
	if filterBy != "" {
		args := filters.NewArgs()
		if containerStates[strings.ToLower(filterBy)] {
			args.Add("status", strings.ToLower(filterBy))
		} else {
			args.Add("name", filterBy)
		}
		opts.Filters = args
	}

	containers, err := p.api.ContainerList(ctx, opts)
	if err != nil {
		return "", classify(err, filterBy)
	}

	if len(containers) == 0 {
		if filterBy != "" {
			return fmt.Sprintf("No containers found matching '%s'", filterBy), nil
		}
		return "No containers found on this system", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d container(s):\n", len(containers))
	for _, c := range containers {
		b.WriteString("\n")
		b.WriteString(formatContainer(c))
		b.WriteString("\n")
	}

	p.logger.Info("Container status retrieved", map[string]interface{}{
		"operation": "container_status",
		"count":     len(containers),
	})
	return b.String(), nil
}

// Health checks one container's health, or the health of all running
// containers when name is empty.
func (p *Provider) Health(ctx context.Context, name string) (string, error) {
	p.logger.Info("Checking container health", map[string]interface{}{
		"operation": "container_health",
		"container": name,
	})

	if name != "" {
		info, err := p.api.ContainerInspect(ctx, name)
		if err != nil {
			return "", classify(err, name)
		}
		return formatHealth(info), nil
	}

	containers, err := p.api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return "", classify(err, name)
	}
	if len(containers) == 0 {
		return "No running containers found", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Health check for %d running container(s):\n", len(containers))
	healthy := 0
	for _, c := range containers {
		b.WriteString("\n")
		info, err := p.api.ContainerInspect(ctx, c.ID)
		if err != nil {
			fmt.Fprintf(&b, "✗ %s: error checking health - %v\n", containerName(c), err)
			continue
		}
		b.WriteString(formatHealth(info))
		b.WriteString("\n")
		if isHealthy(info) {
			healthy++
		}
	}
	fmt.Fprintf(&b, "\nSummary: %d/%d containers healthy", healthy, len(containers))
	return b.String(), nil
}

// Logs retrieves the last lines log lines from a container
func (p *Provider) Logs(ctx context.Context, name string, lines int) (string, error) {
	p.logger.Info("Getting container logs", map[string]interface{}{
		"operation": "container_logs",
		"container": name,
		"lines":     lines,
	})

	// Inspect first: it classifies a missing container and tells us
	// whether the log stream is multiplexed.
	info, err := p.api.ContainerInspect(ctx, name)
	if err != nil {
		return "", classify(err, name)
	}

	rc, err := p.api.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(lines),
	})
	if err != nil {
		return "", classify(err, name)
	}
	defer func() { _ = rc.Close() }()

	logs, err := readLogStream(rc, info.Config != nil && info.Config.Tty)
	if err != nil {
		return "", classify(err, name)
	}

	if strings.TrimSpace(logs) == "" {
		return fmt.Sprintf("No logs found for container '%s'", name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last %d lines from container '%s':\n", lines, name)
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n")
	b.WriteString(logs)
	return b.String(), nil
}

// Restart restarts a container and verifies it came back up
func (p *Provider) Restart(ctx context.Context, name string) (string, error) {
	p.logger.Info("Restarting container", map[string]interface{}{
		"operation": "container_restart",
		"container": name,
	})

	if err := p.api.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return "", classify(err, name)
	}

	info, err := p.api.ContainerInspect(ctx, name)
	if err == nil && info.State != nil && info.State.Running {
		p.logger.Info("Container restarted", map[string]interface{}{
			"operation": "container_restart",
			"container": name,
		})
		return fmt.Sprintf("✓ Successfully restarted container '%s'", name), nil
	}

	p.logger.Warn("Container restarted but not running", map[string]interface{}{
		"operation": "container_restart",
		"container": name,
	})
	return fmt.Sprintf("Container '%s' was restarted but may not be running properly", name), nil
}

// readLogStream reads a log stream, demultiplexing stdout/stderr unless
// the container was started with a TTY (raw stream).
func readLogStream(rc io.Reader, tty bool) (string, error) {
	if tty {
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatContainer(c types.Container) string {
	return fmt.Sprintf("%s (%s)\n  State: %s | %s", containerName(c), c.Image, c.State, c.Status)
}

func containerName(c types.Container) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	if len(c.ID) >= 12 {
		return c.ID[:12]
	}
	return c.ID
}

// formatHealth renders one container's health line. Containers without
// a configured healthcheck fall back to run state.
func formatHealth(info types.ContainerJSON) string {
	name := strings.TrimPrefix(info.Name, "/")
	state := info.State
	if state == nil {
		return fmt.Sprintf("✗ %s: state unknown", name)
	}

	if state.Health != nil {
		switch state.Health.Status {
		case types.Healthy:
			return fmt.Sprintf("✓ %s: healthy", name)
		case types.Starting:
			return fmt.Sprintf("~ %s: starting (health check pending)", name)
		default:
			return fmt.Sprintf("✗ %s: %s (failing streak: %d)",
				name, state.Health.Status, state.Health.FailingStreak)
		}
	}

	if state.Running {
		return fmt.Sprintf("✓ %s: running (no healthcheck configured)", name)
	}
	return fmt.Sprintf("✗ %s: not running (status: %s)", name, state.Status)
}

func isHealthy(info types.ContainerJSON) bool {
	if info.State == nil {
		return false
	}
	if info.State.Health != nil {
		return info.State.Health.Status == types.Healthy
	}
	return info.State.Running
}
