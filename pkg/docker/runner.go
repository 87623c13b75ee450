// Package docker runs judge requests in local Docker containers. It is the
// development fallback for environments without a remote go-judge instance.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/explab-api/pkg/judge"
)

const (
	statusAccepted     = "Accepted"
	statusNonzeroExit  = "Nonzero Exit Status"
	statusTimeExceeded = "Time Limit Exceeded"
)

// ErrUnsafePath is returned when a copyIn entry would escape the workspace.
var ErrUnsafePath = errors.New("copyIn path escapes workspace")

// Config groups runner configuration values.
type Config struct {
	Host       string
	Image      string
	WorkingDir string
	Network    bool
	Logger     zerolog.Logger
}

// Runner implements judge.Runner using Docker containers.
type Runner struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewRunner constructs a Docker backed judge runner.
func NewRunner(cfg Config) (*Runner, error) {
	if strings.TrimSpace(cfg.Image) == "" {
		return nil, errors.New("docker image is required")
	}

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	return &Runner{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/explab-api/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "docker_runner").Logger(),
	}, nil
}

// Run materializes the virtual file tree of the first command into a temporary
// workspace and executes the command inside a container mounted on it.
func (r *Runner) Run(parent context.Context, req judge.Request) (result judge.Result, err error) {
	ctx, span := r.tracer.Start(parent, "docker.runner.run", trace.WithAttributes(
		attribute.String("docker.image", r.cfg.Image),
	))
	started := time.Now()
	defer func() {
		judge.ObserveRun("docker", started, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(req.Cmd) != 1 {
		return judge.Result{}, fmt.Errorf("docker runner supports exactly one command, got %d", len(req.Cmd))
	}
	cmd := req.Cmd[0]

	workspace, err := os.MkdirTemp("", "explab-judge-*")
	if err != nil {
		return judge.Result{}, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			r.logger.Warn().Err(rmErr).Str("workspace", workspace).Msg("failed to remove workspace")
		}
	}()

	if err := Materialize(workspace, cmd.CopyIn); err != nil {
		return judge.Result{}, err
	}

	timeout := time.Duration(cmd.CPULimit)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory: cmd.MemoryLimit,
		},
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: r.cfg.WorkingDir,
		}},
	}
	if cmd.ProcLimit > 0 {
		pids := int64(cmd.ProcLimit)
		hostCfg.Resources.PidsLimit = &pids
	}
	if r.cfg.Network {
		hostCfg.NetworkMode = "bridge"
	}

	config := &container.Config{
		Image:        r.cfg.Image,
		Cmd:          cmd.Args,
		Env:          cmd.Env,
		WorkingDir:   r.cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	resp, err := r.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return judge.Result{}, fmt.Errorf("container create: %w", err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return judge.Result{}, fmt.Errorf("container start: %w", err)
	}

	result = judge.Result{Status: statusAccepted, Files: map[string]string{}}

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitStatus = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	timedOut := false
	if waitErr != nil {
		if !errors.Is(waitErr, context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return judge.Result{}, fmt.Errorf("container wait: %w", waitErr)
		}
		timedOut = true
		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
	}

	logReader, err := r.client.ContainerLogs(parent, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return judge.Result{}, fmt.Errorf("container logs: %w", err)
	}
	defer logReader.Close()

	stdout, stderr, err := splitDockerLogs(logReader)
	if err != nil {
		return judge.Result{}, fmt.Errorf("read container logs: %w", err)
	}

	switch {
	case timedOut:
		result.Status = statusTimeExceeded
		stderr += fmt.Sprintf("\ntime limit exceeded after %s", timeout)
	case result.ExitStatus != 0:
		result.Status = statusNonzeroExit
	}

	result.Files["stdout"] = truncate(stdout, cmd.OutputLimit("stdout"))
	result.Files["stderr"] = truncate(strings.TrimPrefix(stderr, "\n"), cmd.OutputLimit("stderr"))
	result.Time = time.Since(started).Nanoseconds()
	result.Memory = r.memoryUsage(parent, containerID)

	return result, nil
}

func (r *Runner) memoryUsage(parent context.Context, containerID string) int64 {
	statsCtx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	stats, err := r.client.ContainerStatsOneShot(statsCtx, containerID)
	if err != nil {
		return 0
	}
	defer stats.Body.Close()

	var data types.StatsJSON
	if err := json.NewDecoder(stats.Body).Decode(&data); err != nil {
		return 0
	}
	return int64(data.MemoryStats.Usage)
}

// Materialize writes a judge copyIn tree below root. Keys ending in a slash
// become directories.
func Materialize(root string, copyIn map[string]judge.CopyInFile) error {
	for name, file := range copyIn {
		isDir := strings.HasSuffix(name, "/")
		rel := filepath.FromSlash(strings.TrimSuffix(name, "/"))
		if rel == "" || !filepath.IsLocal(rel) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}

		target := filepath.Join(root, rel)
		if isDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(target, []byte(file.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func truncate(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	return s[:max]
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the runner's underlying client.
func (r *Runner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
