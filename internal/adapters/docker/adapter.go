package docker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/melih/lighthouse-up/internal/core/domain"
	"github.com/melih/lighthouse-up/internal/core/ports"
)

var _ ports.ContainerEngine = (*Adapter)(nil)

// stopSlack is added on top of the shutdown grace so the stop call itself does
// not time out before the daemon kills the container.
const stopSlack = 10 * time.Second

// Adapter implements ports.ContainerEngine using Docker SDK
type Adapter struct {
	cli          *client.Client
	logger       *slog.Logger
	pullProgress io.Writer
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPullProgress renders image pull progress to w.
func WithPullProgress(w io.Writer) Option {
	return func(a *Adapter) {
		if w != nil {
			a.pullProgress = w
		}
	}
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(opts ...Option) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	a := &Adapter{
		cli:          cli,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		pullProgress: io.Discard,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("logger", "docker"))
	return a, nil
}

// Close releases the docker client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// PullIfMissing pulls the image unless it is already present locally.
func (a *Adapter) PullIfMissing(ctx context.Context, image string) error {
	_, _, err := a.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image: %w", err)
	}

	a.logger.Info("pulling image", slog.String("image", image))
	// In a real production system, we should handle registry auth here.
	reader, err := a.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(reader, a.pullProgress, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	return nil
}

// CreateContainer creates, but does not start, the container described by req.
func (a *Adapter) CreateContainer(ctx context.Context, req domain.CreateRequest) (string, error) {
	cfg, hostCfg, err := buildConfig(req)
	if err != nil {
		return "", err
	}
	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, req.ContainerName)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		a.logger.Warn("container create warning", slog.String("name", req.ContainerName), slog.String("warning", w))
	}
	return resp.ID, nil
}

// StartContainer starts a created container.
func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// StopContainer stops a running container. grace is the time granted between
// SIGTERM and SIGKILL; zero uses the daemon default.
func (a *Adapter) StopContainer(ctx context.Context, id string, grace time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, grace+stopSlack)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: stopTimeout(grace)}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// RemoveContainer removes a container, optionally with its anonymous volumes.
func (a *Adapter) RemoveContainer(ctx context.Context, id string, removeVolumes bool) error {
	err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: removeVolumes})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// PortBindings returns the host bindings of all published ports.
func (a *Adapter) PortBindings(ctx context.Context, id string) ([]domain.PortBinding, error) {
	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	if info.NetworkSettings == nil {
		return nil, nil
	}
	return bindingsFromPortMap(info.NetworkSettings.Ports), nil
}

// ContainerExists reports whether a container with the given name exists.
func (a *Adapter) ContainerExists(ctx context.Context, name string) (bool, error) {
	_, err := a.cli.ContainerInspect(ctx, name)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to inspect container: %w", err)
}

// ListBatch returns all containers, running or not, labelled with batchID.
func (a *Adapter) ListBatch(ctx context.Context, batchID string) ([]domain.RuntimeContainer, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", domain.LabelBatch+"="+batchID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var result []domain.RuntimeContainer
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		state := domain.StateStopped
		if c.State == "running" {
			state = domain.StateStarted
		}
		result = append(result, domain.RuntimeContainer{
			ID:      c.ID,
			Name:    c.Labels[domain.LabelName],
			Engine:  name,
			Image:   c.Image,
			State:   state,
			Started: time.Unix(c.Created, 0),
		})
	}
	return result, nil
}

// StreamLogs follows stdout and stderr of a container from its start. Lines are
// delivered on a separate goroutine until onLine returns false, the stream
// ends or the returned handle is closed.
func (a *Adapter) StreamLogs(ctx context.Context, id string, onLine func(string) bool, onError func(error)) (io.Closer, error) {
	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	tty := info.Config != nil && info.Config.Tty

	ctx, cancel := context.WithCancel(ctx)
	logs, err := a.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to stream logs: %w", err)
	}

	go func() {
		defer logs.Close()
		var src io.Reader = logs
		if !tty {
			pr, pw := io.Pipe()
			go func() {
				_, err := stdcopy.StdCopy(pw, pw, logs)
				pw.CloseWithError(err)
			}()
			defer pr.Close()
			src = pr
		}
		if err := scanLines(src, onLine); err != nil && ctx.Err() == nil && onError != nil {
			onError(err)
		}
	}()
	return closerFunc(func() error {
		cancel()
		return nil
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func scanLines(r io.Reader, onLine func(string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !onLine(strings.TrimRight(scanner.Text(), "\r")) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

func buildConfig(req domain.CreateRequest) (*container.Config, *container.HostConfig, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range req.Ports {
		port, err := nat.NewPort(p.Protocol, strconv.Itoa(p.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidSpec, err)
		}
		exposed[port] = struct{}{}
		hostPort := ""
		if !p.Dynamic() {
			hostPort = strconv.Itoa(p.HostPort)
		}
		bindings[port] = append(bindings[port], nat.PortBinding{HostIP: p.HostIP, HostPort: hostPort})
	}

	cfg := &container.Config{
		Image:        req.Spec.Image,
		Env:          envList(req.Env),
		ExposedPorts: exposed,
		Labels:       req.Labels,
	}
	if len(req.Command) > 0 {
		cfg.Cmd = req.Command
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		Links:        req.Links,
		VolumesFrom:  req.VolumesFrom,
		Binds:        req.Spec.Volumes,
	}
	return cfg, hostCfg, nil
}

// envList renders env as sorted KEY=value pairs.
func envList(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

func bindingsFromPortMap(pm nat.PortMap) []domain.PortBinding {
	var result []domain.PortBinding
	for port, bindings := range pm {
		for _, b := range bindings {
			hostPort, err := strconv.Atoi(b.HostPort)
			if err != nil {
				continue
			}
			result = append(result, domain.PortBinding{
				ContainerPort: string(port),
				HostIP:        b.HostIP,
				HostPort:      hostPort,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ContainerPort != result[j].ContainerPort {
			return result[i].ContainerPort < result[j].ContainerPort
		}
		return result[i].HostIP < result[j].HostIP
	})
	return result
}

// stopTimeout converts grace to whole seconds, rounding up.
func stopTimeout(grace time.Duration) *int {
	if grace <= 0 {
		return nil
	}
	secs := int(math.Ceil(grace.Seconds()))
	return &secs
}
