// Package orchestrator starts a resolved batch of containers one after the
// other, waits for each to become ready and rolls the whole batch back when any
// step fails.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/melih/lighthouse-up/internal/core/domain"
	"github.com/melih/lighthouse-up/internal/core/ports"
	"github.com/melih/lighthouse-up/internal/core/wait"
)

// Options configures an Orchestrator.
type Options struct {
	// ShowLogs is "true", "false", a comma separated list of container names, or
	// empty to use each container's own setting.
	ShowLogs       string
	Follow         bool
	KeepContainers bool
	RemoveVolumes  bool
	// Properties seed ${NAME} substitution in probe URLs and env values.
	Properties map[string]string
	// LogOutput receives tracked container log lines. Defaults to stdout.
	LogOutput io.Writer
	Logger    *slog.Logger
}

// Orchestrator sequences create, start, port capture, log tracking and wait for
// every container of a batch.
type Orchestrator struct {
	engine ports.ContainerEngine
	waiter *wait.Engine
	sink   ports.PropertySink
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator. sink may be nil.
func New(engine ports.ContainerEngine, waiter *wait.Engine, sink ports.PropertySink, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}
	return &Orchestrator{
		engine: engine,
		waiter: waiter,
		sink:   sink,
		opts:   opts,
		logger: logger.With(slog.String("logger", "orchestrator")),
	}
}

// StartAll starts the containers in order. Containers are started strictly one
// after the other; container i+1 is created only once container i is ready. On
// any failure every started container is stopped in reverse start order and the
// first failure is returned. The batch is returned in both cases.
func (o *Orchestrator) StartAll(ctx context.Context, order []domain.ContainerSpec) (*Batch, error) {
	b := o.newBatch()
	b.logger.Info("starting batch", slog.Int("containers", len(order)))

	if err := b.startAll(ctx, order); err != nil {
		b.logger.Error("error occurred during container startup, shutting down", slog.Any("error", err))
		if stopErr := b.StopAll(context.WithoutCancel(ctx)); stopErr != nil {
			b.logger.Warn("rollback finished with errors", slog.Any("error", stopErr))
		}
		return b, err
	}
	b.logger.Info("batch ready", slog.Int("containers", len(order)))
	return b, nil
}

func (o *Orchestrator) newBatch() *Batch {
	id := uuid.NewString()
	props := make(map[string]string, len(o.opts.Properties))
	maps.Copy(props, o.opts.Properties)
	return &Batch{
		o:         o,
		id:        id,
		props:     props,
		portProps: make(map[string]string),
		byName:    make(map[string]*entry),
		done:      make(chan struct{}),
		logger:    o.logger.With(slog.String("batch", id)),
	}
}

func (b *Batch) startAll(ctx context.Context, order []domain.ContainerSpec) error {
	for _, spec := range order {
		if err := b.startOne(ctx, spec); err != nil {
			return err
		}
	}
	if b.o.sink != nil && len(b.portProps) > 0 {
		if err := b.o.sink.Write(b.Properties()); err != nil {
			return fmt.Errorf("write port properties: %w", err)
		}
	}
	return nil
}

func (b *Batch) startOne(ctx context.Context, spec domain.ContainerSpec) (retErr error) {
	e := b.add(spec)
	defer func() {
		if retErr != nil {
			b.setState(e, domain.StateFailed)
		}
	}()
	engine := b.o.engine

	if err := interrupted(ctx, spec.Name); err != nil {
		return err
	}
	if spec.PullEnabled() {
		if err := engine.PullIfMissing(ctx, spec.Image); err != nil {
			return &domain.EngineCallError{Op: "pull image for", Container: spec.Name, Err: err}
		}
	}
	b.setState(e, domain.StateImageReady)

	req, err := b.createRequest(spec)
	if err != nil {
		return fmt.Errorf("%s: %w", spec.Name, err)
	}
	if err := interrupted(ctx, spec.Name); err != nil {
		return err
	}
	id, err := engine.CreateContainer(ctx, req)
	if err != nil {
		return &domain.EngineCallError{Op: "create", Container: spec.Name, Err: err}
	}
	b.mu.Lock()
	e.rc.ID = id
	e.rc.State = domain.StateCreated
	b.mu.Unlock()

	if err := engine.StartContainer(ctx, id); err != nil {
		b.removeUnstarted(ctx, e)
		return &domain.EngineCallError{Op: "start", Container: spec.Name, Err: err}
	}
	b.markStarted(e)
	b.logger.Info("container started",
		slog.String("name", spec.Name),
		slog.String("container_id", id),
		slog.String("image", spec.Image),
	)

	// Dynamic ports must be known before any probe URL is expanded.
	bindings, err := engine.PortBindings(ctx, id)
	if err != nil {
		return &domain.EngineCallError{Op: "inspect ports of", Container: spec.Name, Err: err}
	}
	b.capturePorts(e, req.Ports, bindings)

	e.watcher = wait.NewLogWatcher(engine, id, b.logger)
	if b.o.showLogs(spec) {
		if err := b.trackLogs(ctx, e); err != nil {
			return fmt.Errorf("%s: %w", spec.Name, err)
		}
	}

	verdict, err := b.waitIfRequested(ctx, e)
	b.mu.Lock()
	e.rc.Verdict = verdict
	e.rc.State = domain.StateWaitEvaluated
	b.mu.Unlock()
	if err != nil {
		return err
	}
	b.setState(e, domain.StateReady)
	return nil
}

func (b *Batch) createRequest(spec domain.ContainerSpec) (domain.CreateRequest, error) {
	portSpecs, err := domain.ParsePortSpecs(spec.Ports)
	if err != nil {
		return domain.CreateRequest{}, err
	}
	env := make(map[string]string, len(spec.Env))
	for k, v := range spec.Env {
		expanded, unresolved, err := b.expand(v)
		if err != nil {
			return domain.CreateRequest{}, fmt.Errorf("env %s: %w", k, err)
		}
		if len(unresolved) > 0 {
			b.logger.Debug("env value keeps unknown references",
				slog.String("name", spec.Name),
				slog.String("env", k),
				slog.Any("properties", unresolved),
			)
		}
		env[k] = expanded
	}

	req := domain.CreateRequest{
		Spec:          spec,
		ContainerName: b.containerName(spec.Name),
		Env:           env,
		Ports:         portSpecs,
		Command:       spec.Cmd.Strings(),
		Labels: map[string]string{
			domain.LabelBatch: b.id,
			domain.LabelName:  spec.Name,
		},
	}
	for _, link := range spec.Links {
		name, alias := domain.SplitLink(link)
		req.Links = append(req.Links, b.engineName(name)+":"+alias)
	}
	for _, from := range spec.VolumesFrom {
		req.VolumesFrom = append(req.VolumesFrom, b.engineName(strings.TrimSpace(from)))
	}
	return req, nil
}

func (b *Batch) containerName(name string) string {
	return fmt.Sprintf("%s-%s", name, b.id[:8])
}

// engineName maps a logical name or alias of a batch member to the engine
// container name. Names outside the batch are passed through.
func (b *Batch) engineName(ref string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byName[ref]; ok {
		return e.rc.Engine
	}
	return ref
}

func (b *Batch) capturePorts(e *entry, specs []domain.PortSpec, bindings []domain.PortBinding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.rc.Ports = bindings
	for _, p := range specs {
		if p.Property == "" {
			continue
		}
		for _, binding := range bindings {
			if binding.ContainerPort != p.Key() || binding.HostPort == 0 {
				continue
			}
			value := fmt.Sprint(binding.HostPort)
			b.props[p.Property] = value
			b.portProps[p.Property] = value
			break
		}
	}
}

func (b *Batch) removeUnstarted(ctx context.Context, e *entry) {
	if b.o.opts.KeepContainers {
		return
	}
	if err := b.o.engine.RemoveContainer(context.WithoutCancel(ctx), e.rc.ID, b.o.opts.RemoveVolumes); err != nil {
		b.logger.Error("remove container after start failure",
			slog.String("name", e.spec.Name),
			slog.String("container_id", e.rc.ID),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) showLogs(spec domain.ContainerSpec) bool {
	switch v := strings.TrimSpace(o.opts.ShowLogs); strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	case "":
		if spec.ShowLogs != nil {
			return *spec.ShowLogs
		}
		return o.opts.Follow
	default:
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name != "" && (name == spec.Name || name == spec.Alias) {
				return true
			}
		}
		return false
	}
}

func (b *Batch) trackLogs(ctx context.Context, e *entry) error {
	out := b.o.opts.LogOutput
	name := e.spec.Name
	sub, err := e.watcher.Subscribe(ctx, func(line string) bool {
		fmt.Fprintf(out, "%s> %s\n", name, line)
		return true
	})
	if err != nil {
		return fmt.Errorf("track logs: %w", err)
	}
	b.mu.Lock()
	e.tracking = sub
	e.rc.State = domain.StateLogTracking
	b.mu.Unlock()
	return nil
}

func interrupted(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", name, domain.ErrInterrupted, err)
	}
	return nil
}

// IsInterrupted reports whether err stems from an external interruption.
func IsInterrupted(err error) bool {
	return errors.Is(err, domain.ErrInterrupted) || errors.Is(err, context.Canceled)
}
