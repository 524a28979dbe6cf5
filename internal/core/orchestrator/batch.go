package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/melih/lighthouse-up/internal/core/domain"
	"github.com/melih/lighthouse-up/internal/core/wait"
	"github.com/mfridman/interpolate"
	"go.uber.org/multierr"
)

// Batch is the set of containers started by one StartAll call. It owns their
// teardown.
type Batch struct {
	o      *Orchestrator
	id     string
	logger *slog.Logger

	mu        sync.Mutex
	entries   []*entry
	started   []*entry
	byName    map[string]*entry
	props     map[string]string
	portProps map[string]string

	doneOnce sync.Once
	done     chan struct{}
}

type entry struct {
	spec     domain.ContainerSpec
	rc       domain.RuntimeContainer
	watcher  *wait.LogWatcher
	tracking *wait.LogSubscription
	stopped  bool
}

// ID is the batch id carried in the container labels.
func (b *Batch) ID() string { return b.id }

func (b *Batch) add(spec domain.ContainerSpec) *entry {
	e := &entry{
		spec: spec,
		rc: domain.RuntimeContainer{
			Name:   spec.Name,
			Engine: b.containerName(spec.Name),
			Image:  spec.Image,
			State:  domain.StatePending,
		},
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	b.byName[spec.Name] = e
	if spec.Alias != "" {
		b.byName[spec.Alias] = e
	}
	return e
}

func (b *Batch) setState(e *entry, state domain.ContainerState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.rc.State = state
}

func (b *Batch) markStarted(e *entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.rc.State = domain.StateStarted
	e.rc.Started = time.Now()
	b.started = append(b.started, e)
}

// Containers returns a snapshot of every container of the batch in start order.
func (b *Batch) Containers() []domain.RuntimeContainer {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]domain.RuntimeContainer, 0, len(b.entries))
	for _, e := range b.entries {
		rc := e.rc
		rc.Ports = slices.Clone(e.rc.Ports)
		result = append(result, rc)
	}
	return result
}

// Properties returns the port properties captured so far.
func (b *Batch) Properties() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.portProps)
}

// Done is closed once StopAll ran.
func (b *Batch) Done() <-chan struct{} { return b.done }

type propertyEnv map[string]string

func (e propertyEnv) Get(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// propertyRef matches a single ${NAME} reference.
var propertyRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// expand substitutes ${NAME} references to known properties. Everything else,
// a bare $ or a reference to an unknown property included, is kept verbatim;
// the names of unknown references are returned.
func (b *Batch) expand(s string) (string, []string, error) {
	b.mu.Lock()
	env := propertyEnv(maps.Clone(b.props))
	b.mu.Unlock()

	var (
		unresolved []string
		firstErr   error
	)
	out := propertyRef.ReplaceAllStringFunc(s, func(ref string) string {
		if _, ok := env[ref[2:len(ref)-1]]; !ok {
			unresolved = append(unresolved, ref[2:len(ref)-1])
			return ref
		}
		v, err := interpolate.Interpolate(env, ref)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	})
	if firstErr != nil {
		return "", nil, firstErr
	}
	return out, unresolved, nil
}

// WaitIfRequested evaluates the wait configuration of the started container
// with the given name. It returns a nil verdict when no probe ran.
func (b *Batch) WaitIfRequested(ctx context.Context, name string) (*domain.WaitVerdict, error) {
	b.mu.Lock()
	e, ok := b.byName[name]
	started := ok && e.rc.ID != ""
	b.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("%s: container not started", name)
	}
	return b.waitIfRequested(ctx, e)
}

func (b *Batch) waitIfRequested(ctx context.Context, e *entry) (*domain.WaitVerdict, error) {
	spec := e.spec
	w := spec.Wait
	if w == nil {
		return nil, nil
	}
	checkers, err := b.checkers(e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}

	if len(checkers) == 0 {
		if w.Time > 0 {
			b.logger.Info(fmt.Sprintf("%s: Pausing for %d ms", spec.Name, w.Time))
			if err := b.o.waiter.Pause(ctx, w.Deadline()); err != nil {
				return nil, fmt.Errorf("%s: %w", spec.Name, err)
			}
		}
		return nil, nil
	}

	waited := wait.Describe(checkers)
	verdict, err := b.o.waiter.Wait(ctx, w.Deadline(), checkers...)
	if err != nil {
		return &verdict, fmt.Errorf("%s: %w", spec.Name, err)
	}
	switch verdict.Status {
	case domain.WaitPositive:
		b.logger.Info(fmt.Sprintf("%s: Waited %s %d ms", spec.Name, waited, verdict.ElapsedMs()))
		return &verdict, nil
	case domain.WaitNegative:
		err = &domain.WaitFailedError{Container: spec.Name, Waited: waited, Verdict: verdict}
	default:
		err = &domain.WaitTimeoutError{Container: spec.Name, Waited: waited, Verdict: verdict}
	}
	b.logger.Error(err.Error())
	return &verdict, err
}

func (b *Batch) checkers(e *entry) ([]wait.Checker, error) {
	w := e.spec.Wait
	var checkers []wait.Checker
	// Checkers built before a failing one are released again.
	fail := func(err error) ([]wait.Checker, error) {
		if cleanErr := wait.CleanUpAll(checkers); cleanErr != nil {
			b.logger.Warn("checker cleanup failed", slog.Any("error", cleanErr))
		}
		return nil, err
	}
	if probe := w.HTTPProbe(); probe != nil {
		url, unresolved, err := b.expand(probe.URL)
		if err != nil {
			return fail(fmt.Errorf("expand url %q: %w", probe.URL, err))
		}
		if len(unresolved) > 0 {
			return fail(fmt.Errorf("%w: url %q references unknown properties %v", domain.ErrInvalidSpec, probe.URL, unresolved))
		}
		c, err := wait.NewHTTPChecker(url, probe.Method, probe.Status)
		if err != nil {
			return fail(err)
		}
		checkers = append(checkers, c)
	}
	if probe := w.LogProbe(); probe != nil {
		c, err := wait.NewLogChecker(e.watcher, *probe)
		if err != nil {
			return fail(err)
		}
		checkers = append(checkers, c)
	}
	if w.Settle > 0 {
		checkers = append(checkers, wait.NewDelayChecker(time.Duration(w.Settle)*time.Millisecond))
	}
	return checkers, nil
}

// StopAll stops every started container in reverse start order and, unless
// containers are kept, removes them. A failing container does not keep the
// remaining ones from being stopped. Each container is stopped at most once.
func (b *Batch) StopAll(ctx context.Context) error {
	defer b.doneOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	started := slices.Clone(b.started)
	b.mu.Unlock()

	var errs error
	for i := len(started) - 1; i >= 0; i-- {
		if err := b.stop(ctx, started[i]); err != nil {
			b.logger.Error("stop container",
				slog.String("name", started[i].spec.Name),
				slog.Any("error", err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (b *Batch) stop(ctx context.Context, e *entry) error {
	b.mu.Lock()
	if e.stopped {
		b.mu.Unlock()
		return nil
	}
	e.stopped = true
	tracking := e.tracking
	e.tracking = nil
	b.mu.Unlock()

	var errs error
	if tracking != nil {
		errs = multierr.Append(errs, tracking.Close())
	}
	engine := b.o.engine
	if err := engine.StopContainer(ctx, e.rc.ID, e.spec.Wait.ShutdownGrace()); err != nil {
		errs = multierr.Append(errs, &domain.EngineCallError{Op: "stop", Container: e.spec.Name, Err: err})
	} else {
		b.logger.Info("container stopped", slog.String("name", e.spec.Name), slog.String("container_id", e.rc.ID))
	}
	if !b.o.opts.KeepContainers {
		if err := engine.RemoveContainer(ctx, e.rc.ID, b.o.opts.RemoveVolumes); err != nil {
			errs = multierr.Append(errs, &domain.EngineCallError{Op: "remove", Container: e.spec.Name, Err: err})
		}
	}
	b.setState(e, domain.StateStopped)
	return errs
}

// Follow blocks until ctx is cancelled or the batch is stopped by other means,
// then stops every container in reverse start order.
func (b *Batch) Follow(ctx context.Context) error {
	b.logger.Info("following containers, interrupt to stop")
	select {
	case <-ctx.Done():
		b.logger.Warn("interrupted, stopping containers")
	case <-b.done:
	}
	return b.StopAll(context.WithoutCancel(ctx))
}
