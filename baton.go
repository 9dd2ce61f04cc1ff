package baton

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/baton/internal/logging"
	"github.com/aretw0/baton/internal/runtime"
	"github.com/aretw0/baton/pkg/adapters/memory"
	"github.com/aretw0/baton/pkg/dispatch"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/naming"
	"github.com/aretw0/baton/pkg/ports"
	"github.com/aretw0/baton/pkg/registry"
	"github.com/aretw0/baton/pkg/works"
)

// Pipeline wires a stage graph to a blob store, a work registry and trigger
// dispatchers. It is the entry point both for serving stages and for running
// them in-process.
type Pipeline struct {
	graph *domain.StageGraph
	names naming.Resolver
	store ports.BlobStore
	works *registry.Registry

	invoker        ports.Invoker
	triggerInvoker ports.Invoker
	stages         *dispatch.Dispatcher
	relay          *dispatch.Dispatcher
	runner         *runtime.Runner

	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	metrics     *dispatch.Metrics
	dispatchCfg dispatch.Config
	runScoped   bool
	locker      ports.Locker
	lockTTL     time.Duration
	scratchDir  string
}

// Option defines a functional option for configuring the Pipeline.
type Option func(*Pipeline)

// WithStore sets the blob store. Defaults to an in-memory store.
func WithStore(store ports.BlobStore) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithRegistry sets the work function registry. Defaults to the built-in works.
func WithRegistry(reg *registry.Registry) Option {
	return func(p *Pipeline) {
		p.works = reg
	}
}

// WithInvoker sets how a finished stage starts the next one. Defaults to calling
// the next stage in this process.
func WithInvoker(inv ports.Invoker) Option {
	return func(p *Pipeline) {
		p.invoker = inv
	}
}

// WithTriggerInvoker sets how the trigger function reaches the next stage.
// Defaults to the stage invoker. It must not relay back to the trigger function.
func WithTriggerInvoker(inv ports.Invoker) Option {
	return func(p *Pipeline) {
		p.triggerInvoker = inv
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Pipeline) {
		p.hooks = hooks
	}
}

// WithDispatchConfig sizes the trigger dispatchers.
func WithDispatchConfig(cfg dispatch.Config) Option {
	return func(p *Pipeline) {
		p.dispatchCfg = cfg
	}
}

// WithMetrics attaches dispatch metrics.
func WithMetrics(m *dispatch.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRunScoped isolates concurrent runs by nesting artifact keys under a run ID.
func WithRunScoped(enabled bool) Option {
	return func(p *Pipeline) {
		p.runScoped = enabled
	}
}

// WithLocker serializes invocations of the same stage across replicas.
func WithLocker(locker ports.Locker, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.locker = locker
		p.lockTTL = ttl
	}
}

// WithScratchDir sets where file-backed artifacts are staged.
func WithScratchDir(dir string) Option {
	return func(p *Pipeline) {
		p.scratchDir = dir
	}
}

// New validates the graph's naming contract and assembles the pipeline.
func New(graph *domain.StageGraph, opts ...Option) (*Pipeline, error) {
	if graph == nil {
		return nil, fmt.Errorf("%w: stage graph is required", domain.ErrConfiguration)
	}
	if err := naming.Validate(graph); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	table, err := naming.FromGraph(graph)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	p := &Pipeline{graph: graph, names: table}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	if graph.Pipeline != "" {
		p.logger = p.logger.With("pipeline", graph.Pipeline)
	}
	if p.store == nil {
		p.store = memory.NewStore()
	}
	if p.works == nil {
		p.works = registry.NewRegistry()
		works.Register(p.works)
	}
	if p.invoker == nil {
		p.invoker = loopback{p}
	}
	if p.triggerInvoker == nil {
		p.triggerInvoker = p.invoker
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(p.logger.With("component", "dispatch")),
		dispatch.WithMetrics(p.metrics),
		dispatch.WithLifecycleHooks(p.hooks),
	}
	p.stages = dispatch.New(p.invoker, p.dispatchCfg, dispatchOpts...)
	p.relay = dispatch.New(p.triggerInvoker, p.dispatchCfg, dispatchOpts...)

	runnerOpts := []runtime.Option{
		runtime.WithLogger(p.logger),
		runtime.WithLifecycleHooks(p.hooks),
		runtime.WithRunScoped(p.runScoped),
		runtime.WithScratchDir(p.scratchDir),
	}
	if p.locker != nil {
		runnerOpts = append(runnerOpts, runtime.WithLocker(p.locker, p.lockTTL))
	}
	p.runner = runtime.NewRunner(p.store, p.names, p.works, p.stages, runnerOpts...)
	return p, nil
}

// Graph returns the stage graph.
func (p *Pipeline) Graph() *domain.StageGraph { return p.graph }

// Store returns the blob store.
func (p *Pipeline) Store() ports.BlobStore { return p.store }

// Resolve returns the location of an artifact.
func (p *Pipeline) Resolve(role, kind string) (domain.Location, error) {
	return p.names.Resolve(role, kind)
}

// Invoke runs one stage. The Response is always populated; its status matches err.
func (p *Pipeline) Invoke(ctx context.Context, stage string, req domain.InvocationRequest) (domain.Response, error) {
	s, err := p.graph.Stage(stage)
	if err != nil {
		return domain.ErrorResponse(err), err
	}
	return p.runner.Run(ctx, s, req)
}

// Trigger is the trigger function: it accepts a hand-off for req.NextStage and
// returns before the next stage runs.
func (p *Pipeline) Trigger(ctx context.Context, req domain.TriggerRequest) (domain.Response, error) {
	if err := req.Validate(); err != nil {
		return domain.ErrorResponse(err), err
	}
	if !p.graph.Has(req.NextStage) {
		err := fmt.Errorf("%w: next stage %s", domain.ErrStageNotFound, req.NextStage)
		return domain.ErrorResponse(err), err
	}
	p.relay.FireAndForget(ctx, req)
	return domain.OK("next stage %s triggered...", req.NextStage), nil
}

// Flush waits until no trigger is queued or running. With the in-process invoker
// this is the end of the whole chain.
func (p *Pipeline) Flush(ctx context.Context) error {
	for {
		if err := p.relay.Flush(ctx); err != nil {
			return err
		}
		if err := p.stages.Flush(ctx); err != nil {
			return err
		}
		// A stage dispatch may have fed the relay while we waited.
		if p.relay.Pending() == 0 && p.stages.Pending() == 0 {
			return nil
		}
	}
}

// Shutdown drains pending triggers and stops the dispatchers.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	flushErr := p.Flush(ctx)
	return errors.Join(flushErr, p.relay.Shutdown(ctx), p.stages.Shutdown(ctx))
}

// loopback invokes the next stage inside this process.
type loopback struct {
	p *Pipeline
}

func (l loopback) Invoke(ctx context.Context, req domain.TriggerRequest) error {
	_, err := l.p.Invoke(ctx, req.NextStage, domain.InvocationRequest{RunID: req.RunID})
	return err
}
