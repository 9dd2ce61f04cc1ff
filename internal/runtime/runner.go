package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/baton/internal/logging"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/naming"
	"github.com/aretw0/baton/pkg/ports"
	"github.com/google/uuid"
)

// Dispatcher hands a trigger off without waiting for the next stage.
type Dispatcher interface {
	FireAndForget(ctx context.Context, req domain.TriggerRequest)
}

// WorkLookup resolves a stage's work function by name.
type WorkLookup interface {
	Lookup(name string) (domain.WorkFunc, error)
}

// Runner executes one stage invocation as a state machine:
//
//	Start -> EnsuringBuckets -> FetchingInputs -> Computing -> PersistingOutputs -> Triggering -> Done
//
// with Failed reachable from every non-terminal phase. A failure before Triggering
// stops the chain: nothing is dispatched.
type Runner struct {
	store      ports.BlobStore
	names      naming.Resolver
	works      WorkLookup
	dispatcher Dispatcher

	logger     *slog.Logger
	hooks      domain.LifecycleHooks
	runScoped  bool
	scratchDir string
	newRunID   func() string
	locker     ports.Locker
	lockTTL    time.Duration
}

// Option configures the Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithRunScoped nests every artifact key under the run ID. Invocations without a
// run ID get a fresh one, which is then carried by every trigger.
func WithRunScoped(enabled bool) Option {
	return func(r *Runner) {
		r.runScoped = enabled
	}
}

// WithScratchDir sets the parent directory for per-invocation scratch space.
// Defaults to os.TempDir().
func WithScratchDir(dir string) Option {
	return func(r *Runner) {
		r.scratchDir = dir
	}
}

// WithLocker serializes invocations of the same stage (per run, when run-scoped)
// across replicas. The lock is held from bucket provisioning until the trigger is
// handed off and expires after ttl.
func WithLocker(locker ports.Locker, ttl time.Duration) Option {
	return func(r *Runner) {
		r.locker = locker
		r.lockTTL = ttl
	}
}

// WithRunIDGenerator overrides how run IDs are minted.
func WithRunIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		r.newRunID = fn
	}
}

// NewRunner creates a stage runner.
func NewRunner(store ports.BlobStore, names naming.Resolver, works WorkLookup, dispatcher Dispatcher, opts ...Option) *Runner {
	r := &Runner{
		store:      store,
		names:      names,
		works:      works,
		dispatcher: dispatcher,
		logger:     logging.NewNop(),
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// invocation is the per-call state. Nothing here outlives Run.
type invocation struct {
	stage   domain.Stage
	runID   string
	next    string
	params  map[string]string
	names   naming.Resolver
	logger  *slog.Logger
	phase   domain.Phase
	work    domain.WorkFunc
	buckets []string
	inputs  []resolved
	outputs []resolved
	scratch string
	unlock  ports.UnlockFunc
	fetched domain.Artifacts
	result  domain.WorkResult
}

type resolved struct {
	ref domain.ArtifactRef
	loc domain.Location
}

type step struct {
	phase domain.Phase
	fn    func(context.Context, *invocation) error
}

// Run executes the stage once. The returned Response is always populated; err is
// non-nil exactly when the invocation failed.
func (r *Runner) Run(ctx context.Context, stage domain.Stage, req domain.InvocationRequest) (domain.Response, error) {
	inv := r.begin(stage, req)
	defer r.cleanup(inv)

	steps := []step{
		{domain.PhaseStart, r.prepare},
		{domain.PhaseEnsuringBuckets, r.ensureBuckets},
		{domain.PhaseFetchingInputs, r.fetchInputs},
		{domain.PhaseComputing, r.compute},
		{domain.PhasePersistingOutputs, r.persistOutputs},
	}

	for _, s := range steps {
		r.enter(ctx, inv, s.phase, nil)
		started := time.Now()
		if err := s.fn(ctx, inv); err != nil {
			stageErr := &domain.StageError{Stage: stage.Name, Phase: s.phase, Err: err}
			r.enter(ctx, inv, domain.PhaseFailed, stageErr)
			inv.logger.Error("stage failed", "phase", s.phase, "error", err)
			return domain.ErrorResponse(stageErr), stageErr
		}
		inv.logger.Debug("phase complete", "phase", s.phase, "duration", time.Since(started))
	}

	if inv.next == "" {
		r.enter(ctx, inv, domain.PhaseDone, nil)
		inv.logger.Info("stage completed", "terminal", true)
		return domain.OK("%s completed...", stage.Name), nil
	}

	r.enter(ctx, inv, domain.PhaseTriggering, nil)
	r.trigger(ctx, inv)
	r.enter(ctx, inv, domain.PhaseDone, nil)
	inv.logger.Info("stage completed", "next_stage", inv.next)
	return domain.OK("%s completed, trigger stage %s...", stage.Name, inv.next), nil
}

func (r *Runner) begin(stage domain.Stage, req domain.InvocationRequest) *invocation {
	runID := req.RunID
	if runID == "" && r.runScoped {
		runID = r.newRunID()
	}
	names := r.names
	if r.runScoped {
		names = naming.Scoped(names, runID)
	}
	next := stage.Next
	if req.NextStage != "" {
		next = req.NextStage
	}
	logger := r.logger.With("stage", stage.Name)
	if runID != "" {
		logger = logger.With("run_id", runID)
	}
	return &invocation{
		stage:  stage,
		runID:  runID,
		next:   next,
		params: req.Params,
		names:  names,
		logger: logger,
	}
}

func (r *Runner) enter(ctx context.Context, inv *invocation, phase domain.Phase, err error) {
	inv.phase = phase
	if r.hooks.OnPhase != nil {
		r.hooks.OnPhase(ctx, &domain.PhaseEvent{
			Timestamp: time.Now(),
			Stage:     inv.stage.Name,
			RunID:     inv.runID,
			Phase:     phase,
			Err:       err,
		})
	}
}

// prepare resolves everything the invocation needs before any storage I/O.
func (r *Runner) prepare(ctx context.Context, inv *invocation) error {
	if err := domain.ValidateRunID(inv.runID); err != nil {
		return err
	}
	work, err := r.works.Lookup(inv.stage.WorkName())
	if err != nil {
		return err
	}
	inv.work = work

	for _, ref := range inv.stage.InputRefs() {
		loc, err := naming.ResolveRef(inv.names, ref)
		if err != nil {
			return fmt.Errorf("%w: input %w", domain.ErrConfiguration, err)
		}
		inv.inputs = append(inv.inputs, resolved{ref, loc})
	}
	for _, ref := range inv.stage.OutputRefs() {
		loc, err := naming.ResolveRef(inv.names, ref)
		if err != nil {
			return fmt.Errorf("%w: output %w", domain.ErrConfiguration, err)
		}
		inv.outputs = append(inv.outputs, resolved{ref, loc})
	}

	seen := make(map[string]bool)
	add := func(b string) {
		if b != "" && !seen[b] {
			seen[b] = true
			inv.buckets = append(inv.buckets, b)
		}
	}
	for _, b := range inv.stage.Buckets {
		add(b)
	}
	for _, o := range inv.outputs {
		add(o.loc.Bucket)
	}
	for _, in := range inv.inputs {
		add(in.loc.Bucket)
	}

	scratch, err := os.MkdirTemp(r.scratchDir, "baton-"+inv.stage.Name+"-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	inv.scratch = scratch

	if r.locker != nil {
		key := "stage:" + inv.stage.Name
		if inv.runID != "" {
			key += ":" + inv.runID
		}
		unlock, err := r.locker.Lock(ctx, key, r.lockTTL)
		if err != nil {
			return storageErr(fmt.Errorf("acquire lock %s: %w", key, err))
		}
		inv.unlock = unlock
	}
	return nil
}

func (r *Runner) ensureBuckets(ctx context.Context, inv *invocation) error {
	for _, b := range inv.buckets {
		if err := r.store.EnsureBucket(ctx, b); err != nil {
			return storageErr(fmt.Errorf("ensure bucket %s: %w", b, err))
		}
		inv.logger.Debug("bucket ready", "bucket", b)
	}
	return nil
}

func (r *Runner) fetchInputs(ctx context.Context, inv *invocation) error {
	for _, in := range inv.inputs {
		art := domain.Artifact{Ref: in.ref, Location: in.loc}
		if in.ref.File {
			art.Path = filepath.Join(inv.scratch, "inputs", in.ref.Role, in.ref.Kind)
			if err := r.store.GetFile(ctx, in.loc.Bucket, in.loc.Key, art.Path); err != nil {
				return storageErr(fmt.Errorf("fetch %s from %s: %w", in.ref, in.loc, err))
			}
		} else {
			data, err := r.store.GetObject(ctx, in.loc.Bucket, in.loc.Key)
			if err != nil {
				return storageErr(fmt.Errorf("fetch %s from %s: %w", in.ref, in.loc, err))
			}
			art.Payload = data
		}
		inv.fetched = append(inv.fetched, art)
		inv.logger.Debug("input fetched", "artifact", in.ref.String(), "location", in.loc.String())
	}
	return nil
}

func (r *Runner) compute(ctx context.Context, inv *invocation) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: work function panicked: %v", domain.ErrCompute, p)
		}
	}()

	outDir := filepath.Join(inv.scratch, "outputs")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	res, err := inv.work(ctx, domain.WorkRequest{
		Stage:      inv.stage.Name,
		RunID:      inv.runID,
		Inputs:     inv.fetched,
		Outputs:    inv.stage.OutputRefs(),
		ScratchDir: outDir,
		Params:     inv.params,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCompute, err)
	}

	for _, out := range inv.outputs {
		_, hasBytes := res.Outputs[out.ref.Kind]
		_, hasFile := res.Files[out.ref.Kind]
		if !hasBytes && !(out.ref.File && hasFile) {
			return fmt.Errorf("%w: no %s output produced", domain.ErrCompute, out.ref)
		}
	}
	inv.result = res
	return nil
}

// persistOutputs writes each declared output in order. The writes are independent:
// a failure part-way leaves earlier outputs in place and is reported as the
// invocation's failure.
func (r *Runner) persistOutputs(ctx context.Context, inv *invocation) error {
	for i, out := range inv.outputs {
		if err := r.persist(ctx, inv, out); err != nil {
			if i > 0 {
				inv.logger.Warn("partial output set written", "written", i, "declared", len(inv.outputs))
			}
			return storageErr(fmt.Errorf("persist %s to %s: %w", out.ref, out.loc, err))
		}
		inv.logger.Debug("output persisted", "artifact", out.ref.String(), "location", out.loc.String())
	}
	return nil
}

func (r *Runner) persist(ctx context.Context, inv *invocation, out resolved) error {
	if out.ref.File {
		path, ok := inv.result.Files[out.ref.Kind]
		if !ok {
			path = filepath.Join(inv.scratch, "outputs", out.ref.Kind)
			if err := os.WriteFile(path, inv.result.Outputs[out.ref.Kind], 0o644); err != nil {
				return fmt.Errorf("stage file: %w", err)
			}
		}
		return r.store.PutFile(ctx, out.loc.Bucket, out.loc.Key, path)
	}
	data := inv.result.Outputs[out.ref.Kind]
	return r.store.PutObject(ctx, out.loc.Bucket, out.loc.Key, bytes.NewReader(data), int64(len(data)))
}

func (r *Runner) trigger(ctx context.Context, inv *invocation) {
	req := domain.TriggerRequest{
		CurrentStage: inv.stage.Name,
		NextStage:    inv.next,
		RunID:        inv.runID,
	}
	if r.dispatcher == nil {
		inv.logger.Error("trigger dropped", "next_stage", inv.next, "error", fmt.Errorf("%w: no dispatcher configured", domain.ErrDispatch))
		return
	}
	r.dispatcher.FireAndForget(ctx, req)
}

func (r *Runner) cleanup(inv *invocation) {
	if inv.unlock != nil {
		if err := inv.unlock(context.Background()); err != nil {
			inv.logger.Warn("lock release failed", "error", err)
		}
	}
	if inv.scratch == "" {
		return
	}
	if err := os.RemoveAll(inv.scratch); err != nil {
		inv.logger.Warn("scratch cleanup failed", "dir", inv.scratch, "error", err)
	}
}

// storageErr classifies a store failure. Missing objects stay ErrArtifactNotFound;
// everything else becomes ErrStorageUnavailable.
func storageErr(err error) error {
	if errors.Is(err, domain.ErrArtifactNotFound) || errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
}
