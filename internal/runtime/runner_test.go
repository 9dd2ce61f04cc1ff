package runtime_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/baton/internal/runtime"
	"github.com/aretw0/baton/pkg/adapters/memory"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/naming"
	"github.com/aretw0/baton/pkg/ports"
	"github.com/aretw0/baton/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []domain.TriggerRequest
}

func (d *recordingDispatcher) FireAndForget(ctx context.Context, req domain.TriggerRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req)
}

func (d *recordingDispatcher) Calls() []domain.TriggerRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.TriggerRequest(nil), d.calls...)
}

func testGraph() *domain.StageGraph {
	return &domain.StageGraph{
		Pipeline: "test",
		Artifacts: []domain.ArtifactSpec{
			{Role: "stage-a", Kind: "result", Bucket: "stage-a", Key: "result"},
			{Role: "stage-b", Kind: "result", Bucket: "stage-b", Key: "result"},
		},
		Stages: []domain.Stage{
			{
				Name:    "stage-a",
				Work:    "produce",
				Outputs: []domain.ArtifactRef{{Kind: "result"}},
				Next:    "stage-b",
			},
			{
				Name:    "stage-b",
				Work:    "upper",
				Inputs:  []domain.ArtifactRef{{Role: "stage-a", Kind: "result"}},
				Outputs: []domain.ArtifactRef{{Kind: "result"}},
			},
		},
	}
}

func testRegistry() *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register("produce", func(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
		return domain.WorkResult{Outputs: map[string][]byte{"result": []byte("payload")}}, nil
	})
	reg.Register("upper", func(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
		in, ok := req.Inputs.Get("result")
		if !ok {
			return domain.WorkResult{}, errors.New("no input")
		}
		return domain.WorkResult{Outputs: map[string][]byte{"result": append([]byte("B:"), in.Payload...)}}, nil
	})
	return reg
}

type fixture struct {
	graph      *domain.StageGraph
	store      *memory.Store
	works      *registry.Registry
	dispatcher *recordingDispatcher
	runner     *runtime.Runner
}

func newFixture(t *testing.T, opts ...runtime.Option) *fixture {
	t.Helper()
	g := testGraph()
	names, err := naming.FromGraph(g)
	require.NoError(t, err)

	f := &fixture{
		graph:      g,
		store:      memory.NewStore(),
		works:      testRegistry(),
		dispatcher: &recordingDispatcher{},
	}
	opts = append([]runtime.Option{runtime.WithScratchDir(t.TempDir())}, opts...)
	f.runner = runtime.NewRunner(f.store, names, f.works, f.dispatcher, opts...)
	return f
}

func (f *fixture) stage(t *testing.T, name string) domain.Stage {
	t.Helper()
	s, err := f.graph.Stage(name)
	require.NoError(t, err)
	return s
}

func TestRunner_WritesOutputAndTriggersNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.runner.Run(ctx, f.stage(t, "stage-a"), domain.InvocationRequest{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Message, "stage-b")

	data, err := f.store.GetObject(ctx, "stage-a", "result")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	calls := f.dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "stage-b", calls[0].NextStage)
	assert.Equal(t, "stage-a", calls[0].CurrentStage)
}

func TestRunner_ChainReadsUpstreamOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, f.stage(t, "stage-a"), domain.InvocationRequest{})
	require.NoError(t, err)

	resp, err := f.runner.Run(ctx, f.stage(t, "stage-b"), domain.InvocationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "stage-b completed...", resp.Message)

	data, err := f.store.GetObject(ctx, "stage-b", "result")
	require.NoError(t, err)
	assert.Equal(t, "B:payload", string(data))
}

func TestRunner_TerminalStageNeverDispatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.EnsureBucket(ctx, "stage-a"))
	require.NoError(t, f.store.PutObject(ctx, "stage-a", "result", stringsReader("x"), 1))

	resp, err := f.runner.Run(ctx, f.stage(t, "stage-b"), domain.InvocationRequest{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, f.dispatcher.Calls())
}

func TestRunner_MissingInputFailsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)

	resp, err := f.runner.Run(context.Background(), f.stage(t, "stage-b"), domain.InvocationRequest{})
	require.Error(t, err)

	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
	assert.Equal(t, http.StatusFailedDependency, resp.StatusCode)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.PhaseFetchingInputs, stageErr.Phase)

	assert.Zero(t, f.store.Calls(memory.OpPut))
	assert.Empty(t, f.dispatcher.Calls())
}

func TestRunner_ComputeFailure(t *testing.T) {
	tests := []struct {
		name string
		fn   domain.WorkFunc
	}{
		{
			name: "error",
			fn: func(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
				return domain.WorkResult{}, errors.New("boom")
			},
		},
		{
			name: "panic",
			fn: func(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
				panic("boom")
			},
		},
		{
			name: "missing declared output",
			fn: func(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
				return domain.WorkResult{Outputs: map[string][]byte{"other": nil}}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.works.Register("produce", tt.fn)

			resp, err := f.runner.Run(context.Background(), f.stage(t, "stage-a"), domain.InvocationRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrCompute)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Zero(t, f.store.Calls(memory.OpPut))
			assert.Empty(t, f.dispatcher.Calls())
		})
	}
}

func TestRunner_StorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(memory.OpEnsureBucket, errors.New("connection refused"))

	resp, err := f.runner.Run(context.Background(), f.stage(t, "stage-a"), domain.InvocationRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, f.dispatcher.Calls())
}

func TestRunner_PersistFailureStopsChain(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(memory.OpPut, errors.New("disk full"))

	_, err := f.runner.Run(context.Background(), f.stage(t, "stage-a"), domain.InvocationRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.PhasePersistingOutputs, stageErr.Phase)
	assert.Empty(t, f.dispatcher.Calls())
}

func TestRunner_UnknownWorkIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	stage := f.stage(t, "stage-a")
	stage.Work = "missing"

	_, err := f.runner.Run(context.Background(), stage, domain.InvocationRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Zero(t, f.store.Calls(memory.OpEnsureBucket))
}

func TestRunner_UnknownArtifactIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	stage := f.stage(t, "stage-a")
	stage.Outputs = []domain.ArtifactRef{{Kind: "unmapped"}}

	_, err := f.runner.Run(context.Background(), stage, domain.InvocationRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrUnknownArtifact)
	assert.Zero(t, f.store.Calls(memory.OpEnsureBucket))
}

func TestRunner_RequestOverridesNextStage(t *testing.T) {
	f := newFixture(t)

	resp, err := f.runner.Run(context.Background(), f.stage(t, "stage-a"), domain.InvocationRequest{NextStage: "stage-c"})
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "stage-c")

	calls := f.dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "stage-c", calls[0].NextStage)
}

func TestRunner_RepeatedRunsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.runner.Run(ctx, f.stage(t, "stage-a"), domain.InvocationRequest{})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"stage-a"}, f.store.Buckets())
	assert.Equal(t, []string{"result"}, f.store.Keys("stage-a"))
	assert.Len(t, f.dispatcher.Calls(), 2)
}

func TestRunner_RunScopedKeys(t *testing.T) {
	f := newFixture(t,
		runtime.WithRunScoped(true),
		runtime.WithRunIDGenerator(func() string { return "run-1" }),
	)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, f.stage(t, "stage-a"), domain.InvocationRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/result"}, f.store.Keys("stage-a"))

	calls := f.dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "run-1", calls[0].RunID)

	_, err = f.runner.Run(ctx, f.stage(t, "stage-b"), domain.InvocationRequest{RunID: calls[0].RunID})
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/result"}, f.store.Keys("stage-b"))

	_, err = f.runner.Run(ctx, f.stage(t, "stage-b"), domain.InvocationRequest{RunID: "run-2"})
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestRunner_RejectsEscapingRunID(t *testing.T) {
	for _, id := range []string{"x/..", "..", "../other-run"} {
		t.Run(id, func(t *testing.T) {
			f := newFixture(t, runtime.WithRunScoped(true))
			ctx := context.Background()

			resp, err := f.runner.Run(ctx, f.stage(t, "stage-a"), domain.InvocationRequest{RunID: id})
			require.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var stageErr *domain.StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, domain.PhaseStart, stageErr.Phase)
			assert.Zero(t, f.store.Calls(memory.OpEnsureBucket))
			assert.Empty(t, f.store.Keys("stage-a"))
			assert.Empty(t, f.dispatcher.Calls())
		})
	}
}

func TestRunner_FileBackedArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stageA := f.stage(t, "stage-a")
	stageA.Outputs = []domain.ArtifactRef{{Kind: "result", File: true}}
	f.works.Register("produce", func(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
		path := filepath.Join(req.ScratchDir, "model.bin")
		if err := os.WriteFile(path, []byte("weights"), 0o644); err != nil {
			return domain.WorkResult{}, err
		}
		return domain.WorkResult{Files: map[string]string{"result": path}}, nil
	})

	stageB := f.stage(t, "stage-b")
	stageB.Inputs = []domain.ArtifactRef{{Role: "stage-a", Kind: "result", File: true}}
	var seenPath string
	f.works.Register("upper", func(ctx context.Context, req domain.WorkRequest) (domain.WorkResult, error) {
		in, _ := req.Inputs.Get("result")
		seenPath = in.Path
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return domain.WorkResult{}, err
		}
		return domain.WorkResult{Outputs: map[string][]byte{"result": data}}, nil
	})

	_, err := f.runner.Run(ctx, stageA, domain.InvocationRequest{})
	require.NoError(t, err)
	_, err = f.runner.Run(ctx, stageB, domain.InvocationRequest{})
	require.NoError(t, err)

	data, err := f.store.GetObject(ctx, "stage-b", "result")
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))

	_, statErr := os.Stat(seenPath)
	assert.True(t, os.IsNotExist(statErr), "scratch space is removed after the invocation")
}

func TestRunner_PhaseHooks(t *testing.T) {
	var phases []domain.Phase
	hooks := domain.LifecycleHooks{
		OnPhase: func(ctx context.Context, e *domain.PhaseEvent) {
			phases = append(phases, e.Phase)
		},
	}
	f := newFixture(t, runtime.WithLifecycleHooks(hooks))

	_, err := f.runner.Run(context.Background(), f.stage(t, "stage-a"), domain.InvocationRequest{})
	require.NoError(t, err)
	assert.Equal(t, []domain.Phase{
		domain.PhaseStart,
		domain.PhaseEnsuringBuckets,
		domain.PhaseFetchingInputs,
		domain.PhaseComputing,
		domain.PhasePersistingOutputs,
		domain.PhaseTriggering,
		domain.PhaseDone,
	}, phases)

	phases = nil
	f.store.Fail(memory.OpGet, errors.New("unreachable"))
	_, err = f.runner.Run(context.Background(), f.stage(t, "stage-b"), domain.InvocationRequest{})
	require.Error(t, err)
	assert.Equal(t, domain.PhaseFailed, phases[len(phases)-1])
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	released int
	err      error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, key)
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

func TestRunner_LocksStageForInvocation(t *testing.T) {
	locker := &recordingLocker{}
	f := newFixture(t, runtime.WithLocker(locker, time.Minute))

	_, err := f.runner.Run(context.Background(), f.stage(t, "stage-a"), domain.InvocationRequest{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"stage:stage-a:r1"}, locker.locked)
	assert.Equal(t, 1, locker.released)

	locker.err = errors.New("redis down")
	_, err = f.runner.Run(context.Background(), f.stage(t, "stage-a"), domain.InvocationRequest{})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, 1, f.store.Calls(memory.OpEnsureBucket))
}
