package graph

import (
	"context"
	"sync"

	"github.com/aretw0/baton/pkg/domain"
)

// Recorder collects phase events into an Overlay. It is safe for concurrent use,
// since chained stages report from dispatcher workers.
type Recorder struct {
	mu      sync.Mutex
	overlay Overlay
}

// OnPhase matches domain.LifecycleHooks.OnPhase.
func (r *Recorder) OnPhase(ctx context.Context, e *domain.PhaseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch e.Phase {
	case domain.PhaseDone:
		r.overlay.Done = append(r.overlay.Done, e.Stage)
	case domain.PhaseFailed:
		r.overlay.Failed = e.Stage
	}
}

// Hooks returns lifecycle hooks feeding the recorder.
func (r *Recorder) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{OnPhase: r.OnPhase}
}

// Overlay returns a snapshot of what has run so far.
func (r *Recorder) Overlay() *Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Overlay{
		Done:   append([]string(nil), r.overlay.Done...),
		Failed: r.overlay.Failed,
	}
}
