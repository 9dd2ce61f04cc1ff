package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/baton/pkg/domain"
)

// Invoker is a recording ports.Invoker test double.
// Delay simulates gateway latency; Err is returned from every call.
type Invoker struct {
	Delay time.Duration
	Err   error

	mu     sync.Mutex
	calls  []domain.TriggerRequest
	notify chan struct{}
}

// NewInvoker creates a recording invoker.
func NewInvoker() *Invoker {
	return &Invoker{notify: make(chan struct{}, 1024)}
}

// Invoke records the request after the configured delay.
func (i *Invoker) Invoke(ctx context.Context, req domain.TriggerRequest) error {
	if i.Delay > 0 {
		select {
		case <-time.After(i.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	i.mu.Lock()
	i.calls = append(i.calls, req)
	i.mu.Unlock()

	select {
	case i.notify <- struct{}{}:
	default:
	}
	return i.Err
}

// Calls returns a copy of the recorded requests.
func (i *Invoker) Calls() []domain.TriggerRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]domain.TriggerRequest(nil), i.calls...)
}

// Wait blocks until at least n calls were recorded or the timeout elapses.
func (i *Invoker) Wait(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(i.Calls()) >= n {
			return true
		}
		select {
		case <-i.notify:
		case <-deadline:
			return len(i.Calls()) >= n
		}
	}
}
