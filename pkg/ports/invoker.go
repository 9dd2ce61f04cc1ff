package ports

import (
	"context"

	"github.com/aretw0/baton/pkg/domain"
)

// Invoker starts the execution of a named stage.
// Only the success of the dispatch itself is reported; no response payload is consumed.
type Invoker interface {
	Invoke(ctx context.Context, req domain.TriggerRequest) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req domain.TriggerRequest) error

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, req domain.TriggerRequest) error {
	return f(ctx, req)
}

// Provisioner deploys and removes stage functions.
type Provisioner interface {
	Deploy(ctx context.Context, stage string) error
	Remove(ctx context.Context, stage string) error
}
