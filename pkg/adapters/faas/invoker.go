package faas

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/baton/internal/logging"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/ports"
)

// ProvisioningInvoker wraps an Invoker so that the next stage is deployed before it
// is called and the finished stage is removed afterwards.
type ProvisioningInvoker struct {
	provisioner ports.Provisioner
	next        ports.Invoker
	logger      *slog.Logger
}

// NewProvisioningInvoker creates the decorator. logger may be nil.
func NewProvisioningInvoker(p ports.Provisioner, next ports.Invoker, logger *slog.Logger) *ProvisioningInvoker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ProvisioningInvoker{provisioner: p, next: next, logger: logger}
}

// Invoke deploys req.NextStage, invokes it, then removes req.CurrentStage.
// A failed removal is logged only: the next stage is already running.
//
// Deploy and remove run on the provisioner's own timeout rather than ctx's
// deadline. The invoke itself gets the full budget ctx had on entry, however long
// the deploy took.
func (i *ProvisioningInvoker) Invoke(ctx context.Context, req domain.TriggerRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var budget time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		budget = time.Until(deadline)
	}
	detached := context.WithoutCancel(ctx)

	if err := i.provisioner.Deploy(detached, req.NextStage); err != nil {
		return fmt.Errorf("deploy next stage %s: %w", req.NextStage, err)
	}

	invokeCtx, cancel := detached, context.CancelFunc(func() {})
	if budget > 0 {
		invokeCtx, cancel = context.WithTimeout(detached, budget)
	}
	err := i.next.Invoke(invokeCtx, req)
	cancel()
	if err != nil {
		return fmt.Errorf("invoke next stage %s: %w", req.NextStage, err)
	}

	if req.CurrentStage == "" {
		return nil
	}
	if err := i.provisioner.Remove(detached, req.CurrentStage); err != nil {
		i.logger.Warn("failed to remove finished stage", "stage", req.CurrentStage, "error", err)
	}
	return nil
}
