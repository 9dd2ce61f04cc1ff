package domain

import (
	"context"
	"time"
)

// PhaseEvent is emitted on every state machine transition of a stage runner.
type PhaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	RunID     string    `json:"run_id,omitempty"`
	Phase     Phase     `json:"phase"`
	Err       error     `json:"-"`
}

// DispatchEvent is emitted once a trigger dispatch has finished, successfully or not.
type DispatchEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Request   TriggerRequest `json:"request"`
	Attempt   int            `json:"attempt"`
	Duration  time.Duration  `json:"duration"`
	Err       error          `json:"-"`
}

// LifecycleHooks defines callbacks for pipeline observability.
type LifecycleHooks struct {
	OnPhase    func(context.Context, *PhaseEvent)
	OnDispatch func(context.Context, *DispatchEvent)
}
