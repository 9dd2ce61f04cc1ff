package domain

// Wire field names shared by the HTTP entry points and the gateway invoker.
const (
	FieldCurrentStage = "current_stage"
	FieldNextStage    = "next_stage"
	FieldRunID        = "run_id"
)

// DefaultTriggerStage is the name of the dedicated trigger function in the gateway.
const DefaultTriggerStage = "mnist-faas-trigger"
