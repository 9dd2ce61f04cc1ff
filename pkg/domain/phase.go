package domain

// Phase is a state of the stage runner state machine.
type Phase string

const (
	PhaseStart             Phase = "start"
	PhaseEnsuringBuckets   Phase = "ensuring_buckets"
	PhaseFetchingInputs    Phase = "fetching_inputs"
	PhaseComputing         Phase = "computing"
	PhasePersistingOutputs Phase = "persisting_outputs"
	PhaseTriggering        Phase = "triggering"
	PhaseDone              Phase = "done"
	PhaseFailed            Phase = "failed"
)

// Terminal reports whether no further transition leaves the phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}
