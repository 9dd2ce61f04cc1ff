// Package dispatch implements the trigger hand-off between stages.
//
// A stage that finished its work must start the next one without waiting for it:
// the next stage may run far longer than the caller is allowed to. FireAndForget
// queues the trigger and returns at once; a fixed pool of workers performs the
// invocations. Shutdown stops intake and drains whatever is still queued, so a
// process exiting right after its last stage does not silently lose the trigger.
package dispatch
