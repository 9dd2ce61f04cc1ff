package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration is returned when a required configuration value is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrStorageUnavailable wraps any blob store failure (network, auth, conflicts).
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrArtifactNotFound is returned when an expected object is absent.
	// It means the upstream stage has not completed or the naming contract is broken.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrBucketNotFound is returned by stores when writing into a missing bucket.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrCompute wraps failures of the stage work function.
	ErrCompute = errors.New("compute error")

	// ErrDispatch marks a trigger that could not be submitted. It is logged, never returned
	// as an invocation result.
	ErrDispatch = errors.New("dispatch error")

	// ErrStageNotFound is returned when a stage name is not part of the graph.
	ErrStageNotFound = errors.New("stage not found")

	// ErrUnknownArtifact is returned when the naming table has no row for a (role, kind).
	ErrUnknownArtifact = errors.New("unknown artifact")

	// ErrInvalidRequest is returned for malformed entry point input.
	ErrInvalidRequest = errors.New("invalid request")
)

// StageError records the phase in which a stage invocation failed.
type StageError struct {
	Stage string
	Phase Phase
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed while %s: %v", e.Stage, e.Phase, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StatusCode maps an error to the HTTP status reported to the caller.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrStageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrArtifactNotFound):
		return http.StatusFailedDependency
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
