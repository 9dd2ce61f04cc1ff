package domain

import (
	"fmt"
	"net/http"
	"regexp"
)

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateRunID rejects run IDs that could leave their key prefix. An empty ID is valid.
func ValidateRunID(id string) error {
	if id == "" {
		return nil
	}
	if !runIDPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: run_id %q must match [A-Za-z0-9._-] and not be a path element", ErrInvalidRequest, id)
	}
	return nil
}

// InvocationRequest is the body a stage entry point receives.
type InvocationRequest struct {
	// NextStage overrides the graph's next stage for this invocation when set.
	NextStage string            `json:"next_stage,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// Validate checks the run ID.
func (r InvocationRequest) Validate() error {
	return ValidateRunID(r.RunID)
}

// TriggerRequest is the ephemeral hand-off message sent to the next stage.
type TriggerRequest struct {
	CurrentStage string `json:"current_stage,omitempty"`
	NextStage    string `json:"next_stage"`
	RunID        string `json:"run_id,omitempty"`
}

// Validate checks that the request names a stage to trigger and carries a safe run ID.
func (t TriggerRequest) Validate() error {
	if t.NextStage == "" {
		return fmt.Errorf("%w: next_stage is required", ErrInvalidRequest)
	}
	return ValidateRunID(t.RunID)
}

// Response is the acknowledgement returned by every entry point.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// OK builds a 200 response.
func OK(format string, args ...any) Response {
	return Response{StatusCode: http.StatusOK, Message: fmt.Sprintf(format, args...)}
}

// ErrorResponse maps err to a response with a matching status code.
func ErrorResponse(err error) Response {
	return Response{StatusCode: StatusCode(err), Message: err.Error()}
}
