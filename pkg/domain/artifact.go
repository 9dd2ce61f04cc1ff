package domain

import "context"

// Artifact is a named binary blob handed from one stage to the next.
// Payload holds the bytes for in-memory refs; Path holds the local scratch file
// for file-backed refs.
type Artifact struct {
	Ref      ArtifactRef
	Location Location
	Payload  []byte
	Path     string
}

// Artifacts is the ordered input list a WorkFunc receives.
type Artifacts []Artifact

// Get returns the first artifact of the given kind.
func (a Artifacts) Get(kind string) (Artifact, bool) {
	for _, art := range a {
		if art.Ref.Kind == kind {
			return art, true
		}
	}
	return Artifact{}, false
}

// WorkRequest is what the opaque stage computation receives.
type WorkRequest struct {
	Stage  string
	RunID  string
	Inputs Artifacts
	// Outputs lists the artifacts the stage is expected to produce.
	Outputs []ArtifactRef
	// ScratchDir is a per-invocation directory for file-backed outputs.
	ScratchDir string
	Params     map[string]string
}

// WorkResult carries the outputs of a stage computation keyed by artifact kind.
// Files holds local paths for file-backed outputs.
type WorkResult struct {
	Outputs map[string][]byte
	Files   map[string]string
}

// WorkFunc is the opaque domain computation performed inside a stage.
type WorkFunc func(ctx context.Context, req WorkRequest) (WorkResult, error)
