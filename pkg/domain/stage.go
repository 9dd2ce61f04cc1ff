package domain

import (
	"fmt"
	"sort"
)

// ArtifactRef points at an artifact by its producing role and kind.
// The concrete bucket/key is never written here; it comes from the naming table.
type ArtifactRef struct {
	// Role is the producing stage role. Empty means "the stage declaring the ref".
	Role string `json:"role,omitempty" yaml:"role,omitempty" mapstructure:"role"`
	Kind string `json:"kind" yaml:"kind" mapstructure:"kind"`
	// File stages the artifact through local scratch storage (GetFile/PutFile).
	File bool `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// WithRole returns a copy of the ref with Role defaulted to role.
func (r ArtifactRef) WithRole(role string) ArtifactRef {
	if r.Role == "" {
		r.Role = role
	}
	return r
}

func (r ArtifactRef) String() string {
	return r.Role + "/" + r.Kind
}

// Location is the resolved (bucket, key) pair of an artifact.
type Location struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Key    string `json:"key" yaml:"key"`
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// ArtifactSpec is one row of the naming table.
type ArtifactSpec struct {
	Role   string `json:"role" yaml:"role" mapstructure:"role"`
	Kind   string `json:"kind" yaml:"kind" mapstructure:"kind"`
	Bucket string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Key    string `json:"key" yaml:"key" mapstructure:"key"`
}

// Ref returns the reference this row answers for.
func (a ArtifactSpec) Ref() ArtifactRef {
	return ArtifactRef{Role: a.Role, Kind: a.Kind}
}

// Stage is the deployment-time definition of one pipeline stage.
// It is immutable for the duration of a run.
type Stage struct {
	Name string `json:"name" yaml:"name"`
	// Work names the WorkFunc in the registry. Defaults to Name.
	Work    string        `json:"work,omitempty" yaml:"work,omitempty"`
	Buckets []string      `json:"buckets,omitempty" yaml:"buckets,omitempty"`
	Inputs  []ArtifactRef `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []ArtifactRef `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Next is the stage triggered on success. Empty marks a terminal stage.
	Next string `json:"next,omitempty" yaml:"next,omitempty"`
	// Deploy is an optional function deploy file used by provisioning invokers.
	Deploy string `json:"deploy,omitempty" yaml:"deploy,omitempty"`
}

// WorkName returns the registry name of the stage's work function.
func (s Stage) WorkName() string {
	if s.Work != "" {
		return s.Work
	}
	return s.Name
}

// OutputRefs returns the outputs with their role defaulted to the stage name.
func (s Stage) OutputRefs() []ArtifactRef {
	refs := make([]ArtifactRef, len(s.Outputs))
	for i, r := range s.Outputs {
		refs[i] = r.WithRole(s.Name)
	}
	return refs
}

// InputRefs returns the inputs with their role defaulted to the stage name.
func (s Stage) InputRefs() []ArtifactRef {
	refs := make([]ArtifactRef, len(s.Inputs))
	for i, r := range s.Inputs {
		refs[i] = r.WithRole(s.Name)
	}
	return refs
}

// StageGraph is the centrally defined topology shared by every stage.
type StageGraph struct {
	Pipeline  string         `json:"pipeline" yaml:"pipeline"`
	Trigger   string         `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Artifacts []ArtifactSpec `json:"artifacts" yaml:"artifacts"`
	Stages    []Stage        `json:"stages" yaml:"stages"`
}

// Stage looks up a stage by name.
func (g *StageGraph) Stage(name string) (Stage, error) {
	for _, s := range g.Stages {
		if s.Name == name {
			return s, nil
		}
	}
	return Stage{}, fmt.Errorf("%w: %s", ErrStageNotFound, name)
}

// Has reports whether the graph defines the named stage.
func (g *StageGraph) Has(name string) bool {
	_, err := g.Stage(name)
	return err == nil
}

// TriggerStage returns the name of the dedicated trigger function.
func (g *StageGraph) TriggerStage() string {
	if g.Trigger != "" {
		return g.Trigger
	}
	return DefaultTriggerStage
}

// Override replaces a stage definition in place (used for env-level overrides).
func (g *StageGraph) Override(stage Stage) error {
	for i, s := range g.Stages {
		if s.Name == stage.Name {
			g.Stages[i] = stage
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrStageNotFound, stage.Name)
}

// Names returns the sorted stage names.
func (g *StageGraph) Names() []string {
	names := make([]string, 0, len(g.Stages))
	for _, s := range g.Stages {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
