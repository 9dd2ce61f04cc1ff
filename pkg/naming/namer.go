package naming

import (
	"fmt"
	"path"

	"github.com/aretw0/baton/pkg/domain"
)

// Resolver resolves an artifact reference to its storage location.
type Resolver interface {
	Resolve(role, kind string) (domain.Location, error)
}

type entry struct {
	role, kind string
}

// Table is an immutable, map-backed Resolver.
type Table struct {
	rows map[entry]domain.Location
}

// NewTable builds a table from naming rows. Duplicate (role, kind) rows are rejected.
func NewTable(specs []domain.ArtifactSpec) (*Table, error) {
	t := &Table{rows: make(map[entry]domain.Location, len(specs))}
	for i, s := range specs {
		if s.Role == "" || s.Kind == "" {
			return nil, fmt.Errorf("artifact %d: role and kind are required", i)
		}
		if s.Bucket == "" || s.Key == "" {
			return nil, fmt.Errorf("artifact %s/%s: bucket and key are required", s.Role, s.Kind)
		}
		e := entry{s.Role, s.Kind}
		if _, dup := t.rows[e]; dup {
			return nil, fmt.Errorf("artifact %s/%s: defined twice", s.Role, s.Kind)
		}
		t.rows[e] = domain.Location{Bucket: s.Bucket, Key: s.Key}
	}
	return t, nil
}

// FromGraph builds the table from the graph's artifact rows.
func FromGraph(g *domain.StageGraph) (*Table, error) {
	return NewTable(g.Artifacts)
}

// Resolve returns the location for (role, kind).
func (t *Table) Resolve(role, kind string) (domain.Location, error) {
	loc, ok := t.rows[entry{role, kind}]
	if !ok {
		return domain.Location{}, fmt.Errorf("%w: %s/%s", domain.ErrUnknownArtifact, role, kind)
	}
	return loc, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// ResolveRef is a convenience wrapper around Resolve.
func ResolveRef(r Resolver, ref domain.ArtifactRef) (domain.Location, error) {
	return r.Resolve(ref.Role, ref.Kind)
}

type scoped struct {
	inner Resolver
	runID string
}

// Scoped returns a Resolver that nests every key under runID, isolating concurrent
// runs that share buckets. An empty runID returns r unchanged. A runID that is not a
// single safe path element makes every Resolve fail with domain.ErrInvalidRequest.
func Scoped(r Resolver, runID string) Resolver {
	if runID == "" {
		return r
	}
	return &scoped{inner: r, runID: runID}
}

func (s *scoped) Resolve(role, kind string) (domain.Location, error) {
	if err := domain.ValidateRunID(s.runID); err != nil {
		return domain.Location{}, err
	}
	loc, err := s.inner.Resolve(role, kind)
	if err != nil {
		return loc, err
	}
	loc.Key = path.Join(s.runID, loc.Key)
	return loc, nil
}
