package naming

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/aretw0/baton/pkg/domain"
)

var bucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidBucketName reports whether name is an S3-compatible bucket name.
func ValidBucketName(name string) bool {
	return bucketPattern.MatchString(name)
}

// Validate checks the naming contract of a graph: every reference resolves, every
// input has a producer, no two artifacts share a location, and every next stage exists
// without the chain looping.
// All problems are reported together.
func Validate(g *domain.StageGraph) error {
	var errs []error

	table, err := FromGraph(g)
	if err != nil {
		return err
	}

	locations := make(map[domain.Location]string)
	for _, a := range g.Artifacts {
		if !ValidBucketName(a.Bucket) {
			errs = append(errs, fmt.Errorf("artifact %s/%s: invalid bucket name %q", a.Role, a.Kind, a.Bucket))
		}
		loc := domain.Location{Bucket: a.Bucket, Key: a.Key}
		if other, dup := locations[loc]; dup {
			errs = append(errs, fmt.Errorf("artifact %s/%s: location %s already used by %s", a.Role, a.Kind, loc, other))
			continue
		}
		locations[loc] = a.Role + "/" + a.Kind
	}

	produced := make(map[domain.ArtifactRef]string)
	seen := make(map[string]bool)
	for _, s := range g.Stages {
		if s.Name == "" {
			errs = append(errs, errors.New("stage with empty name"))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("stage %s: defined twice", s.Name))
		}
		seen[s.Name] = true

		for _, b := range s.Buckets {
			if !ValidBucketName(b) {
				errs = append(errs, fmt.Errorf("stage %s: invalid bucket name %q", s.Name, b))
			}
		}
		for _, ref := range s.OutputRefs() {
			if _, err := ResolveRef(table, ref); err != nil {
				errs = append(errs, fmt.Errorf("stage %s output: %w", s.Name, err))
			}
			produced[domain.ArtifactRef{Role: ref.Role, Kind: ref.Kind}] = s.Name
		}
	}

	for _, s := range g.Stages {
		for _, ref := range s.InputRefs() {
			if _, err := ResolveRef(table, ref); err != nil {
				errs = append(errs, fmt.Errorf("stage %s input: %w", s.Name, err))
				continue
			}
			if _, ok := produced[domain.ArtifactRef{Role: ref.Role, Kind: ref.Kind}]; !ok {
				errs = append(errs, fmt.Errorf("stage %s input %s: no stage produces it", s.Name, ref))
			}
		}
		if s.Next != "" && !seen[s.Next] {
			errs = append(errs, fmt.Errorf("stage %s: next stage %q: %w", s.Name, s.Next, domain.ErrStageNotFound))
		}
	}

	if err := checkCycles(g); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// checkCycles rejects next-stage chains that loop: a looping pipeline never
// reaches a terminal stage.
func checkCycles(g *domain.StageGraph) error {
	next := make(map[string]string, len(g.Stages))
	for _, s := range g.Stages {
		next[s.Name] = s.Next
	}
	for _, start := range g.Names() {
		visited := map[string]bool{start: true}
		for cur := next[start]; cur != ""; cur = next[cur] {
			if visited[cur] {
				return fmt.Errorf("stage %s: next chain loops back to %s", start, cur)
			}
			visited[cur] = true
		}
	}
	return nil
}
