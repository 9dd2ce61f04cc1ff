package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/baton/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Graph file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// LoadGraph reads a stage graph from a YAML or JSON file, chosen by extension.
func LoadGraph(path string) (*domain.StageGraph, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: graph file is required", domain.ErrConfiguration)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read graph: %w", domain.ErrConfiguration, err)
	}
	format := FormatYAML
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		format = FormatJSON
	}
	g, err := ParseGraph(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// ParseGraph decodes a graph document. Unknown fields are rejected.
func ParseGraph(data []byte, format string) (*domain.StageGraph, error) {
	var g domain.StageGraph
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&g); err != nil {
			return nil, fmt.Errorf("%w: failed to parse graph: %w", domain.ErrConfiguration, err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&g); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: failed to parse graph: %w", domain.ErrConfiguration, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown graph format %q", domain.ErrConfiguration, format)
	}
	if len(g.Stages) == 0 {
		return nil, fmt.Errorf("%w: graph defines no stages", domain.ErrConfiguration)
	}
	return &g, nil
}

// Apply folds deployment overrides into the graph: trigger_stage for the whole
// graph, bucket_names and next_stage for the stage named by cfg.Stage.
func Apply(g *domain.StageGraph, cfg Config) error {
	if cfg.TriggerStage != "" {
		g.Trigger = cfg.TriggerStage
	}
	if cfg.Stage == "" {
		if len(cfg.BucketNames) > 0 || cfg.NextStage != "" {
			return fmt.Errorf("%w: bucket_names and next_stage need stage to be set", domain.ErrConfiguration)
		}
		return nil
	}
	stage, err := g.Stage(cfg.Stage)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	if len(cfg.BucketNames) > 0 {
		stage.Buckets = cfg.BucketNames
	}
	if cfg.NextStage != "" {
		stage.Next = cfg.NextStage
	}
	return g.Override(stage)
}
