package faas

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/baton/pkg/domain"
	"gopkg.in/yaml.v3"
)

// FunctionConfig maps a stage to the faas-cli deploy file of its function.
type FunctionConfig struct {
	Name string `yaml:"name" json:"name"`
	File string `yaml:"file" json:"file"`
}

// ConfigFile represents the structure of functions.yaml.
type ConfigFile struct {
	Functions []FunctionConfig `yaml:"functions" json:"functions"`
}

// LoadFunctions reads a configuration file (YAML or JSON) and returns stage names
// mapped to deploy files. Relative files are resolved against the config's directory.
func LoadFunctions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read functions config: %w", domain.ErrConfiguration, err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %w", domain.ErrConfiguration, path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %w", domain.ErrConfiguration, path, err)
		}
	}

	dir := filepath.Dir(path)
	functions := make(map[string]string, len(cfg.Functions))
	for _, fn := range cfg.Functions {
		if fn.Name == "" || fn.File == "" {
			continue
		}
		file := fn.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		functions[fn.Name] = file
	}
	return functions, nil
}

// FromGraph collects the deploy files declared on the graph's stages.
func FromGraph(g *domain.StageGraph) map[string]string {
	functions := make(map[string]string)
	for _, s := range g.Stages {
		if s.Deploy != "" {
			functions[s.Name] = s.Deploy
		}
	}
	return functions
}
