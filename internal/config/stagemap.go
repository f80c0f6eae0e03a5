package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flowyard/flowyard/internal/reconcile"
)

// stageMappingFile is the on-disk shape of stage_mappings.yaml:
//
//	stages:
//	  - raw: "cancelled"
//	    canonical: "Discarded"
//	    trashcan: true
//	  - raw: "wont do"
//	    trashcan: true
type stageMappingFile struct {
	Stages []struct {
		Raw       string `yaml:"raw"`
		Canonical string `yaml:"canonical"`
		Trashcan  bool   `yaml:"trashcan"`
	} `yaml:"stages"`
}

// LoadStageMappings reads the stage mapping file. Trashcan stages cannot be
// inferred from tracker feeds, so they are declared here. An empty path
// returns an empty map.
func LoadStageMappings(path string) (map[string]reconcile.StageMapping, error) {
	mappings := make(map[string]reconcile.StageMapping)
	if path == "" {
		return mappings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage mappings: %w", err)
	}

	var file stageMappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing stage mappings: %w", err)
	}

	for i, s := range file.Stages {
		raw := strings.ToLower(strings.TrimSpace(s.Raw))
		if raw == "" {
			return nil, fmt.Errorf("stage mapping %d: blank raw name", i)
		}
		mappings[raw] = reconcile.StageMapping{
			Name:     strings.TrimSpace(s.Canonical),
			Trashcan: s.Trashcan,
		}
	}
	return mappings, nil
}
