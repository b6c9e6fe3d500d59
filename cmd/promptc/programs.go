package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/longregen/promptc/internal/application/services"
	"github.com/longregen/promptc/internal/ports"
)

type programSpec struct {
	Name         string              `json:"name"`
	Modules      []ports.ModuleSpec  `json:"modules"`
	MetricFields []string            `json:"metric_fields,omitempty"`
	Examples     []ports.ExampleSpec `json:"examples"`
}

type programFile struct {
	Programs []programSpec `json:"programs"`
}

// loadTargets parses a program definition file into compile targets. Modules
// run in file order; outputs of earlier modules bind inputs of later ones.
func loadTargets(path string) (map[string]services.CompileTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read programs file: %w", err)
	}

	var file programFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse programs file: %w", err)
	}
	if len(file.Programs) == 0 {
		return nil, fmt.Errorf("programs file %s defines no programs", path)
	}

	targets := make(map[string]services.CompileTarget, len(file.Programs))
	for _, spec := range file.Programs {
		target, err := services.TargetFromSpec(spec.Modules, spec.MetricFields, spec.Examples)
		if err != nil {
			return nil, fmt.Errorf("program %q: %w", spec.Name, err)
		}
		targets[spec.Name] = target
	}
	return targets, nil
}
