package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sequent-io/sequent/pkg/schema"
)

// loadProject reads a project file: a JSON object mapping sequence names to
// definitions. Every definition is validated before the project is returned.
func loadProject(path string) (schema.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}

	var project schema.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}

	for name, def := range project {
		if def == nil {
			return nil, fmt.Errorf("sequence %q: empty definition", name)
		}
		if def.Name == "" {
			def.Name = name
		}
		if err := schema.ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("sequence %q: %w", name, err)
		}
	}
	return project, nil
}
