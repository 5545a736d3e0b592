package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dominikbraun/graph"
	"gopkg.in/yaml.v3"

	"transform-registry/internal/api"
)

// Manifest is a YAML file declaring transformations to define in bulk.
type Manifest struct {
	Transformations []ManifestEntry `yaml:"transformations"`
}

// ManifestEntry declares one transformation. FunctionFile is resolved
// relative to the manifest's directory.
type ManifestEntry struct {
	ID            string      `yaml:"id"`
	JobID         string      `yaml:"job_id"`
	Type          string      `yaml:"type"`
	FunctionText  string      `yaml:"function_text"`
	FunctionFile  string      `yaml:"function_file"`
	InputQuery    *string     `yaml:"input_query"`
	TargetTable   *string     `yaml:"target_table"`
	TriggerTables []string    `yaml:"trigger_tables"`
	DependsOn     *string     `yaml:"depends_on"`
	Parameters    interface{} `yaml:"parameters"`
}

// LoadManifest reads and checks the manifest at path, inlining function files.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied path
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	dir := filepath.Dir(path)
	var errs []error
	for i := range m.Transformations {
		e := &m.Transformations[i]
		switch {
		case e.ID == "":
			errs = append(errs, fmt.Errorf("entry %d: id is required", i))
			continue
		case e.JobID == "":
			errs = append(errs, fmt.Errorf("%s: job_id is required", e.ID))
		case e.FunctionText != "" && e.FunctionFile != "":
			errs = append(errs, fmt.Errorf("%s: function_text and function_file are mutually exclusive", e.ID))
		case e.FunctionFile != "":
			text, err := os.ReadFile(filepath.Join(dir, e.FunctionFile)) //nolint:gosec // manifest-relative path
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: read function file: %w", e.ID, err))
				continue
			}
			e.FunctionText = string(text)
		}
		if e.Type == "" {
			e.Type = "transform"
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// ApplyOrder returns the entries with every parent declared in the manifest
// placed before its dependents, ties broken by id. Parents outside the
// manifest are left for the server to check.
func (m *Manifest) ApplyOrder() ([]ManifestEntry, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	byID := make(map[string]ManifestEntry, len(m.Transformations))
	for _, e := range m.Transformations {
		if _, dup := byID[e.ID]; dup {
			return nil, fmt.Errorf("transformation %q is declared twice", e.ID)
		}
		byID[e.ID] = e
		if err := g.AddVertex(e.ID); err != nil {
			return nil, fmt.Errorf("add %q: %w", e.ID, err)
		}
	}
	for _, e := range m.Transformations {
		if e.DependsOn == nil {
			continue
		}
		if _, declared := byID[*e.DependsOn]; !declared {
			continue
		}
		if err := g.AddEdge(*e.DependsOn, e.ID); err != nil {
			if errors.Is(err, graph.ErrEdgeCreatesCycle) || *e.DependsOn == e.ID {
				return nil, fmt.Errorf("dependency cycle through %q", e.ID)
			}
			return nil, fmt.Errorf("add dependency %q -> %q: %w", *e.DependsOn, e.ID, err)
		}
	}

	ids, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("order manifest: %w", err)
	}
	out := make([]ManifestEntry, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

// Body converts the entry into a define request body.
func (e ManifestEntry) Body() (api.DefineTransformationBody, error) {
	body := api.DefineTransformationBody{
		Type:          e.Type,
		FunctionText:  e.FunctionText,
		JobID:         e.JobID,
		InputQuery:    e.InputQuery,
		TargetTable:   e.TargetTable,
		TriggerTables: e.TriggerTables,
		DependsOn:     e.DependsOn,
	}
	if e.Parameters != nil {
		raw, err := json.Marshal(e.Parameters)
		if err != nil {
			return body, fmt.Errorf("%s: parameters: %w", e.ID, err)
		}
		body.Parameters = raw
	}
	return body, nil
}
