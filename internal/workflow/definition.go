// Package workflow defines the declarative pipeline format relay executes:
// trigger rules, ordered stages of shell steps, and artifact declarations.
package workflow

import "fmt"

// Definition declares one pipeline: when it triggers, which stages run, and
// which artifacts a publish stage produces.
type Definition struct {
	Name   string  `yaml:"name" json:"name"`
	On     Trigger `yaml:"on" json:"on"`
	Stages []Stage `yaml:"stages" json:"stages"`
}

// Trigger declares the events a workflow responds to. A nil rule means the
// workflow ignores that event kind entirely.
type Trigger struct {
	Push        *Rule `yaml:"push,omitempty" json:"push,omitempty"`
	PullRequest *Rule `yaml:"pull_request,omitempty" json:"pull_request,omitempty"`
}

// Rule filters an event by branch. Patterns are globs ("release/*",
// "**"); an empty list matches every branch.
type Rule struct {
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
}

// Stage is one sequential phase of a pipeline. Steps run in order and every
// step must exit 0 for the stage to succeed. A publish stage additionally
// only runs for push events on the default branch, after all prior stages
// have succeeded.
type Stage struct {
	Name           string         `yaml:"name" json:"name"`
	Publish        bool           `yaml:"publish,omitempty" json:"publish,omitempty"`
	Steps          []Step         `yaml:"steps" json:"steps"`
	TimeoutSeconds int            `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Artifacts      []ArtifactSpec `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
}

// Step is a single shell command executed via "sh -c".
type Step struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Run  string `yaml:"run" json:"run"`
}

// ArtifactSpec declares a file a publish stage uploads on success.
type ArtifactSpec struct {
	Name          string `yaml:"name" json:"name"`
	Path          string `yaml:"path" json:"path"`
	RetentionDays int    `yaml:"retention_days,omitempty" json:"retention_days,omitempty"`
}

// DefaultRetentionDays applies when an artifact spec omits retention_days.
const DefaultRetentionDays = 30

// Validate ensures the definition is self-consistent.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow: name is required")
	}
	if d.On.Push == nil && d.On.PullRequest == nil {
		return fmt.Errorf("workflow %s: at least one trigger (push or pull_request) is required", d.Name)
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow %s: at least one stage is required", d.Name)
	}
	seen := map[string]struct{}{}
	for idx, stage := range d.Stages {
		if stage.Name == "" {
			return fmt.Errorf("workflow %s stage[%d]: name is required", d.Name, idx)
		}
		if _, dup := seen[stage.Name]; dup {
			return fmt.Errorf("workflow %s: duplicate stage name %s", d.Name, stage.Name)
		}
		seen[stage.Name] = struct{}{}
		if len(stage.Steps) == 0 {
			return fmt.Errorf("workflow %s stage %s: at least one step is required", d.Name, stage.Name)
		}
		for sidx, step := range stage.Steps {
			if step.Run == "" {
				return fmt.Errorf("workflow %s stage %s step[%d]: run is required", d.Name, stage.Name, sidx)
			}
		}
		if stage.TimeoutSeconds < 0 {
			return fmt.Errorf("workflow %s stage %s: timeout_seconds must be >= 0", d.Name, stage.Name)
		}
		for _, spec := range stage.Artifacts {
			if !stage.Publish {
				return fmt.Errorf("workflow %s stage %s: artifacts are only allowed on publish stages", d.Name, stage.Name)
			}
			if spec.Name == "" || spec.Path == "" {
				return fmt.Errorf("workflow %s stage %s: artifact name and path are required", d.Name, stage.Name)
			}
			if spec.RetentionDays < 0 {
				return fmt.Errorf("workflow %s stage %s artifact %s: retention_days must be >= 0", d.Name, stage.Name, spec.Name)
			}
		}
	}
	return nil
}

// Normalized clones the definition, fills in artifact retention defaults, and
// validates the result.
func (d Definition) Normalized() (Definition, error) {
	clone := d
	clone.Stages = make([]Stage, len(d.Stages))
	copy(clone.Stages, d.Stages)
	for i := range clone.Stages {
		if len(clone.Stages[i].Artifacts) == 0 {
			continue
		}
		specs := make([]ArtifactSpec, len(clone.Stages[i].Artifacts))
		copy(specs, clone.Stages[i].Artifacts)
		for j := range specs {
			if specs[j].RetentionDays == 0 {
				specs[j].RetentionDays = DefaultRetentionDays
			}
		}
		clone.Stages[i].Artifacts = specs
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// Stage returns the stage with the given name, or nil.
func (d Definition) Stage(name string) *Stage {
	for i := range d.Stages {
		if d.Stages[i].Name == name {
			return &d.Stages[i]
		}
	}
	return nil
}
