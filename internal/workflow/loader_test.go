package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
name: ci
on:
  push:
    branches: ["**"]
  pull_request:
    branches: [main]
stages:
  - name: test
    steps:
      - name: provision
        run: ./scripts/provision.sh
      - name: install
        run: npm ci
      - name: test
        run: npm test
    timeout_seconds: 600
  - name: publish
    publish: true
    steps:
      - run: npm run build
      - run: npm pack
    artifacts:
      - name: dist
        path: dist/app.tgz
        retention_days: 14
`

func TestParse(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if def.Name != "ci" {
		t.Errorf("Name = %q, want %q", def.Name, "ci")
	}
	if def.On.Push == nil || len(def.On.Push.Branches) != 1 || def.On.Push.Branches[0] != "**" {
		t.Errorf("push trigger = %+v, want branches [**]", def.On.Push)
	}
	if def.On.PullRequest == nil || len(def.On.PullRequest.Branches) != 1 || def.On.PullRequest.Branches[0] != "main" {
		t.Errorf("pull_request trigger = %+v, want branches [main]", def.On.PullRequest)
	}
	if len(def.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(def.Stages))
	}

	test := def.Stage("test")
	if test == nil || len(test.Steps) != 3 || test.TimeoutSeconds != 600 {
		t.Errorf("test stage = %+v", test)
	}
	if test.Publish {
		t.Error("test stage should not be a publish stage")
	}

	publish := def.Stage("publish")
	if publish == nil || !publish.Publish {
		t.Fatalf("publish stage = %+v", publish)
	}
	if len(publish.Artifacts) != 1 || publish.Artifacts[0].RetentionDays != 14 {
		t.Errorf("publish artifacts = %+v", publish.Artifacts)
	}
}

func TestParseDefaultsRetention(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "        retention_days: 14\n", "", 1)
	def, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := def.Stage("publish").Artifacts[0].RetentionDays; got != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want default %d", got, DefaultRetentionDays)
	}
}

func TestValidateErrors(t *testing.T) {
	base := func() Definition {
		def, err := Parse([]byte(sampleYAML))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		return def
	}

	for _, tc := range []struct {
		name   string
		mutate func(*Definition)
		want   string
	}{
		{"MissingName", func(d *Definition) { d.Name = "" }, "name is required"},
		{"NoTriggers", func(d *Definition) { d.On = Trigger{} }, "at least one trigger"},
		{"NoStages", func(d *Definition) { d.Stages = nil }, "at least one stage"},
		{"DuplicateStage", func(d *Definition) { d.Stages[1].Name = "test" }, "duplicate stage"},
		{"EmptySteps", func(d *Definition) { d.Stages[0].Steps = nil }, "at least one step"},
		{"EmptyRun", func(d *Definition) { d.Stages[0].Steps[0].Run = "" }, "run is required"},
		{"NegativeTimeout", func(d *Definition) { d.Stages[0].TimeoutSeconds = -1 }, "timeout_seconds"},
		{"ArtifactOnTestStage", func(d *Definition) {
			d.Stages[0].Artifacts = []ArtifactSpec{{Name: "x", Path: "x.tgz"}}
		}, "only allowed on publish stages"},
		{"ArtifactMissingPath", func(d *Definition) { d.Stages[1].Artifacts[0].Path = "" }, "name and path are required"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			def := base()
			tc.mutate(&def)
			err := def.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ci.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	nightly := strings.Replace(sampleYAML, "name: ci", "name: nightly", 1)
	if err := os.WriteFile(filepath.Join(dir, "nightly.yml"), []byte(nightly), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-YAML files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# docs"), 0o644); err != nil {
		t.Fatal(err)
	}

	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("len(defs) = %d, want 2", len(defs))
	}
	if defs[0].Name != "ci" || defs[1].Name != "nightly" {
		t.Errorf("defs sorted as %s, %s", defs[0].Name, defs[1].Name)
	}
}

func TestLoadDirDuplicateName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sampleYAML), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}
