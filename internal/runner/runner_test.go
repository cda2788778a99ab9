package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/groblegark/relay/internal/artifact"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
	"github.com/groblegark/relay/internal/workflow"
)

// fakeExec returns scripted results keyed by command, succeeding by default.
type fakeExec struct {
	mu       sync.Mutex
	failures map[string]error
	commands []string
}

func (f *fakeExec) Execute(ctx context.Context, command string, timeoutSec int, env map[string]string) StepResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if err, ok := f.failures[command]; ok {
		return StepResult{Output: "boom", Err: err}
	}
	return StepResult{Output: "ok"}
}

// runnerStore implements the store methods the runner touches, in memory.
type runnerStore struct {
	store.Store

	mu        sync.Mutex
	runs      map[string]*model.WorkflowRun
	stages    map[string][]*model.StageResult
	artifacts []*model.Artifact
	events    []*model.Event
}

func newRunnerStore(runs ...*model.WorkflowRun) *runnerStore {
	s := &runnerStore{
		runs:   make(map[string]*model.WorkflowRun),
		stages: make(map[string][]*model.StageResult),
	}
	for _, r := range runs {
		s.runs[r.ID] = r
	}
	return s
}

func (s *runnerStore) GetRun(ctx context.Context, id string) (*model.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	clone := *r
	return &clone, nil
}

func (s *runnerStore) MarkRunStarted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.Status != model.RunQueued {
		return sql.ErrNoRows
	}
	r.Status = model.RunRunning
	return nil
}

func (s *runnerStore) MarkRunFinished(ctx context.Context, id string, status model.RunStatus) (*model.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	r.Status = status
	now := time.Now()
	r.FinishedAt = &now
	clone := *r
	return &clone, nil
}

func (s *runnerStore) PutStageResult(ctx context.Context, sr *model.StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := s.stages[sr.RunID]
	for i, existing := range results {
		if existing.Name == sr.Name {
			results[i] = sr
			return nil
		}
	}
	s.stages[sr.RunID] = append(results, sr)
	return nil
}

func (s *runnerStore) CreateArtifact(ctx context.Context, a *model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, a)
	return nil
}

func (s *runnerStore) RecordEvent(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *runnerStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]*model.WorkflowRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WorkflowRun
	for _, r := range s.runs {
		for _, status := range filter.Status {
			if r.Status == status {
				clone := *r
				out = append(out, &clone)
				break
			}
		}
	}
	return out, len(out), nil
}

func (s *runnerStore) countByStatus(status model.RunStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.runs {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (s *runnerStore) stageOutcome(runID, name string) model.StageOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sr := range s.stages[runID] {
		if sr.Name == name {
			return sr.Outcome
		}
	}
	return ""
}

// memBlobs is an in-memory blob store.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(ctx context.Context, key string, data []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return int64(len(data)), nil
}

func (m *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (m *memBlobs) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func testWorkflow(t *testing.T, dir string) workflow.Definition {
	t.Helper()
	def := workflow.Definition{
		Name: "ci",
		On:   workflow.Trigger{Push: &workflow.Rule{}},
		Stages: []workflow.Stage{
			{
				Name:  "test",
				Steps: []workflow.Step{{Run: "make test"}},
			},
			{
				Name:    "publish",
				Publish: true,
				Steps:   []workflow.Step{{Run: "make dist"}},
				Artifacts: []workflow.ArtifactSpec{
					{Name: "dist", Path: "dist.tar.gz", RetentionDays: 7},
				},
			},
		},
	}
	if dir != "" {
		if err := os.WriteFile(filepath.Join(dir, "dist.tar.gz"), []byte("tarball"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return def
}

func newTestRunner(t *testing.T, st *runnerStore, exec StepExecutor, blobs artifact.BlobStore, workDir string) *Runner {
	t.Helper()
	return New(Options{
		Store:         st,
		Workflows:     []workflow.Definition{testWorkflow(t, "")},
		Executor:      exec,
		Blobs:         blobs,
		DefaultBranch: "main",
		WorkDir:       workDir,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestProcessRunPushDefaultBranchPublishes(t *testing.T) {
	dir := t.TempDir()
	run := &model.WorkflowRun{
		ID: "run-1", Workflow: "ci", Event: model.EventPush,
		Branch: "main", CommitSHA: "deadbee", Status: model.RunQueued,
	}
	st := newRunnerStore(run)
	blobs := newMemBlobs()

	r := New(Options{
		Store:         st,
		Workflows:     []workflow.Definition{testWorkflow(t, dir)},
		Executor:      &fakeExec{},
		Blobs:         blobs,
		DefaultBranch: "main",
		WorkDir:       dir,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if err := r.processRun(context.Background(), "run-1"); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st.runs["run-1"].Status != model.RunPassed {
		t.Errorf("run status = %q, want passed", st.runs["run-1"].Status)
	}
	if got := st.stageOutcome("run-1", "test"); got != model.StageSuccess {
		t.Errorf("test outcome = %q, want success", got)
	}
	if got := st.stageOutcome("run-1", "publish"); got != model.StageSuccess {
		t.Errorf("publish outcome = %q, want success", got)
	}
	if len(st.artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(st.artifacts))
	}
	a := st.artifacts[0]
	if a.Name != "dist" || a.SizeBytes != int64(len("tarball")) {
		t.Errorf("artifact = %+v", a)
	}
	wantExpiry := time.Now().AddDate(0, 0, 7)
	if a.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || a.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expires_at = %v, want ~%v", a.ExpiresAt, wantExpiry)
	}
	if _, ok := blobs.objects["artifacts/run-1/dist"]; !ok {
		t.Error("artifact blob not uploaded")
	}
}

func TestProcessRunTestFailureSkipsPublish(t *testing.T) {
	run := &model.WorkflowRun{
		ID: "run-2", Workflow: "ci", Event: model.EventPush,
		Branch: "main", CommitSHA: "deadbee", Status: model.RunQueued,
	}
	st := newRunnerStore(run)
	exec := &fakeExec{failures: map[string]error{"make test": errors.New("exit 1")}}

	r := newTestRunner(t, st, exec, nil, "")
	if err := r.processRun(context.Background(), "run-2"); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st.runs["run-2"].Status != model.RunFailed {
		t.Errorf("run status = %q, want failed", st.runs["run-2"].Status)
	}
	if got := st.stageOutcome("run-2", "test"); got != model.StageFailure {
		t.Errorf("test outcome = %q, want failure", got)
	}
	if got := st.stageOutcome("run-2", "publish"); got != model.StageSkipped {
		t.Errorf("publish outcome = %q, want skipped", got)
	}
	if len(st.artifacts) != 0 {
		t.Errorf("artifacts = %d, want 0", len(st.artifacts))
	}
	// The publish step must never have executed.
	for _, cmd := range exec.commands {
		if cmd == "make dist" {
			t.Error("publish step ran despite test failure")
		}
	}
}

func TestProcessRunFeatureBranchSkipsPublish(t *testing.T) {
	run := &model.WorkflowRun{
		ID: "run-3", Workflow: "ci", Event: model.EventPush,
		Branch: "feature/x", CommitSHA: "deadbee", Status: model.RunQueued,
	}
	st := newRunnerStore(run)

	r := newTestRunner(t, st, &fakeExec{}, nil, "")
	if err := r.processRun(context.Background(), "run-3"); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st.runs["run-3"].Status != model.RunPassed {
		t.Errorf("run status = %q, want passed", st.runs["run-3"].Status)
	}
	if got := st.stageOutcome("run-3", "publish"); got != model.StageSkipped {
		t.Errorf("publish outcome = %q, want skipped", got)
	}
}

func TestProcessRunPullRequestSkipsPublish(t *testing.T) {
	run := &model.WorkflowRun{
		ID: "run-4", Workflow: "ci", Event: model.EventPullRequest,
		Branch: "main", CommitSHA: "deadbee", Status: model.RunQueued,
	}
	st := newRunnerStore(run)

	r := newTestRunner(t, st, &fakeExec{}, nil, "")
	if err := r.processRun(context.Background(), "run-4"); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st.runs["run-4"].Status != model.RunPassed {
		t.Errorf("run status = %q, want passed", st.runs["run-4"].Status)
	}
	if got := st.stageOutcome("run-4", "publish"); got != model.StageSkipped {
		t.Errorf("publish outcome = %q, want skipped", got)
	}
}

func TestProcessRunUnknownWorkflowFails(t *testing.T) {
	run := &model.WorkflowRun{
		ID: "run-5", Workflow: "nope", Event: model.EventPush,
		Branch: "main", CommitSHA: "deadbee", Status: model.RunQueued,
	}
	st := newRunnerStore(run)

	r := newTestRunner(t, st, &fakeExec{}, nil, "")
	if err := r.processRun(context.Background(), "run-5"); err == nil {
		t.Fatal("processRun: expected error for unknown workflow")
	}
	if st.runs["run-5"].Status != model.RunFailed {
		t.Errorf("run status = %q, want failed", st.runs["run-5"].Status)
	}
}

func TestStartRecoversRunsDroppedByFullQueue(t *testing.T) {
	// More runs than the submit queue holds. Without the periodic requeue
	// scan the overflow would stay queued for the life of the process.
	const total = 70
	var runs []*model.WorkflowRun
	for i := 0; i < total; i++ {
		runs = append(runs, &model.WorkflowRun{
			ID: fmt.Sprintf("run-%03d", i), Workflow: "ci", Event: model.EventPush,
			Branch: "feature/x", CommitSHA: "deadbee", Status: model.RunQueued,
		})
	}
	st := newRunnerStore(runs...)

	r := New(Options{
		Store:           st,
		Workflows:       []workflow.Definition{testWorkflow(t, "")},
		Executor:        &fakeExec{},
		DefaultBranch:   "main",
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		RequeueInterval: 10 * time.Millisecond,
	})

	for _, run := range runs {
		r.Submit(run.ID)
	}

	r.Start(2)
	defer r.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st.countByStatus(model.RunPassed) == total {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("passed %d of %d runs, overflow was never recovered", st.countByStatus(model.RunPassed), total)
}

func TestShellExecutorRunsCommand(t *testing.T) {
	e := &ShellExecutor{}
	res := e.Execute(context.Background(), "echo hello", 5, map[string]string{"RELAY_STAGE": "test"})
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if res.Output != "hello" {
		t.Errorf("output = %q, want hello", res.Output)
	}
}

func TestShellExecutorFailure(t *testing.T) {
	e := &ShellExecutor{}
	res := e.Execute(context.Background(), "exit 3", 5, nil)
	if res.Err == nil {
		t.Fatal("Execute: expected error")
	}
}

func TestShellExecutorEnv(t *testing.T) {
	e := &ShellExecutor{}
	res := e.Execute(context.Background(), "printf '%s' \"$RELAY_BRANCH\"", 5, map[string]string{"RELAY_BRANCH": "main"})
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if res.Output != "main" {
		t.Errorf("output = %q, want main", res.Output)
	}
}
