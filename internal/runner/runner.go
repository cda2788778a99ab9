package runner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/groblegark/relay/internal/artifact"
	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/idgen"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
	"github.com/groblegark/relay/internal/workflow"
)

// Runner executes queued workflow runs on a pool of workers.
type Runner struct {
	store         store.Store
	workflows     map[string]workflow.Definition
	exec          StepExecutor
	blobs         artifact.BlobStore
	publisher     events.Publisher
	defaultBranch string
	workDir       string
	logger        *slog.Logger

	requeueInterval time.Duration

	jobs   chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures a Runner.
type Options struct {
	Store         store.Store
	Workflows     []workflow.Definition
	Executor      StepExecutor
	Blobs         artifact.BlobStore // nil disables artifact and log uploads
	Publisher     events.Publisher
	DefaultBranch string
	WorkDir       string
	Logger        *slog.Logger

	// RequeueInterval is how often the store is rescanned for queued runs
	// that are not in the submit queue. Zero means DefaultRequeueInterval.
	RequeueInterval time.Duration
}

// DefaultRequeueInterval bounds how long a queued run can wait after its
// submission was dropped by a full queue.
const DefaultRequeueInterval = 30 * time.Second

// New creates a Runner. Call Start to begin processing.
func New(opts Options) *Runner {
	defs := make(map[string]workflow.Definition, len(opts.Workflows))
	for _, def := range opts.Workflows {
		defs[def.Name] = def
	}
	exec := opts.Executor
	if exec == nil {
		exec = &ShellExecutor{Dir: opts.WorkDir}
	}
	interval := opts.RequeueInterval
	if interval <= 0 {
		interval = DefaultRequeueInterval
	}
	return &Runner{
		store:           opts.Store,
		workflows:       defs,
		exec:            exec,
		blobs:           opts.Blobs,
		publisher:       opts.Publisher,
		defaultBranch:   opts.DefaultBranch,
		workDir:         opts.WorkDir,
		logger:          opts.Logger,
		requeueInterval: interval,
		jobs:            make(chan string, 64),
	}
}

// Start launches the worker pool and the periodic requeue scan.
func (r *Runner) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.work(ctx)
		}()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.requeue(ctx)
	}()
}

// Stop drains the workers. In-flight runs finish their current stage.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Submit enqueues a run for execution. It never blocks; when the queue is
// full the run stays queued in the store and the next periodic requeue scan
// picks it up.
func (r *Runner) Submit(runID string) {
	select {
	case r.jobs <- runID:
	default:
		r.logger.Warn("run queue full, deferring", "run", runID)
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case runID := <-r.jobs:
			if err := r.processRun(ctx, runID); err != nil {
				r.logger.Error("run execution failed", "run", runID, "err", err)
			}
		}
	}
}

// requeue rescans the store for queued runs: once at startup for runs left
// behind by a previous process, then on every tick for runs whose submission
// was dropped by a full queue. Resubmitting a run that is already in flight
// is harmless; the MarkRunStarted claim makes the duplicate a no-op.
func (r *Runner) requeue(ctx context.Context) {
	r.requeueOnce(ctx)

	ticker := time.NewTicker(r.requeueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.requeueOnce(ctx)
		}
	}
}

func (r *Runner) requeueOnce(ctx context.Context) {
	runs, _, err := r.store.ListRuns(ctx, model.RunFilter{
		Status: []model.RunStatus{model.RunQueued},
		Sort:   "created_at",
	})
	if err != nil {
		r.logger.Error("requeue scan failed", "err", err)
		return
	}
	for _, run := range runs {
		select {
		case <-ctx.Done():
			return
		case r.jobs <- run.ID:
		default:
			// Queue still full; the next tick tries again.
			return
		}
	}
}

func (r *Runner) processRun(ctx context.Context, runID string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	def, ok := r.workflows[run.Workflow]
	if !ok {
		r.finishRun(ctx, run, model.RunFailed)
		return fmt.Errorf("unknown workflow %q", run.Workflow)
	}

	if err := r.store.MarkRunStarted(ctx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another worker claimed it.
			return nil
		}
		return fmt.Errorf("mark run started: %w", err)
	}
	run.Status = model.RunRunning
	r.recordAndPublish(ctx, events.TopicRunStarted, runID, events.RunStarted{Run: run})

	failed := false
	for _, stage := range def.Stages {
		switch {
		case failed:
			r.skipStage(ctx, runID, stage.Name)
		case stage.Publish && !r.publishEligible(run):
			r.skipStage(ctx, runID, stage.Name)
		default:
			outcome := r.runStage(ctx, run, stage)
			if outcome != model.StageSuccess {
				failed = true
			}
		}
	}

	status := model.RunPassed
	if failed {
		status = model.RunFailed
	}
	r.finishRun(ctx, run, status)
	return nil
}

// publishEligible reports whether a publish stage may run for this run:
// only push events on the default branch publish.
func (r *Runner) publishEligible(run *model.WorkflowRun) bool {
	return run.Event == model.EventPush && run.Branch == r.defaultBranch
}

func (r *Runner) runStage(ctx context.Context, run *model.WorkflowRun, stage workflow.Stage) model.StageOutcome {
	started := time.Now().UTC()
	if err := r.store.PutStageResult(ctx, &model.StageResult{
		RunID:     run.ID,
		Name:      stage.Name,
		Outcome:   model.StageRunning,
		StartedAt: &started,
	}); err != nil {
		r.logger.Error("record stage start failed", "run", run.ID, "stage", stage.Name, "err", err)
	}
	r.recordAndPublish(ctx, events.TopicStageStarted, run.ID, events.StageStarted{
		RunID: run.ID,
		Stage: stage.Name,
	})

	env := map[string]string{
		"RELAY_RUN_ID":     run.ID,
		"RELAY_WORKFLOW":   run.Workflow,
		"RELAY_EVENT":      string(run.Event),
		"RELAY_BRANCH":     run.Branch,
		"RELAY_COMMIT_SHA": run.CommitSHA,
		"RELAY_STAGE":      stage.Name,
	}

	outcome := model.StageSuccess
	var log strings.Builder
	for _, step := range stage.Steps {
		res := r.exec.Execute(ctx, step.Run, stage.TimeoutSeconds, env)
		if step.Name != "" {
			fmt.Fprintf(&log, "--- %s\n", step.Name)
		}
		if res.Output != "" {
			log.WriteString(res.Output)
			log.WriteByte('\n')
		}
		if res.Err != nil {
			fmt.Fprintf(&log, "step failed: %v\n", res.Err)
			outcome = model.StageFailure
			break
		}
	}

	logRef := r.uploadLog(ctx, run.ID, stage.Name, log.String())

	if outcome == model.StageSuccess && stage.Publish {
		if err := r.publishArtifacts(ctx, run, stage); err != nil {
			r.logger.Error("artifact publish failed", "run", run.ID, "stage", stage.Name, "err", err)
			outcome = model.StageFailure
		}
	}

	finished := time.Now().UTC()
	if err := r.store.PutStageResult(ctx, &model.StageResult{
		RunID:      run.ID,
		Name:       stage.Name,
		Outcome:    outcome,
		LogRef:     logRef,
		StartedAt:  &started,
		FinishedAt: &finished,
	}); err != nil {
		r.logger.Error("record stage result failed", "run", run.ID, "stage", stage.Name, "err", err)
	}
	r.recordAndPublish(ctx, events.TopicStageFinished, run.ID, events.StageFinished{
		RunID:   run.ID,
		Stage:   stage.Name,
		Outcome: outcome,
		LogRef:  logRef,
	})
	return outcome
}

func (r *Runner) skipStage(ctx context.Context, runID, name string) {
	now := time.Now().UTC()
	if err := r.store.PutStageResult(ctx, &model.StageResult{
		RunID:      runID,
		Name:       name,
		Outcome:    model.StageSkipped,
		StartedAt:  &now,
		FinishedAt: &now,
	}); err != nil {
		r.logger.Error("record stage skip failed", "run", runID, "stage", name, "err", err)
	}
	r.recordAndPublish(ctx, events.TopicStageFinished, runID, events.StageFinished{
		RunID:   runID,
		Stage:   name,
		Outcome: model.StageSkipped,
	})
}

// uploadLog stores the combined step output and returns a storage key, or ""
// when there is nothing to store or no blob store is configured.
func (r *Runner) uploadLog(ctx context.Context, runID, stage, output string) string {
	if r.blobs == nil || output == "" {
		return ""
	}
	key := fmt.Sprintf("logs/%s/%s.log", runID, stage)
	if _, err := r.blobs.Put(ctx, key, []byte(output)); err != nil {
		r.logger.Error("log upload failed", "run", runID, "stage", stage, "err", err)
		return ""
	}
	return key
}

func (r *Runner) publishArtifacts(ctx context.Context, run *model.WorkflowRun, stage workflow.Stage) error {
	if len(stage.Artifacts) == 0 {
		return nil
	}
	if r.blobs == nil {
		return fmt.Errorf("no artifact store configured")
	}

	for _, spec := range stage.Artifacts {
		path := spec.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.workDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact %s: %w", spec.Name, err)
		}

		id, err := idgen.NewArtifactID()
		if err != nil {
			return err
		}
		key := fmt.Sprintf("artifacts/%s/%s", run.ID, spec.Name)
		size, err := r.blobs.Put(ctx, key, data)
		if err != nil {
			return fmt.Errorf("upload artifact %s: %w", spec.Name, err)
		}

		now := time.Now().UTC()
		art := &model.Artifact{
			ID:         id,
			RunID:      run.ID,
			Name:       spec.Name,
			StorageKey: key,
			SizeBytes:  size,
			CreatedAt:  now,
			ExpiresAt:  now.AddDate(0, 0, spec.RetentionDays),
		}
		if err := r.store.CreateArtifact(ctx, art); err != nil {
			return fmt.Errorf("record artifact %s: %w", spec.Name, err)
		}
		r.recordAndPublish(ctx, events.TopicArtifactPublished, run.ID, events.ArtifactPublished{Artifact: art})
	}
	return nil
}

func (r *Runner) finishRun(ctx context.Context, run *model.WorkflowRun, status model.RunStatus) {
	finished, err := r.store.MarkRunFinished(ctx, run.ID, status)
	if err != nil {
		r.logger.Error("mark run finished failed", "run", run.ID, "err", err)
		return
	}
	r.recordAndPublish(ctx, events.TopicRunFinished, run.ID, events.RunFinished{Run: finished})
	r.logger.Info("run finished", "run", run.ID, "workflow", run.Workflow, "status", status)
}

// recordAndPublish stores the event and publishes it to subscribers. Both
// are best effort; failures are logged and do not affect the run.
func (r *Runner) recordAndPublish(ctx context.Context, topic, runID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshal event failed", "topic", topic, "err", err)
		return
	}
	if err := r.store.RecordEvent(ctx, &model.Event{
		Topic:   topic,
		RunID:   runID,
		Payload: raw,
	}); err != nil {
		r.logger.Error("record event failed", "topic", topic, "err", err)
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, topic, payload); err != nil {
			r.logger.Error("publish event failed", "topic", topic, "err", err)
		}
	}
}
