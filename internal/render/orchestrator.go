package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

// Orchestrator runs the External Render Orchestrator handler (§4.9). It
// is the sole parallel component in the pipeline (§5): everything else
// runs strictly sequentially.
type Orchestrator struct {
	Model       *typeregistry.Model
	Concurrency int
	Limiter     *rate.Limiter
	Ledger      *Ledger

	hooks map[string]Hooks
}

// New returns an Orchestrator with no types registered. concurrency is
// clamped to a floor of 2 per §5 ("at least 2, at most a small multiple
// of host CPU count"); callers pick the ceiling. limiter and ledger may
// both be nil (no spawn-rate bound / no ledger persistence).
func New(model *typeregistry.Model, concurrency int, limiter *rate.Limiter, ledger *Ledger) *Orchestrator {
	if concurrency < 2 {
		concurrency = 2
	}
	return &Orchestrator{
		Model:       model,
		Concurrency: concurrency,
		Limiter:     limiter,
		Ledger:      ledger,
		hooks:       map[string]Hooks{},
	}
}

// Register binds typeRef's prepare/handle pair. A type with
// needs_external_render=true but no registration is silently skipped
// (the same permissive-miss shape the Internal Transformers use for
// unregistered float types).
func (o *Orchestrator) Register(typeRef string, h Hooks) {
	o.hooks[typeRef] = h
}

// Handler returns this component's registration record for the
// TRANSFORM phase. It has no ordering requirement against the Internal
// Transformers: the two own disjoint type sets (needs_external_render
// splits the float/view universe in two, §4.3).
func (o *Orchestrator) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "render",
		Prerequisites: []string{},
		OnTransform:   o.run,
	}
}

func (o *Orchestrator) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	var buildDir string
	var log arbor.ILogger
	specIDs := map[int64]bool{}
	for _, doc := range docs {
		if doc.Cached || doc.SpecID == 0 {
			continue
		}
		specIDs[doc.SpecID] = true
		if buildDir == "" {
			buildDir = doc.BuildDir
		}
		if log == nil {
			log = doc.Log
		}
	}
	if buildDir == "" {
		buildDir = os.TempDir()
	}
	if log == nil {
		log = arbor.NewLogger()
	}
	q := st.DB()

	ordered := make([]int64, 0, len(specIDs))
	for id := range specIDs {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	var pending []pendingTask
	for _, specID := range ordered {
		items, err := o.collect(ctx, st, specID)
		if err != nil {
			return err
		}
		for _, item := range items {
			hooks, ok := o.hooks[item.TypeRef]
			if !ok {
				continue
			}
			task, err := hooks.Prepare(item, buildDir, log)
			if err != nil {
				sink.Emit(diagnostics.KeyFloatRenderFailure,
					fmt.Sprintf("failed to prepare render task for %s: %v", item.Label, err), item.FromFile, item.StartLine)
				continue
			}
			if task == nil {
				continue
			}
			if task.OutputPath != "" {
				if _, err := os.Stat(task.OutputPath); err == nil {
					if err := hooks.Handle(ctx, q, item, task, true, Result{}, log); err != nil {
						return fmt.Errorf("failed to handle cached render result for %s: %w", item.Label, err)
					}
					continue
				}
			}
			pending = append(pending, pendingTask{item: item, task: task, hooks: hooks})
		}
	}

	return o.executeBatch(ctx, q, pending, sink, log)
}

func (o *Orchestrator) collect(ctx context.Context, st *store.Store, specID int64) ([]Item, error) {
	var items []Item

	floats, err := store.ListSpecFloats(ctx, st, specID)
	if err != nil {
		return nil, fmt.Errorf("failed to list floats for spec %d: %w", specID, err)
	}
	for _, f := range floats {
		ft, ok := o.Model.Floats[f.TypeRef]
		if !ok || !ft.NeedsExternalRender || f.ResolvedAST != "" {
			continue
		}
		id := f.ID
		items = append(items, Item{
			FloatID: &id, SpecificationRef: f.SpecificationRef, TypeRef: f.TypeRef,
			Label: f.Label, ContentSHA: f.ContentSHA, RawContent: f.RawContent,
			FromFile: f.FromFile, StartLine: f.StartLine,
		})
	}

	views, err := store.ListSpecViews(ctx, st, specID)
	if err != nil {
		return nil, fmt.Errorf("failed to list views for spec %d: %w", specID, err)
	}
	for _, v := range views {
		vt, ok := o.Model.Views[v.TypeRef]
		if !ok || !vt.NeedsExternalRender || v.ResolvedAST != "" {
			continue
		}
		id := v.ID
		items = append(items, Item{
			ViewID: &id, SpecificationRef: v.SpecificationRef, TypeRef: v.TypeRef,
			Label: v.Label, ContentSHA: v.ContentSHA, RawContent: v.RawContent,
			FromFile: v.FromFile, StartLine: v.StartLine,
		})
	}

	return items, nil
}

type pendingTask struct {
	item  Item
	task  *Task
	hooks Hooks
}

// executeBatch runs every pending task concurrently, bounded by
// o.Concurrency, and dispatches each outcome back to its registering
// type. Tasks observe independent timeouts; the batch completes once
// every task has terminated (§4.9 step 4, §5).
func (o *Orchestrator) executeBatch(ctx context.Context, q store.Querier, pending []pendingTask, sink *diagnostics.Sink, log arbor.ILogger) error {
	if len(pending) == 0 {
		return nil
	}

	sem := make(chan struct{}, o.Concurrency)
	var wg sync.WaitGroup
	errs := make([]error, len(pending))

	for i, pt := range pending {
		i, pt := i, pt
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if o.Limiter != nil {
				if err := o.Limiter.Wait(ctx); err != nil {
					errs[i] = err
					return
				}
			}

			result := o.runOne(ctx, pt.task)
			success := !result.TimedOut && result.ExitCode == 0

			if !success {
				reason := "non-zero exit"
				if result.TimedOut {
					reason = "timed out"
				}
				sink.Emit(diagnostics.KeyFloatRenderFailure,
					fmt.Sprintf("external render %s for %s: %s", reason, pt.item.Label, result.Stderr),
					pt.item.FromFile, pt.item.StartLine)
			}

			if o.Ledger != nil {
				_ = o.Ledger.Record(pt.task.OutputPath, pt.item.TypeRef, success, result.ExitCode)
			}

			if err := pt.hooks.Handle(ctx, q, pt.item, pt.task, success, result, log); err != nil {
				errs[i] = fmt.Errorf("failed to handle render result for %s: %w", pt.item.Label, err)
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runOne spawns task's sub-process and awaits it under task's own
// timeout, isolated from the other tasks in the batch (§5).
func (o *Orchestrator) runOne(ctx context.Context, task *Task) Result {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, task.Cmd, task.Args...)
	cmd.Dir = task.Cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result
	}
	if err == nil {
		result.ExitCode = 0
		return result
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result
	}
	result.ExitCode = -1
	result.Stderr = err.Error()
	return result
}
