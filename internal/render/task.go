// Package render implements the External Render Orchestrator (§4.9): the
// one parallel component in an otherwise single-threaded pipeline. It
// batches sub-process renderer tasks registered by float/view type,
// deduplicates by content hash via an output-path existence check, and
// dispatches exit status back to the registering type.
package render

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/store"
)

// Item is the subset of a SpecFloat or SpecView row the orchestrator
// needs to stage a render task, independent of which owning table the
// row came from.
type Item struct {
	FloatID          *int64
	ViewID           *int64
	SpecificationRef int64
	TypeRef          string
	Label            string
	ContentSHA       string
	RawContent       string
	FromFile         string
	StartLine        int
}

// Task is the descriptor returned by a registered PrepareFunc (§4.9 step
// 2): `{cmd, args, opts{cwd, timeout}, output_path?, context}`.
type Task struct {
	Cmd        string
	Args       []string
	Cwd        string
	Timeout    time.Duration
	OutputPath string // empty means the task is never cache-skippable
	Context    any    // opaque value round-tripped to HandleFunc
}

// Result is the byte-stream outcome of one executed Task (§4.9 step 4).
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// PrepareFunc builds a Task for item, or returns a nil Task to skip it
// entirely (the type has nothing to render for this item). buildDir is
// the invocation's staging directory; log is the per-document logger.
type PrepareFunc func(item Item, buildDir string, log arbor.ILogger) (*Task, error)

// HandleFunc is invoked once per item with the outcome of its Task
// (success, a cache hit, or a failure) and is responsible for updating
// the owning row's resolved_ast via q.
type HandleFunc func(ctx context.Context, q store.Querier, item Item, task *Task, success bool, result Result, log arbor.ILogger) error

// Hooks is one type's registration: how to build its task and how to
// consume the result.
type Hooks struct {
	Prepare PrepareFunc
	Handle  HandleFunc
}
