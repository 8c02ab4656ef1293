// Package pipeline implements the Handler Registry & Scheduler (§4.6):
// handler registration, per-phase prerequisite topological ordering, and
// the per-document Context threaded through every phase callback.
package pipeline

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/docast"
)

// Phase is one of the five driver phases, in execution order.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhaseAnalyze    Phase = "analyze"
	PhaseTransform  Phase = "transform"
	PhaseVerify     Phase = "verify"
	PhaseEmit       Phase = "emit"
)

// Phases lists every phase in driver execution order.
var Phases = []Phase{PhaseInitialize, PhaseAnalyze, PhaseTransform, PhaseVerify, PhaseEmit}

// OutputTarget is one resolved `{format, path}` entry for a document,
// after `{spec_id}` path templating has been applied (§4.6, §6).
type OutputTarget struct {
	Format string
	Path   string
}

// Context is the per-document value populated by the driver and visible
// to every handler (§4.6 "Context fields").
type Context struct {
	SpecID     int64
	SourcePath string
	Doc        *docast.Node // parsed AST; nil for cached-only contexts
	Cached     bool         // true => document skipped INIT/ANALYZE/TRANSFORM

	BuildDir    string
	ProjectRoot string
	Template    string

	OutputFormat string
	Outputs      []OutputTarget

	ReferenceDoc string
	Docx         DocxSettings
	HTML5        HTML5Settings
	Bibliography string
	Csl          string

	Log        arbor.ILogger
	Validation map[string]string

	// FileSeq is the monotonically increasing counter assigned during
	// INITIALIZE (§4.5); handlers that emit new rows within a document's
	// walk read-then-increment it.
	FileSeq int64
}

// DocxSettings mirrors common.DocxConfig without importing the common
// package, keeping pipeline free of the config loader's dependency chain.
type DocxSettings struct {
	ReferenceDoc string
	StylePreset  string
}

// HTML5Settings mirrors common.HTML5Config.
type HTML5Settings struct {
	Standalone bool
	CSSPath    string
}

// NextFileSeq returns the current counter and advances it, used by the
// Initializer when emitting SpecObjects, Floats, Views, and Relations in
// a single monotonic document-order sequence (§4.5).
func (c *Context) NextFileSeq() int64 {
	c.FileSeq++
	return c.FileSeq
}
