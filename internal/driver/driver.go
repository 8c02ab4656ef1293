// Package driver implements the top-level build loop (§4.13, §4.6): it
// evaluates every configured document against the incremental-build
// cache, drives the Handler Registry & Scheduler through the five
// phases, and enforces per-document deferred cache commit.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/speccompiler/internal/analyzer"
	"github.com/ternarybob/speccompiler/internal/assembler"
	"github.com/ternarybob/speccompiler/internal/common"
	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/emitter"
	"github.com/ternarybob/speccompiler/internal/include"
	"github.com/ternarybob/speccompiler/internal/initializer"
	"github.com/ternarybob/speccompiler/internal/materializer"
	"github.com/ternarybob/speccompiler/internal/numberer"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/render"
	"github.com/ternarybob/speccompiler/internal/rewriter"
	"github.com/ternarybob/speccompiler/internal/search"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
	"github.com/ternarybob/speccompiler/internal/verifier"
)

// Driver owns every long-lived resource a build needs and runs the
// document loop described at §4.13.
type Driver struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Model    *typeregistry.Model
	Store    *store.Store
	Registry *pipeline.Registry

	// DryRun, when set, makes Run stop a dirty document's pipeline after
	// VERIFY: no EMIT phase, no cache commit, diagnostics only.
	DryRun bool

	ledger *render.Ledger
	cache  *emitter.ArchiveCache
}

// New wires every component's Handler into a Registry and opens the
// Store, render ledger, and archive cache this build will use. Callers
// must call Close when done, successful or not.
func New(cfg *common.Config, logger arbor.ILogger) (*Driver, error) {
	model, err := typeregistry.Load(cfg.ModelOverlay)
	if err != nil {
		return nil, fmt.Errorf("failed to load type registry model: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.OutputDir, "specir.db"), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	ledger, err := render.OpenLedger(filepath.Join(cfg.OutputDir, "render_ledger"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open render ledger: %w", err)
	}

	cache, err := emitter.OpenArchiveCache(filepath.Join(cfg.OutputDir, "archive_cache"))
	if err != nil {
		st.Close()
		ledger.Close()
		return nil, fmt.Errorf("failed to open archive cache: %w", err)
	}

	d := &Driver{Config: cfg, Logger: logger, Model: model, Store: st, ledger: ledger, cache: cache}

	concurrency := cfg.Render.Concurrency
	if concurrency <= 0 {
		concurrency = 2 * runtime.NumCPU()
	}
	var limiter *rate.Limiter
	if cfg.Render.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Render.RateLimitPerSec), 1)
	}
	orchestrator := render.New(model, concurrency, limiter, ledger)
	render.RegisterDefaults(orchestrator,
		time.Duration(cfg.Render.DiagramTimeoutSec)*time.Second,
		time.Duration(cfg.Render.ChartTimeoutSec)*time.Second,
		time.Duration(cfg.Render.MathTimeoutSec)*time.Second,
	)

	writer := emitter.Command("pandoc", 0)
	em := emitter.New(writer, cache, cfg.Project.Code, cfg.Project.Name)

	registry := pipeline.NewRegistry()
	handlers := []pipeline.Handler{
		initializer.New(model).Handler(),
		analyzer.New(model).Handler(),
		numberer.New(model).Handler(),
		orchestrator.Handler(),
		rewriter.New(model).Handler(),
		materializer.New(model).Handler(),
		verifier.New(model).Handler(),
		assembler.New().Handler(),
		em.Handler(),
		search.New().Handler(),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			st.Close()
			ledger.Close()
			cache.Close()
			return nil, fmt.Errorf("failed to register handler %q: %w", h.Name, err)
		}
	}
	d.Registry = registry

	return d, nil
}

// Close releases the Store, render ledger, and archive cache.
func (d *Driver) Close() error {
	var errs []string
	if err := d.cache.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := d.ledger.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := d.Store.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close driver resources: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Run evaluates every document in Config.DocFiles against the
// incremental-build cache, runs the dirty set through all five phases
// with deferred per-document cache commit, then runs EMIT once more for
// the documents that were already fresh (§4.13 step 4). It always
// returns a usable Sink, even when it also returns an error: the caller
// derives the process exit code from whichever of the two fired first
// (§6).
func (d *Driver) Run(ctx context.Context) (*diagnostics.Sink, error) {
	sink := diagnostics.NewSink(os.Stderr, d.Config.Validation)

	var cachedDocs []*pipeline.Context
	for _, path := range d.Config.DocFiles {
		identifier := identifierFor(path)
		outputs := d.resolveOutputs(identifier)

		state, err := evaluate(ctx, d.Store, path, outputs)
		if err != nil {
			return sink, fmt.Errorf("dirty detection failed for %s: %w", path, err)
		}

		if state.Dirty {
			doc, err := d.buildDirtyContext(path, outputs, state)
			if err != nil {
				return sink, fmt.Errorf("failed to prepare %s: %w", path, err)
			}
			if err := d.runDirtyDocument(ctx, path, doc, state, sink); err != nil {
				return sink, fmt.Errorf("build failed for %s: %w", path, err)
			}
			continue
		}

		doc, err := d.buildCachedContext(path, outputs, state)
		if err != nil {
			return sink, fmt.Errorf("failed to prepare cached document %s: %w", path, err)
		}
		cachedDocs = append(cachedDocs, doc)
	}

	if len(cachedDocs) > 0 && !d.DryRun {
		if err := d.Registry.Run(ctx, pipeline.PhaseEmit, d.Store, cachedDocs, sink); err != nil {
			return sink, fmt.Errorf("emit failed for cached documents: %w", err)
		}
	}

	return sink, nil
}

// runDirtyDocument drives one dirty document through all five phases in
// isolation (its own single-element docs slice), committing its
// source_files/build_graph rows only once EMIT for this document alone
// has completed without error (§4.13 "Deferred commit"). Running each
// dirty document through its own Registry.Run sequence, rather than
// batching the whole dirty set through each phase together, is what
// makes the per-document commit boundary exact: an error here can never
// be blamed on, or hide behind, another document's work.
//
// When DryRun is set, the EMIT phase and the cache commit are both
// skipped: the pipeline still runs INITIALIZE through VERIFY so its
// diagnostics surface, but nothing is written to disk or to the
// incremental-build cache.
func (d *Driver) runDirtyDocument(ctx context.Context, rootPath string, doc *pipeline.Context, state *docState, sink *diagnostics.Sink) error {
	docs := []*pipeline.Context{doc}
	phases := []pipeline.Phase{pipeline.PhaseInitialize, pipeline.PhaseAnalyze, pipeline.PhaseTransform, pipeline.PhaseVerify}
	if !d.DryRun {
		phases = append(phases, pipeline.PhaseEmit)
	}
	for _, phase := range phases {
		if err := d.Registry.Run(ctx, phase, d.Store, docs, sink); err != nil {
			return err
		}
	}
	if d.DryRun {
		return nil
	}
	return commit(ctx, d.Store, rootPath, state)
}

// Verify runs INITIALIZE, ANALYZE, and VERIFY for every configured
// document, ignoring the incremental-build cache entirely: a CI
// validation pass that never reaches TRANSFORM, EMIT, or cache commit.
// Every document is treated as fresh input on every call, since the
// point is to surface diagnostics, not to populate the build cache.
func (d *Driver) Verify(ctx context.Context) (*diagnostics.Sink, error) {
	sink := diagnostics.NewSink(os.Stderr, d.Config.Validation)

	for _, path := range d.Config.DocFiles {
		identifier := identifierFor(path)
		outputs := d.resolveOutputs(identifier)

		expanded, err := include.Expand(path)
		if err != nil {
			return sink, fmt.Errorf("failed to expand includes for %s: %w", path, err)
		}
		parsed, err := docast.Parse(expanded.Source)
		if err != nil {
			return sink, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		docs := []*pipeline.Context{d.newContext(path, outputs, parsed, false, 0)}
		for _, phase := range []pipeline.Phase{pipeline.PhaseInitialize, pipeline.PhaseAnalyze, pipeline.PhaseVerify} {
			if err := d.Registry.Run(ctx, phase, d.Store, docs, sink); err != nil {
				return sink, fmt.Errorf("verify failed for %s: %w", path, err)
			}
		}
	}

	return sink, nil
}

// buildDirtyContext parses a dirty document's expanded source into an
// AST. SpecID is left 0: the Initializer assigns it during INITIALIZE.
func (d *Driver) buildDirtyContext(path string, outputs []pipeline.OutputTarget, state *docState) (*pipeline.Context, error) {
	doc, err := docast.Parse(state.Expanded.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return d.newContext(path, outputs, doc, false, 0), nil
}

// buildCachedContext resolves a fresh document's existing SpecID
// directly, since it will enter the pipeline only at EMIT and no
// Initializer call will assign one for it (§4.13 step 4).
func (d *Driver) buildCachedContext(path string, outputs []pipeline.OutputTarget, state *docState) (*pipeline.Context, error) {
	if state.Existing == nil {
		return nil, fmt.Errorf("document %s marked fresh but has no prior specification row", path)
	}
	return d.newContext(path, outputs, nil, true, state.Existing.ID), nil
}

func (d *Driver) newContext(path string, outputs []pipeline.OutputTarget, doc *docast.Node, cached bool, specID int64) *pipeline.Context {
	cfg := d.Config
	return &pipeline.Context{
		SpecID:       specID,
		SourcePath:   path,
		Doc:          doc,
		Cached:       cached,
		BuildDir:     cfg.OutputDir,
		ProjectRoot:  cfg.OutputDir,
		Template:     cfg.Template,
		OutputFormat: "",
		Outputs:      outputs,
		ReferenceDoc: cfg.Docx.ReferenceDoc,
		Docx:         pipeline.DocxSettings{ReferenceDoc: cfg.Docx.ReferenceDoc, StylePreset: cfg.Docx.StylePreset},
		HTML5:        pipeline.HTML5Settings{Standalone: cfg.HTML5.Standalone, CSSPath: cfg.HTML5.CSSPath},
		Bibliography: cfg.Bibliography,
		Csl:          cfg.Csl,
		Log:          d.Logger,
		Validation:   cfg.Validation,
	}
}

// resolveOutputs expands `{spec_id}` path templating against a
// document's stable identifier (not its numeric specification row id:
// the Initializer deletes and reinserts that row on every dirty
// rebuild, so only the identifier is stable across builds) and
// prefixes a relative path with OutputDir.
func (d *Driver) resolveOutputs(identifier string) []pipeline.OutputTarget {
	outputs := make([]pipeline.OutputTarget, 0, len(d.Config.Outputs))
	for _, o := range d.Config.Outputs {
		path := strings.ReplaceAll(o.Path, "{spec_id}", identifier)
		if !filepath.IsAbs(path) {
			path = filepath.Join(d.Config.OutputDir, path)
		}
		outputs = append(outputs, pipeline.OutputTarget{Format: o.Format, Path: path})
	}
	return outputs
}
