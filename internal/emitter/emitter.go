// Package emitter implements the Emitter half of §4.12: for each
// document and each `{format, path}` entry in its `outputs[]`, it checks
// the output cache, invokes the external writer subprocess (or an
// in-process filter, for formats that don't need one) to produce the
// format's raw bytes, runs that format's postprocessor, writes the
// result to disk, and upserts the output-cache row (§4.13 "Output
// cache").
package emitter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/hasher"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
)

// Emitter is the EMIT-phase handler that turns an assembled document
// tree into one file per configured output format.
type Emitter struct {
	Writer       WriterFunc
	ArchiveCache *ArchiveCache
	ProjectCode  string
	ProjectName  string
}

// New returns an Emitter. writer and cache may be nil in tests that
// never exercise the docx/html5 formats; production wiring passes
// Command("pandoc", 0) and an OpenArchiveCache-backed cache.
func New(writer WriterFunc, cache *ArchiveCache, projectCode, projectName string) *Emitter {
	return &Emitter{Writer: writer, ArchiveCache: cache, ProjectCode: projectCode, ProjectName: projectName}
}

// Handler wraps this component's OnEmit callback. It runs after the
// Assembler so doc.Doc already holds the final per-document tree,
// whether the document was freshly rebuilt or entered the pipeline
// cached straight into EMIT (§4.13 step 4).
func (e *Emitter) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "emitter",
		Prerequisites: []string{"assembler"},
		OnEmit:        e.run,
	}
}

func (e *Emitter) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	for _, doc := range docs {
		if doc.SpecID == 0 || doc.Doc == nil {
			continue
		}
		for _, target := range doc.Outputs {
			if err := e.emitOne(ctx, st, doc, target, sink); err != nil {
				return fmt.Errorf("emitter: %s (%s): %w", doc.SourcePath, target.Format, err)
			}
		}
	}
	return nil
}

func (e *Emitter) emitOne(ctx context.Context, st *store.Store, doc *pipeline.Context, target pipeline.OutputTarget, sink *diagnostics.Sink) error {
	q := st.DB()

	astJSON, err := doc.Doc.EncodeJSON()
	if err != nil {
		return err
	}
	pirHash := hasher.String(astJSON)

	cached, err := store.GetOutputCache(ctx, q, doc.SpecID, target.Path)
	if err != nil {
		return err
	}
	if cached != nil && cached.PIRHash == pirHash {
		if _, err := os.Stat(target.Path); err == nil {
			if doc.Log != nil {
				doc.Log.Debug().Str("path", target.Path).Msg("emit cache hit, skipping")
			}
			return nil
		}
	}

	cwd := filepath.Join(doc.BuildDir, "emit")
	if err := os.MkdirAll(cwd, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target.Path), 0o755); err != nil {
		return err
	}

	raw, err := e.render(ctx, doc, target, []byte(astJSON), cwd)
	if err != nil {
		sink.Raw(diagnostics.LevelError, fmt.Sprintf("emit of %s failed: %v", target.Path, err), doc.SourcePath, 0)
		return err
	}

	if err := os.WriteFile(target.Path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write output %s: %w", target.Path, err)
	}

	return store.UpsertOutputCache(ctx, q, doc.SpecID, target.Path, pirHash, time.Now().Unix())
}

func (e *Emitter) render(ctx context.Context, doc *pipeline.Context, target pipeline.OutputTarget, astJSON []byte, cwd string) ([]byte, error) {
	switch target.Format {
	case "json":
		return astJSON, nil

	case "markdown":
		text, err := ToMarkdown(doc.Doc)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil

	case "html5":
		if e.Writer == nil {
			return nil, fmt.Errorf("no writer subprocess configured for html5 output")
		}
		return writeHTML5(ctx, e.Writer, astJSON, cwd, doc.HTML5.Standalone, doc.HTML5.CSSPath)

	case "docx":
		if e.Writer == nil {
			return nil, fmt.Errorf("no writer subprocess configured for docx output")
		}
		opts := docxOptions{
			ReferenceDoc: doc.Docx.ReferenceDoc,
			StylePreset:  doc.Docx.StylePreset,
			ProjectCode:  e.ProjectCode,
			ProjectName:  e.ProjectName,
		}
		return writeDocx(ctx, e.Writer, astJSON, cwd, target.Path, opts, e.ArchiveCache)

	default:
		return nil, fmt.Errorf("unknown output format %q", target.Format)
	}
}
