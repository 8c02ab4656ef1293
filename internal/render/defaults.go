package render

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/hasher"
	"github.com/ternarybob/speccompiler/internal/store"
)

const defaultTimeout = 30 * time.Second

// RegisterDefaults wires the stock externally-rendered float types
// against real command-line renderers. A project overlay that ships its
// own renderer binary calls Register again with the same type ref to
// override any entry here.
func RegisterDefaults(o *Orchestrator, diagramTimeout, chartTimeout, mathTimeout time.Duration) {
	o.Register("PLANTUML", Hooks{
		Prepare: commandPrepare("diagrams", "plantuml", []string{"-tsvg", "-pipe"}, "svg", diagramTimeout, true),
		Handle:  assetPathHandler(),
	})
	o.Register("CHART", Hooks{
		Prepare: commandPrepare("charts", "mmdc", nil, "svg", chartTimeout, false),
		Handle:  assetPathHandler(),
	})
	o.Register("EQUATION", Hooks{
		Prepare: commandPrepare("equations", "katex", nil, "html", mathTimeout, false),
		Handle:  assetPathHandler(),
	})
}

// commandPrepare builds a PrepareFunc that writes item.RawContent to a
// content-hashed input file under buildDir/{subdir} and invokes `cmd` on
// it, producing a sibling content-hashed output file of the given
// extension. subdir keys the persisted-state layout by render type
// (diagrams, charts, equations) rather than pooling every type into one
// shared directory. When viaStdin is true the renderer reads its source
// from stdin (args already include the appropriate pipe flag) rather
// than an input file path argument.
func commandPrepare(subdir, cmd string, extraArgs []string, outExt string, timeout time.Duration, viaStdin bool) PrepareFunc {
	return func(item Item, buildDir string, log arbor.ILogger) (*Task, error) {
		dir := filepath.Join(buildDir, subdir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}

		key := item.ContentSHA
		if key == "" {
			key = hasher.String(item.RawContent)
		}

		outputPath := filepath.Join(dir, key+"."+outExt)

		args := append([]string{}, extraArgs...)
		if !viaStdin {
			inputPath := filepath.Join(dir, key+".in")
			if err := os.WriteFile(inputPath, []byte(item.RawContent), 0o644); err != nil {
				return nil, err
			}
			args = append(args, inputPath, "-o", outputPath)
		} else {
			args = append(args, "-o", outputPath)
		}

		log.Debug().Str("type", item.TypeRef).Str("label", item.Label).Str("output", outputPath).Msg("prepared render task")

		return &Task{
			Cmd:        cmd,
			Args:       args,
			Cwd:        dir,
			Timeout:    timeout,
			OutputPath: outputPath,
		}, nil
	}
}

// assetPathHandler returns a HandleFunc that stores a paragraph-wrapped
// image block pointing at the rendered asset on success, leaving
// resolved_ast untouched (null) on failure per §4.9's error semantics
// ("leaves resolved_ast null... no retry").
func assetPathHandler() HandleFunc {
	return func(ctx context.Context, q store.Querier, item Item, task *Task, success bool, result Result, log arbor.ILogger) error {
		if !success {
			return nil
		}

		block, ok := EncodeAssetBlock(task.OutputPath, success, item.Label)
		if !ok {
			return nil
		}
		blockJSON, err := block.EncodeJSON()
		if err != nil {
			return err
		}

		if item.FloatID != nil {
			return store.UpdateSpecFloatResolvedAST(ctx, q, *item.FloatID, blockJSON)
		}
		if item.ViewID != nil {
			return store.UpdateSpecViewResolvedAST(ctx, q, *item.ViewID, blockJSON)
		}
		return nil
	}
}

// EncodeAssetBlock builds the Document AST block a render HandleFunc
// typically stores: a paragraph wrapping an image pointing at the
// rendered asset's path, or (nil, false) when the render failed.
func EncodeAssetBlock(outputPath string, success bool, caption string) (*docast.Node, bool) {
	if !success {
		return nil, false
	}
	img := &docast.Node{Kind: docast.KindImage, Target: outputPath, Title: caption}
	return &docast.Node{Kind: docast.KindParagraph, Children: []*docast.Node{img}}, true
}
