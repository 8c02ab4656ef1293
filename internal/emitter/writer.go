package emitter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

const defaultWriterTimeout = 30 * time.Second

// WriterFunc invokes the external document-AST engine's writer
// subprocess, feeding it input on stdin and returning its stdout (§4.12
// "Emitter ... invokes the external writer subprocess per format").
// Tests substitute a stub; production wiring uses Command.
type WriterFunc func(ctx context.Context, args []string, stdin []byte, cwd string) ([]byte, error)

// Command returns a WriterFunc that shells out to name (default
// "pandoc", matching internal/docast's Pandoc-shaped node kinds: the
// writer subprocess consumes the same JSON shape docast already
// produces via EncodeJSON, `-f json` on the writer's command line).
func Command(name string, timeout time.Duration) WriterFunc {
	if name == "" {
		name = "pandoc"
	}
	if timeout <= 0 {
		timeout = defaultWriterTimeout
	}
	return func(ctx context.Context, args []string, stdin []byte, cwd string) ([]byte, error) {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, name, args...)
		cmd.Dir = cwd
		cmd.Stdin = bytes.NewReader(stdin)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("writer %s timed out after %s", name, timeout)
			}
			return nil, fmt.Errorf("writer %s failed: %w: %s", name, err, stderr.String())
		}
		return stdout.Bytes(), nil
	}
}
