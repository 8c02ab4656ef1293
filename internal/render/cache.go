package render

import (
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// Ledger records every render attempt the orchestrator makes, keyed by
// the task's output path (which already embeds the content hash, §4.9
// step 3). The filesystem `output_path` check remains the authoritative
// cache-hit signal; the ledger exists so a failed render is visible
// across invocations without re-reading every document's diagnostics
// output, and so `clean-cache` (cmd/speccompiler) has something concrete
// to enumerate and purge.
type Ledger struct {
	store *badgerhold.Store
}

// LedgerRecord is one row of the ledger.
type LedgerRecord struct {
	Key         string `boltholdKey:"Key"`
	TypeRef     string
	Success     bool
	ExitCode    int
	CompletedAt time.Time
}

// OpenLedger opens (creating if absent) a badgerhold store at path.
func OpenLedger(path string) (*Ledger, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open render ledger at %s: %w", path, err)
	}
	return &Ledger{store: store}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Close()
}

// Record upserts the outcome of one task, keyed by its output path.
func (l *Ledger) Record(outputPath, typeRef string, success bool, exitCode int) error {
	if l == nil || l.store == nil || outputPath == "" {
		return nil
	}
	rec := LedgerRecord{
		Key:         outputPath,
		TypeRef:     typeRef,
		Success:     success,
		ExitCode:    exitCode,
		CompletedAt: time.Now(),
	}
	return l.store.Upsert(outputPath, &rec)
}

// Lookup returns the last recorded outcome for outputPath, if any.
func (l *Ledger) Lookup(outputPath string) (LedgerRecord, bool, error) {
	if l == nil || l.store == nil {
		return LedgerRecord{}, false, nil
	}
	var rec LedgerRecord
	err := l.store.Get(outputPath, &rec)
	if err == badgerhold.ErrNotFound {
		return LedgerRecord{}, false, nil
	}
	if err != nil {
		return LedgerRecord{}, false, fmt.Errorf("failed to read render ledger entry: %w", err)
	}
	return rec, true, nil
}
