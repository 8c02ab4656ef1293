package emitter

import (
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// ArchiveCache memoizes reference-document generation (style preset ->
// processed reference archive) in a process-wide key-value store,
// keyed by the preset's content hash (§4.12: "Reference-document
// generation ... is memoized by preset content hash in a process-wide
// key-value store"). Backed by badgerhold/badger, the same embedded
// store the External Render Orchestrator's Ledger uses, rather than the
// relational Store: this is binary blob storage, not SPEC-IR rows.
type ArchiveCache struct {
	store *badgerhold.Store
}

// archiveRecord is one cached reference archive.
type archiveRecord struct {
	Key      string `boltholdKey:"Key"`
	Bytes    []byte
	CachedAt time.Time
}

// OpenArchiveCache opens (creating if absent) a badgerhold store at path.
func OpenArchiveCache(path string) (*ArchiveCache, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference archive cache at %s: %w", path, err)
	}
	return &ArchiveCache{store: store}, nil
}

// Close releases the underlying database handle.
func (c *ArchiveCache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Get returns the cached archive bytes for presetHash, if any.
func (c *ArchiveCache) Get(presetHash string) ([]byte, bool, error) {
	if c == nil || c.store == nil {
		return nil, false, nil
	}
	var rec archiveRecord
	err := c.store.Get(presetHash, &rec)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read reference archive cache entry: %w", err)
	}
	return rec.Bytes, true, nil
}

// Put stores archive bytes under presetHash for future reuse.
func (c *ArchiveCache) Put(presetHash string, data []byte) error {
	if c == nil || c.store == nil {
		return nil
	}
	rec := archiveRecord{Key: presetHash, Bytes: data, CachedAt: time.Now()}
	return c.store.Upsert(presetHash, &rec)
}
