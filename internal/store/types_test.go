package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "specir.db")
	s, err := Open(path, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadTypes_PersistsDefaultModel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m, err := typeregistry.Load("")
	require.NoError(t, err)

	require.NoError(t, s.LoadTypes(ctx, m))

	var count int
	require.NoError(t, s.QueryOne(ctx, func(row *sql.Row) error { return row.Scan(&count) },
		"SELECT COUNT(*) FROM object_types"))
	assert.Greater(t, count, 0)

	var floatCount int
	require.NoError(t, s.QueryOne(ctx, func(row *sql.Row) error { return row.Scan(&floatCount) },
		"SELECT COUNT(*) FROM float_types"))
	assert.Greater(t, floatCount, 0)

	var viewCount int
	require.NoError(t, s.QueryOne(ctx, func(row *sql.Row) error { return row.Scan(&viewCount) },
		"SELECT COUNT(*) FROM view_types"))
	assert.Greater(t, viewCount, 0)
}

func TestLoadTypes_ReloadIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m, err := typeregistry.Load("")
	require.NoError(t, err)

	require.NoError(t, s.LoadTypes(ctx, m))
	require.NoError(t, s.LoadTypes(ctx, m))

	var count int
	require.NoError(t, s.QueryOne(ctx, func(row *sql.Row) error { return row.Scan(&count) },
		"SELECT COUNT(*) FROM object_types"))
	assert.Equal(t, len(m.Objects), count)
}
