package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorykeep/docsync/pkg/types"
)

var (
	_ types.Cache = (*MemoryCache)(nil)
	_ types.Cache = (*BoltCache)(nil)
)

func openTestBolt(t *testing.T) (*BoltDB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docsync.db")
	db, err := OpenBolt(path, WithNoSync(true))
	require.NoError(t, err)
	return db, path
}

func TestBoltCache_GetSetHasDelete(t *testing.T) {
	db, _ := openTestBolt(t)
	defer db.Close()

	c, err := db.Namespace(BucketCache)
	require.NoError(t, err)

	_, ok := c.Get("theme:abc:global")
	assert.False(t, ok)

	require.NoError(t, c.Set("theme:abc:global", []byte(`{"themeId":"ocean"}`)))
	assert.True(t, c.Has("theme:abc:global"))

	got, ok := c.Get("theme:abc:global")
	require.True(t, ok)
	assert.JSONEq(t, `{"themeId":"ocean"}`, string(got))

	require.NoError(t, c.Delete("theme:abc:global"))
	assert.False(t, c.Has("theme:abc:global"))

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Writes)
	assert.Equal(t, 0, stats.Entries)
}

func TestBoltCache_NamespacesAreIsolated(t *testing.T) {
	db, _ := openTestBolt(t)
	defer db.Close()

	snapshots, err := db.Namespace(BucketCache)
	require.NoError(t, err)
	fallback, err := db.Namespace(BucketFallback)
	require.NoError(t, err)

	require.NoError(t, snapshots.Set("k", []byte("snapshot")))
	assert.False(t, fallback.Has("k"))

	require.NoError(t, fallback.Set("k", []byte("fallback")))
	got, _ := snapshots.Get("k")
	assert.Equal(t, "snapshot", string(got))
}

func TestBoltCache_SurvivesReopen(t *testing.T) {
	db, path := openTestBolt(t)
	c, err := db.Namespace(BucketCache)
	require.NoError(t, err)
	require.NoError(t, c.Set("custom_names:abc:_all", []byte(`{"k1":"x"}`)))
	require.NoError(t, db.Close())

	reopened, err := OpenBolt(path, WithNoSync(true))
	require.NoError(t, err)
	defer reopened.Close()

	c2, err := reopened.Namespace(BucketCache)
	require.NoError(t, err)
	got, ok := c2.Get("custom_names:abc:_all")
	require.True(t, ok)
	assert.JSONEq(t, `{"k1":"x"}`, string(got))
}

func TestOpenBolt_BadPath(t *testing.T) {
	_, err := OpenBolt(filepath.Join(t.TempDir(), "missing-dir", "sub", "db"))
	assert.Error(t, err)
}

func TestBoltDB_CloseNil(t *testing.T) {
	var db BoltDB
	assert.NoError(t, db.Close())
}
