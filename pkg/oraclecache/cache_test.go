package oraclecache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "oracle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheGetMissing(t *testing.T) {
	c := openTestCache(t)

	_, found, err := c.Get("password1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCachePutThenGet(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Put("password1", 12345))

	count, found, err := c.Get("password1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(12345), count)
}

func TestCacheLenAndForEach(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Put("alpha", 1))
	require.NoError(t, c.Put("beta", 2))

	n, err := c.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	seen := map[string]int64{}
	require.NoError(t, c.ForEach(func(root string, count int64) error {
		seen[root] = count
		return nil
	}))
	require.Equal(t, map[string]int64{"alpha": 1, "beta": 2}, seen)
}

func TestCachePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.db")

	c1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c1.Put("root9", 99))
	require.NoError(t, c1.Close())

	c2, err := Open(path)
	require.NoError(t, err)
	defer c2.Close()

	count, found, err := c2.Get("root9")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(99), count)
}
