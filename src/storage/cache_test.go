package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *int) LoadFunc {
	return func(key CacheKey) (dataframe.DataFrame, error) {
		*calls++
		return dataframe.New(series.New([]int{key.RowLimit}, series.Int, "limit")), nil
	}
}

func TestTableCacheHitAndMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flights.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0644))

	cache := NewTableCache(nil)
	calls := 0
	load := countingLoader(&calls)

	df, err := cache.Get(CacheKey{Path: path, RowLimit: 10}, load)
	require.NoError(t, err)
	assert.Equal(t, 1, df.Nrow())

	_, err = cache.Get(CacheKey{Path: path, RowLimit: 10}, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.Len())
}

func TestTableCacheRowLimitEvictsSamePath(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte("x\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("x\n"), 0644))

	cache := NewTableCache(nil)
	calls := 0
	load := countingLoader(&calls)

	_, err := cache.Get(CacheKey{Path: a, RowLimit: 10}, load)
	require.NoError(t, err)
	_, err = cache.Get(CacheKey{Path: b, RowLimit: 10}, load)
	require.NoError(t, err)
	_, err = cache.Get(CacheKey{Path: a, RowLimit: 20}, load)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, cache.Len())

	// 切回旧上限需要重新加载
	_, err = cache.Get(CacheKey{Path: a, RowLimit: 10}, load)
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestTableCacheFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flights.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0644))

	cache := NewTableCache(nil)
	calls := 0
	load := countingLoader(&calls)
	key := CacheKey{Path: path}

	_, err := cache.Get(key, load)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("a\n1\n2\n"), 0644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err = cache.Get(key, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTableCacheInvalidateAndPurge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flights.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0644))

	cache := NewTableCache(nil)
	calls := 0
	load := countingLoader(&calls)

	_, err := cache.Get(CacheKey{Path: path}, load)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Invalidate(path))
	assert.Zero(t, cache.Invalidate(path))

	_, err = cache.Get(CacheKey{Path: path}, load)
	require.NoError(t, err)
	cache.Purge()
	assert.Zero(t, cache.Len())
	assert.Equal(t, 2, calls)
}

func TestTableCacheMissingFile(t *testing.T) {
	cache := NewTableCache(nil)
	calls := 0
	_, err := cache.Get(CacheKey{Path: filepath.Join(t.TempDir(), "none.csv")}, countingLoader(&calls))
	assert.Error(t, err)
	assert.Zero(t, calls)
}
