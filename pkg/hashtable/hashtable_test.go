package hashtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// strKey is a minimal Key implementation for testing, independent of
// pkg/value's interning scheme.
type strKey string

func (s strKey) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func (s strKey) Equal(other Key) bool {
	o, ok := other.(strKey)
	return ok && s == o
}

func TestSetGetBasic(t *testing.T) {
	tbl := New[int]()
	isNew := tbl.Set(strKey("a"), 1)
	assert.True(t, isNew)
	v, ok := tbl.Get(strKey("a"))
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestSetOverwriteNotNew(t *testing.T) {
	tbl := New[int]()
	tbl.Set(strKey("a"), 1)
	isNew := tbl.Set(strKey("a"), 2)
	assert.False(t, isNew)
	v, _ := tbl.Get(strKey("a"))
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, tbl.Len())
}

func TestGetMissing(t *testing.T) {
	tbl := New[int]()
	_, ok := tbl.Get(strKey("missing"))
	assert.False(t, ok)
}

func TestDeleteLeavesTombstoneButFindsSurvivors(t *testing.T) {
	tbl := New[int]()
	// force a handful of entries into the same small table so some
	// collide and rely on tombstone skip-over.
	for i := 0; i < 6; i++ {
		tbl.Set(strKey(fmt.Sprintf("k%d", i)), i)
	}
	removed := tbl.Delete(strKey("k2"))
	assert.True(t, removed)
	_, ok := tbl.Get(strKey("k2"))
	assert.False(t, ok)
	for i := 0; i < 6; i++ {
		if i == 2 {
			continue
		}
		v, ok := tbl.Get(strKey(fmt.Sprintf("k%d", i)))
		require.True(t, ok, "k%d should still be found after deleting k2", i)
		assert.Equal(t, i, v)
	}
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	tbl := New[int]()
	assert.False(t, tbl.Delete(strKey("nope")))
}

func TestGrowthPreservesAllEntries(t *testing.T) {
	tbl := New[int]()
	const n = 200
	for i := 0; i < n; i++ {
		tbl.Set(strKey(fmt.Sprintf("key-%d", i)), i)
	}
	assert.Equal(t, n, tbl.Len())
	for i := 0; i < n; i++ {
		v, ok := tbl.Get(strKey(fmt.Sprintf("key-%d", i)))
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestReinsertAfterDeleteReusesTombstone(t *testing.T) {
	tbl := New[int]()
	tbl.Set(strKey("a"), 1)
	tbl.Delete(strKey("a"))
	isNew := tbl.Set(strKey("a"), 99)
	assert.True(t, isNew)
	v, ok := tbl.Get(strKey("a"))
	require.True(t, ok)
	assert.Equal(t, 99, v)
}

func TestEachVisitsOnlyOccupied(t *testing.T) {
	tbl := New[int]()
	tbl.Set(strKey("a"), 1)
	tbl.Set(strKey("b"), 2)
	tbl.Delete(strKey("a"))

	seen := map[string]int{}
	tbl.Each(func(k Key, v int) bool {
		seen[string(k.(strKey))] = v
		return true
	})
	assert.Equal(t, map[string]int{"b": 2}, seen)
}

func TestEachEarlyStop(t *testing.T) {
	tbl := New[int]()
	for i := 0; i < 5; i++ {
		tbl.Set(strKey(fmt.Sprintf("k%d", i)), i)
	}
	count := 0
	tbl.Each(func(_ Key, _ int) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestClear(t *testing.T) {
	tbl := New[int]()
	tbl.Set(strKey("a"), 1)
	tbl.Clear()
	assert.Equal(t, 0, tbl.Len())
	_, ok := tbl.Get(strKey("a"))
	assert.False(t, ok)
}
