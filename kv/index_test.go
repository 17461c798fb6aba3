package kv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Index_Get_ReturnsCopyNotAlias(t *testing.T) {
	t.Parallel()
	ix := newIndex()
	ix.put("k", []byte("v1"))

	got, ok := ix.get("k")
	require.True(t, ok)
	got[0] = 'X'

	again, _ := ix.get("k")
	assert.Equal(t, []byte("v1"), again, "mutating a Get result must not affect stored state")
}

func Test_Index_Remove_IsNoOpWhenAbsent(t *testing.T) {
	t.Parallel()
	ix := newIndex()
	ix.remove("missing") // must not panic

	_, ok := ix.get("missing")
	assert.False(t, ok)
}

func Test_Index_RangeScan_OrdersAscendingRegardlessOfInsertionOrder(t *testing.T) {
	t.Parallel()
	ix := newIndex()
	for _, k := range []string{"z", "a", "m"} {
		ix.put(k, []byte(k))
	}

	got := ix.rangeScan([]byte("a"), []byte("z\x01"))
	want := []kvPair{
		{Key: []byte("a"), Value: []byte("a")},
		{Key: []byte("m"), Value: []byte("m")},
		{Key: []byte("z"), Value: []byte("z")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("range scan mismatch (-want +got):\n%s", diff)
	}
}

func Test_Index_RangeScan_HalfOpenExcludesUpperBound(t *testing.T) {
	t.Parallel()
	ix := newIndex()
	ix.put("a", []byte("1"))
	ix.put("z", []byte("2"))

	got := ix.rangeScan([]byte("a"), []byte("z"))
	require.Len(t, got, 1)
	assert.Equal(t, []byte("a"), got[0].Key)
}

func Test_Index_Snapshot_IsIndependentOfLiveMap(t *testing.T) {
	t.Parallel()
	ix := newIndex()
	ix.put("k", []byte("v"))

	snap := ix.snapshot()
	ix.put("k", []byte("changed"))

	assert.Equal(t, []byte("v"), snap["k"], "snapshot must not observe later mutations")
}
