package kv

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncodeRecord_HeaderFieldsMatchLengths(t *testing.T) {
	t.Parallel()
	buf := encodeRecord([]byte("key"), []byte("value"))
	require.Len(t, buf, recordHeaderSize+3+5)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(buf[4:8]))
	assert.Equal(t, []byte("key"), buf[recordHeaderSize:recordHeaderSize+3])
	assert.Equal(t, []byte("value"), buf[recordHeaderSize+3:])
}

func Test_Replay_RebuildsMapFromAppendedRecords(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	l, err := openLog(path)
	require.NoError(t, err)
	l.append([]byte("a"), []byte("1"))
	l.append([]byte("b"), []byte("2"))
	l.append([]byte("a"), []byte("3"))
	require.NoError(t, l.flush())
	require.NoError(t, l.close())

	data, err := replay(path)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("3"), "b": []byte("2")}, data)
}

func Test_Replay_TombstoneRemovesKey(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	l, err := openLog(path)
	require.NoError(t, err)
	l.append([]byte("a"), []byte("1"))
	l.append([]byte("a"), nil)
	require.NoError(t, l.flush())
	require.NoError(t, l.close())

	data, err := replay(path)
	require.NoError(t, err)
	_, ok := data["a"]
	assert.False(t, ok)
}

func Test_Replay_RecoversFromTornTailByTruncating(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	l, err := openLog(path)
	require.NoError(t, err)
	l.append([]byte("a"), []byte("1"))
	require.NoError(t, l.flush())
	require.NoError(t, l.close())

	goodSize := fileSize(t, path)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 5, 0, 0, 0}) // truncated header: claims a 5-byte key but cuts short
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := replay(path)
	require.NoError(t, err, "a torn tail must be recovered, not surfaced as an error")
	assert.Equal(t, map[string][]byte{"a": []byte("1")}, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, goodSize, info.Size(), "replay must truncate the file at the last good record boundary")
}

func Test_Replay_TreatsAbsurdLengthAsCorrupt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	l, err := openLog(path)
	require.NoError(t, err)
	l.append([]byte("a"), []byte("1"))
	require.NoError(t, l.flush())
	require.NoError(t, l.close())

	goodSize := fileSize(t, path)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	// Hand-build a header claiming an absurd key length: encodeRecord itself
	// now refuses to produce this (it panics, matching original_source's
	// write_entry), so the on-disk corruption has to be simulated directly.
	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(MaxKeySize+1))
	binary.BigEndian.PutUint32(hdr[4:8], 1)
	_, err = f.Write(hdr[:])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := replay(path)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1")}, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, goodSize, info.Size())
}

func Test_Log_Poisoned_IsNilBeforeAnyFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	l, err := openLog(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.close() })

	assert.NoError(t, l.Poisoned())
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}
