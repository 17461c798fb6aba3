package kv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// compact rewrites the log so it holds exactly one record per live key and
// no tombstones (spec §4.3). It is serialized against all other writers by
// the caller holding the Engine's write lock (Engine.mu) for the duration
// (the "simplest correct design" spec §5 allows); index readers are not
// blocked, since compaction leaves the index unchanged.
//
// Steps, matching spec §4.3 and the filesystem layout of §6:
//  1. snapshot the live index
//  2. write every (key, value) as a record into a sibling "<path>.new"
//     file, using atomic.WriteFile so a crash mid-write never leaves a
//     half-written .new file at a path any future open would see
//  3. atomically rename .new over the primary log path
//  4. fsync the parent directory so the rename itself survives a crash
//  5. caller replaces its Log handle to point at the now-compacted file
func compact(dbPath string, live map[string][]byte, metrics *Metrics) error {
	start := time.Now()

	var buf bytes.Buffer
	for key, value := range live {
		buf.Write(encodeRecord([]byte(key), value))
	}

	newPath := dbPath + ".new"
	if err := atomic.WriteFile(newPath, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("%w: writing compacted log: %v", ErrIO, err)
	}

	if err := os.Rename(newPath, dbPath); err != nil {
		_ = os.Remove(newPath)
		return fmt.Errorf("%w: renaming compacted log into place: %v", ErrIO, err)
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if df, err := os.Open(dir); err == nil {
			_ = df.Sync()
			_ = df.Close()
		}
	}

	if metrics != nil {
		metrics.compactions.Inc()
		metrics.compactTime.Observe(time.Since(start).Seconds())
		if info, err := os.Stat(dbPath); err == nil {
			metrics.logBytes.Set(float64(info.Size()))
		}
	}
	return nil
}
