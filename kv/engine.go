package kv

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
)

// engineState tracks the three lifecycle stages of spec §4.3: opening
// (replay + initial compaction), ready (serving operations), closing
// (draining). Public operations are only valid in ready.
type engineState int32

const (
	stateOpening engineState = iota
	stateReady
	stateClosing
)

// Pair is a materialized (key, value) result from Scan.
type Pair struct {
	Key   []byte
	Value []byte
}

// Engine is the façade spec §4.3 describes: it validates inputs,
// coordinates Log and Index under the concurrency discipline of §5, and
// drives compaction. An *Engine is the shareable handle spec §5 describes:
// pass the same pointer to every goroutine that needs the database, never
// construct a second one over the same path (Open enforces this via the
// directory lock in lock.go).
type Engine struct {
	path string

	mu  sync.RWMutex // exclusive for set/del/compaction; shared for flush
	log *Log
	idx *index

	state   atomic.Int32
	lock    *dbLock
	metrics *Metrics
}

// Open opens path with default configuration: creates the parent
// directory and file if missing, replays the log to rebuild the index,
// and runs an initial compaction so the on-disk file holds one record per
// live key before serving any operation.
func Open(path string) (*Engine, error) {
	return OpenWithConfig(path, DefaultConfig(), nil)
}

// OpenWithConfig is Open with an explicit Config and an optional Metrics
// set (nil disables instrumentation).
func OpenWithConfig(path string, cfg Config, metrics *Metrics) (*Engine, error) {
	lock, err := acquireDBLock(path)
	if err != nil {
		return nil, err
	}

	data, err := replayOrCreate(path)
	if err != nil {
		lock.release()
		return nil, err
	}

	log, err := openLog(path)
	if err != nil {
		lock.release()
		return nil, err
	}

	idx := newIndex()
	idx.load(data)

	e := &Engine{
		path:    path,
		log:     log,
		idx:     idx,
		lock:    lock,
		metrics: metrics,
	}
	e.state.Store(int32(stateOpening))

	if cfg.CompactOnOpen {
		if err := e.compactLocked(); err != nil {
			// compactLocked always closes the prior log handle as its
			// first step, succeeding or not, so there is nothing left
			// to flush here — just release the directory lock.
			lock.release()
			return nil, err
		}
	}

	e.state.Store(int32(stateReady))
	return e, nil
}

// replayOrCreate ensures path's parent directory and file exist (so
// replay never fails merely because the database is new), then replays it.
func replayOrCreate(path string) (map[string][]byte, error) {
	// openLog creates the directory/file as a side effect, but replay
	// needs the file to exist first; reuse its creation logic by opening
	// and immediately closing, then replaying the stable file.
	l, err := openLog(path)
	if err != nil {
		return nil, err
	}
	if err := l.close(); err != nil {
		return nil, err
	}
	return replay(path)
}

func (e *Engine) checkReady() error {
	if engineState(e.state.Load()) != stateReady {
		return ErrClosed
	}
	if err := e.log.Poisoned(); err != nil {
		return err
	}
	return nil
}

// checkReadable is used by operations that never touch the log (Get,
// Scan): they only require the engine to be in ready state, and are not
// blocked by a poisoned writer goroutine since they read the index alone.
func (e *Engine) checkReadable() error {
	if engineState(e.state.Load()) != stateReady {
		return ErrClosed
	}
	return nil
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidInput)
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w: key length %d exceeds %d", ErrInvalidInput, len(key), MaxKeySize)
	}
	return nil
}

func validateValue(value []byte) error {
	if len(value) > MaxValueSize {
		return fmt.Errorf("%w: value length %d exceeds %d", ErrInvalidInput, len(value), MaxValueSize)
	}
	return nil
}

// Get returns a copy of the current value for key, or ok == false if
// absent. Get never touches the log: it is served entirely from the
// in-memory index, so it succeeds even if the log's writer goroutine has
// been poisoned by a prior I/O failure.
func (e *Engine) Get(key []byte) (value []byte, ok bool, err error) {
	if err := e.checkReadable(); err != nil {
		return nil, false, err
	}
	v, ok := e.idx.get(string(key))
	if e.metrics != nil {
		e.metrics.gets.Inc()
	}
	return v, ok, nil
}

// Set validates key/value bounds, delegates to Del when value is empty
// (spec §4.3's "set-with-empty-value aliases del"), no-ops when the
// current value already equals value (the idempotence rule of P5), and
// otherwise appends a record and updates the index.
func (e *Engine) Set(key, value []byte) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.sets.Inc()
	}
	if len(value) == 0 {
		return e.Del(key)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ks := string(key)
	if current, ok := e.idx.get(ks); ok && bytes.Equal(current, value) {
		return nil
	}

	e.log.append(key, value)
	stored := make([]byte, len(value))
	copy(stored, value)
	e.idx.put(ks, stored)
	return nil
}

// Del removes key, appending a tombstone record. It is a no-op — no log
// write, no error — if key is already absent.
func (e *Engine) Del(key []byte) error {
	if err := e.checkReady(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.dels.Inc()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ks := string(key)
	if _, ok := e.idx.get(ks); !ok {
		return nil
	}

	e.log.append(key, nil)
	e.idx.remove(ks)

	if e.metrics != nil {
		e.metrics.tombstones.Inc()
	}
	return nil
}

// Scan returns every live (key, value) with lo <= key < hi, in ascending
// byte order, as a single materialized snapshot (spec §4.3, §5).
func (e *Engine) Scan(lo, hi []byte) ([]Pair, error) {
	if err := e.checkReadable(); err != nil {
		return nil, err
	}
	if bytes.Compare(lo, hi) > 0 {
		return nil, fmt.Errorf("%w: scan range lo > hi", ErrInvalidInput)
	}

	matched := e.idx.rangeScan(lo, hi)
	out := make([]Pair, len(matched))
	for i, p := range matched {
		out[i] = Pair{Key: p.Key, Value: p.Value}
	}

	if e.metrics != nil {
		e.metrics.scans.Inc()
	}
	return out, nil
}

// Flush drains any buffered log writes down to the OS and fsyncs, without
// closing the handle.
func (e *Engine) Flush() error {
	if err := e.checkReady(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.log.flush()
}

// compactLocked runs compaction assuming the caller already holds
// exclusive access (either because the engine hasn't reached stateReady
// yet, during Open, or because Compact took e.mu.Lock()).
func (e *Engine) compactLocked() error {
	live := e.idx.snapshot()

	if err := e.log.close(); err != nil {
		return err
	}

	if err := compact(e.path, live, e.metrics); err != nil {
		return err
	}

	newLog, err := openLog(e.path)
	if err != nil {
		return err
	}
	e.log = newLog
	return nil
}

// Compact rewrites the log so it holds exactly one record per live key and
// no tombstones. It is serialized against every other writer by holding
// e.mu for the whole operation (spec §5's "simplest correct design").
func (e *Engine) Compact() error {
	if err := e.checkReady(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compactLocked()
}

// Close flushes buffered writes, stops the log's writer goroutine, and
// releases the directory ownership lock. No compaction is forced on close
// (spec §3's lifecycle section).
func (e *Engine) Close() error {
	if !e.state.CompareAndSwap(int32(stateReady), int32(stateClosing)) {
		return nil // already closing or closed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.log.close()
	if lockErr := e.lock.release(); err == nil {
		err = lockErr
	}
	return err
}
