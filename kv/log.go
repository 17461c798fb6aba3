package kv

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// recordHeaderSize is the fixed 8-byte big-endian key_len|value_len prefix
// described in the wire format (spec §3). value_len == 0 marks a tombstone.
const recordHeaderSize = 8

// encodeRecord serializes a single log record: key_len(u32 BE) |
// value_len(u32 BE) | key | value. Bounds are the Engine's responsibility
// (validateKey/validateValue); a caller that skips that check hits the
// panic here as a last line of defense, matching original_source's
// write_entry (spec §7 ProgrammerError).
func encodeRecord(key, value []byte) []byte {
	if len(key) > MaxKeySize {
		panic(fmt.Sprintf("bitkv: encodeRecord: key length %d exceeds %d", len(key), MaxKeySize))
	}
	if len(value) > MaxValueSize {
		panic(fmt.Sprintf("bitkv: encodeRecord: value length %d exceeds %d", len(value), MaxValueSize))
	}
	buf := make([]byte, recordHeaderSize+len(key)+len(value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(value)))
	copy(buf[recordHeaderSize:], key)
	copy(buf[recordHeaderSize+len(key):], value)
	return buf
}

// logMsgKind enumerates the messages a Log's writer goroutine accepts,
// mirroring the Write|Flush|Shutdown protocol of the teacher lineage's
// LogWriter (see original_source/src/log.rs), translated from an mpsc
// channel + dedicated OS thread into a Go channel + goroutine.
type logMsgKind int

const (
	msgWrite logMsgKind = iota
	msgFlush
	msgShutdown
)

type logMsg struct {
	kind logMsgKind
	data []byte
	ack  chan error
}

// Log owns the on-disk append-only file. A single background goroutine
// holds exclusive write access to the file handle and drains a FIFO queue
// of messages, so producers never interleave bytes (spec §4.1 "Writer-
// thread" discipline).
type Log struct {
	path   string
	file   *os.File
	msgs   chan logMsg
	done   chan struct{}
	poison atomic.Value // stores error once the writer goroutine fails
}

// openLog ensures the parent directory exists, opens (creating if absent)
// the log file without truncating it, and starts the writer goroutine.
// Replay opens its own handle on the same path and must not run while a
// Log on that path is open: OpenWithConfig (via replayOrCreate) closes the
// Log it used to create the file, replays, and only then opens the Log it
// keeps, so replay and the writer goroutine never touch the file at once.
func openLog(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating db directory: %v", ErrIO, err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening log file: %v", ErrIO, err)
	}

	l := &Log{
		path: path,
		file: f,
		msgs: make(chan logMsg, 64),
		done: make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// run is the dedicated writer goroutine. It owns l.file exclusively for
// the lifetime of the Log and processes messages strictly in enqueue
// order, so appends are always sequential regardless of how many producer
// goroutines call Log.append concurrently.
func (l *Log) run() {
	defer close(l.done)
	for msg := range l.msgs {
		switch msg.kind {
		case msgWrite:
			_, err := l.file.Write(msg.data)
			if err != nil {
				l.setPoison(fmt.Errorf("%w: writing log record: %v", ErrIO, err))
			}
			if msg.ack != nil {
				msg.ack <- err
			}
		case msgFlush:
			err := l.file.Sync()
			if err != nil {
				l.setPoison(fmt.Errorf("%w: syncing log file: %v", ErrIO, err))
			}
			if msg.ack != nil {
				msg.ack <- err
			}
		case msgShutdown:
			_ = l.file.Sync()
			if msg.ack != nil {
				msg.ack <- nil
			}
			return
		}
	}
}

func (l *Log) setPoison(err error) {
	l.poison.CompareAndSwap(nil, err)
}

// Poisoned reports the first I/O error the writer goroutine observed, if
// any. Every Engine operation that writes or syncs the log (Set, Del,
// Flush, Compact) checks this before touching the index, so a wedged log
// fails fast and deterministically instead of
// silently dropping writes (spec §9 open question, resolved as
// escalate-and-poison).
func (l *Log) Poisoned() error {
	if v := l.poison.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// append enqueues a pre-encoded record for the writer goroutine. It
// returns once the record has been queued, not once it is durable: spec §4.1
// only promises a subsequent append is visible to replay after flush
// returns. Ordering across callers is guaranteed by the channel's FIFO
// semantics.
func (l *Log) append(key, value []byte) {
	l.msgs <- logMsg{kind: msgWrite, data: encodeRecord(key, value)}
}

// flush drains the queue up to this call and fsyncs the file, blocking
// until durable.
func (l *Log) flush() error {
	ack := make(chan error, 1)
	l.msgs <- logMsg{kind: msgFlush, ack: ack}
	return <-ack
}

// close flushes, stops the writer goroutine, and closes the file handle.
func (l *Log) close() error {
	ack := make(chan error, 1)
	l.msgs <- logMsg{kind: msgShutdown, ack: ack}
	<-ack
	close(l.msgs)
	<-l.done
	return l.file.Close()
}

// replay decodes every record in path from offset 0, applying sets and
// tombstones in order into the returned map. A torn tail — a short header,
// a short body, or a length field exceeding MaxKeySize/MaxValueSize — is
// recovered per spec §7 policy (b): the file is truncated at the last
// fully-decoded record boundary and replay returns normally with whatever
// was decoded up to that point.
func replay(path string) (map[string][]byte, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening log for replay: %v", ErrIO, err)
	}
	defer f.Close()

	data := make(map[string][]byte)
	var hdr [recordHeaderSize]byte
	var offset int64

	for {
		_, err := io.ReadFull(f, hdr[:])
		if err != nil {
			if err == io.EOF {
				return data, nil
			}
			// short/torn header: recover by truncating at the last good offset.
			return data, truncateTornTail(f, offset)
		}

		keyLen := binary.BigEndian.Uint32(hdr[0:4])
		valLen := binary.BigEndian.Uint32(hdr[4:8])
		if keyLen > MaxKeySize || valLen > MaxValueSize {
			return data, truncateTornTail(f, offset)
		}

		body := make([]byte, int(keyLen)+int(valLen))
		if _, err := io.ReadFull(f, body); err != nil {
			return data, truncateTornTail(f, offset)
		}

		key := string(body[:keyLen])
		if valLen == 0 {
			delete(data, key)
		} else {
			val := make([]byte, valLen)
			copy(val, body[keyLen:])
			data[key] = val
		}

		offset += recordHeaderSize + int64(keyLen) + int64(valLen)
	}
}

// truncateTornTail truncates f at lastGood and swallows the decode error:
// a torn tail is an expected artifact of a crash mid-append, not a reason
// to refuse to open (spec §7).
func truncateTornTail(f *os.File, lastGood int64) error {
	if err := f.Truncate(lastGood); err != nil {
		return fmt.Errorf("%w: truncating torn tail: %v", ErrIO, err)
	}
	return nil
}
