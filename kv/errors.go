package kv

import "errors"

// Sentinel errors returned across the public surface. Callers match on
// these with errors.Is; the wrapped detail (from fmt.Errorf("%w: ...")) is
// for humans, not for control flow.
var (
	// ErrInvalidInput is returned when a key or value violates the size
	// bounds in §3 of the format, or when a scan range is malformed.
	ErrInvalidInput = errors.New("bitkv: invalid input")

	// ErrIO wraps an underlying filesystem failure: open, read, write,
	// rename, or sync.
	ErrIO = errors.New("bitkv: io error")

	// ErrCorruptLog is reserved for a CorruptLog policy of "abort open".
	// The engine in this package recovers from torn tails instead of
	// returning this (see replay in log.go), but it stays part of the public
	// taxonomy for callers that want to match on it.
	ErrCorruptLog = errors.New("bitkv: corrupt log")

	// ErrClosed is returned by any public operation other than Close
	// called after Close has been invoked, or while the engine is still
	// opening. A repeated Close returns nil.
	ErrClosed = errors.New("bitkv: engine closed")

	// ErrAlreadyOpen is returned when a second Open targets a path this
	// process already owns (see lock.go).
	ErrAlreadyOpen = errors.New("bitkv: database already open by this process")
)

const (
	// MaxKeySize is the hard limit on key length in bytes (spec §3 I4).
	MaxKeySize = 1024
	// MaxValueSize is the hard limit on value length in bytes (spec §3 I4).
	MaxValueSize = 256 * 1024
)
