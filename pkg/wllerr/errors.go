// Package wllerr defines the error taxonomy shared across the worldline
// ledger core: integrity failures (fatal, never silently ignored),
// validation failures (surfaced to the caller), policy decisions (not a
// crash), not-found results, and I/O/serialization errors.
package wllerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that need to branch on category
// rather than on a specific sentinel.
type Kind string

const (
	KindIntegrity  Kind = "integrity"
	KindValidation Kind = "validation"
	KindPolicy     Kind = "policy"
	KindNotFound   Kind = "not_found"
	KindIO         Kind = "io"
	KindShutdown   Kind = "shutdown"
)

// Error is the canonical error shape returned by wll components. It wraps
// an underlying cause (if any) and carries a stable Code for programmatic
// matching, independent of the human-readable message.
type Error struct {
	Kind  Kind
	Code  string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target has the same Code, so sentinel errors built
// with New can be compared with errors.Is even across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New constructs a sentinel Error with no cause; use Wrap to attach one.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Wrap attaches cause to a copy of sentinel, preserving Kind/Code/Msg.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Msg: sentinel.Msg, Cause: cause}
}

// Integrity errors — fatal, must abort the current operation.
var (
	ErrHashCollision    = New(KindIntegrity, "WLL/INTEGRITY/HASH_COLLISION", "receipt hash collides across streams")
	ErrChainBroken      = New(KindIntegrity, "WLL/INTEGRITY/CHAIN_BROKEN", "prev_hash does not match predecessor")
	ErrHashMismatch     = New(KindIntegrity, "WLL/INTEGRITY/HASH_MISMATCH", "recomputed receipt hash differs from stored hash")
	ErrSeqGap           = New(KindIntegrity, "WLL/INTEGRITY/SEQ_GAP", "sequence is not contiguous")
	ErrDanglingParent   = New(KindIntegrity, "WLL/INTEGRITY/DANGLING_PARENT", "dag parent does not exist")
	ErrCycleDetected    = New(KindIntegrity, "WLL/INTEGRITY/CYCLE_DETECTED", "dag cycle detected")
	ErrSnapshotUnanchored = New(KindIntegrity, "WLL/INTEGRITY/SNAPSHOT_UNANCHORED", "snapshot anchored_receipt_hash not found in stream")
	ErrWALFrameCRC      = New(KindIntegrity, "WLL/INTEGRITY/WAL_FRAME_CRC", "committed wal frame failed crc check")
	ErrOutcomeUnattributed = New(KindIntegrity, "WLL/INTEGRITY/OUTCOME_UNATTRIBUTED", "outcome references no earlier commitment in stream")
)

// Validation errors — surfaced to the caller.
var (
	ErrInvalidRange   = New(KindValidation, "WLL/VALIDATION/INVALID_RANGE", "read_range bounds are invalid")
	ErrInvalidPath    = New(KindValidation, "WLL/VALIDATION/INVALID_PATH", "path is malformed or empty")
	ErrEmptyIntent    = New(KindValidation, "WLL/VALIDATION/EMPTY_INTENT", "proposal intent must be non-blank")
	ErrEmptyTargets   = New(KindValidation, "WLL/VALIDATION/EMPTY_TARGETS", "proposal targets must be non-empty")
	ErrDuplicateNode  = New(KindValidation, "WLL/VALIDATION/DUPLICATE_NODE", "dag node already exists")
	ErrZeroObjectID   = New(KindValidation, "WLL/VALIDATION/ZERO_OBJECT_ID", "zero object id is not permitted")
	ErrUnreachable    = New(KindValidation, "WLL/VALIDATION/UNREACHABLE", "no path exists between the given nodes")
	ErrWorldlineMismatch = New(KindValidation, "WLL/VALIDATION/WORLDLINE_MISMATCH", "receipt does not belong to the requested worldline")
)

// Not-found sentinels — these are also returned as (nil, err) rather than
// panics; callers that prefer an (value, bool) style can use errors.Is.
var (
	ErrObjectNotFound  = New(KindNotFound, "WLL/NOTFOUND/OBJECT", "object not found")
	ErrReceiptNotFound = New(KindNotFound, "WLL/NOTFOUND/RECEIPT", "receipt not found")
	ErrWorldlineEmpty  = New(KindNotFound, "WLL/NOTFOUND/WORLDLINE_EMPTY", "worldline stream has no receipts")
	ErrNodeNotFound    = New(KindNotFound, "WLL/NOTFOUND/DAG_NODE", "dag node not found")
)

// I/O & serialization — propagated with context, never swallowed.
var (
	ErrCorruptPack       = New(KindIO, "WLL/IO/CORRUPT_PACK", "pack file failed structural validation")
	ErrCrcMismatch       = New(KindIO, "WLL/IO/CRC_MISMATCH", "compressed payload failed crc check")
	ErrTrailerMismatch   = New(KindIO, "WLL/IO/TRAILER_MISMATCH", "pack trailer hash does not match contents")
	ErrDecompressedSize  = New(KindIO, "WLL/IO/DECOMPRESSED_SIZE", "decompressed size does not match header")
	ErrMagicMismatch     = New(KindIO, "WLL/IO/MAGIC_MISMATCH", "file magic does not match expected format")
	ErrVersionMismatch   = New(KindIO, "WLL/IO/VERSION_MISMATCH", "file version is unsupported")
	ErrVarintOverflow    = New(KindIO, "WLL/IO/VARINT_OVERFLOW", "varint exceeds 64 bits")
	ErrDeltaUnsupported  = New(KindIO, "WLL/IO/DELTA_UNSUPPORTED", "delta pack entries are not resolved by this reader")
	ErrSerialization     = New(KindIO, "WLL/IO/SERIALIZATION", "serialization failed")
)

// Shutdown / channel-closed — observable state, not a bug.
var (
	ErrFabricShutdown    = New(KindShutdown, "WLL/SHUTDOWN/FABRIC", "event fabric is shut down")
	ErrSubscriberClosed  = New(KindShutdown, "WLL/SHUTDOWN/SUBSCRIBER_CLOSED", "subscriber channel is closed")
)
