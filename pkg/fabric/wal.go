package fabric

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/worldline-systems/wll/pkg/observability"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

// SyncMode controls how aggressively the WAL flushes to stable storage.
type SyncMode int

const (
	// EveryWrite fsyncs after every append.
	EveryWrite SyncMode = iota
	// Periodic fsyncs at most once per interval (see the Periodic case in
	// WAL.Append).
	Periodic
	// OsDefault relies on the OS page cache and never fsyncs explicitly.
	OsDefault
)

// RetentionMode controls what Checkpoint does to bytes before the
// checkpoint offset.
type RetentionMode int

const (
	// KeepAll leaves the segment file intact; Checkpoint only validates the
	// offset.
	KeepAll RetentionMode = iota
	// DeleteOnCheckpoint rewrites the segment, discarding every byte
	// before the checkpoint offset.
	DeleteOnCheckpoint
)

const maxSegmentSize = 64 << 20 // 64 MiB, a generous ceiling against a corrupt length field

// WAL is a single append-only segment file recording FabricEvent frames:
// [u32 length LE][u32 CRC32 LE of payload][payload bytes] (§4.3).
type WAL struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	offset    int64
	sync      SyncMode
	retention RetentionMode
	interval  time.Duration
	lastSync  time.Time
	logger    *slog.Logger
	observer  *observability.Provider
}

// WALOptions configures sync and retention behavior; the zero value is
// EveryWrite + KeepAll. Logger defaults to slog.Default() when nil;
// Observer, when set, wraps Append in a tracked operation.
type WALOptions struct {
	Sync      SyncMode
	Retention RetentionMode
	Interval  time.Duration
	Logger    *slog.Logger
	Observer  *observability.Provider
}

// OpenWAL opens (creating if absent) the segment file at path for
// appending, positioned at end-of-file.
func OpenWAL(path string, opts WALOptions) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fabric: open wal segment: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fabric: stat wal segment: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &WAL{
		file:      f,
		path:      path,
		offset:    info.Size(),
		sync:      opts.Sync,
		retention: opts.Retention,
		interval:  opts.Interval,
		logger:    logger.With("component", "fabric.wal", "path", path),
		observer:  opts.Observer,
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error { return w.file.Close() }

// Offset returns the current end-of-segment byte offset.
func (w *WAL) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// Append serializes e, frames it, and writes the frame under the writer
// mutex. It returns the byte offset the frame was written at; successive
// calls always return strictly increasing offsets.
func (w *WAL) Append(e FabricEvent) (off int64, err error) {
	if w.observer != nil {
		_, done := w.observer.TrackOperation(context.Background(), "fabric.wal.append")
		defer func() { done(err) }()
	}

	payload := encodeEvent(e)
	length := len(payload)
	if length == 0 || length > maxSegmentSize {
		return 0, fmt.Errorf("fabric: wal frame length %d out of bounds", length)
	}
	crc := crc32.ChecksumIEEE(payload)

	frame := make([]byte, 8+length)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(length))
	binary.LittleEndian.PutUint32(frame[4:8], crc)
	copy(frame[8:], payload)

	w.mu.Lock()
	defer w.mu.Unlock()

	writeOff := w.offset
	if _, writeErr := w.file.WriteAt(frame, writeOff); writeErr != nil {
		return 0, fmt.Errorf("fabric: wal append: %w", writeErr)
	}

	switch w.sync {
	case EveryWrite:
		if syncErr := w.file.Sync(); syncErr != nil {
			return 0, fmt.Errorf("fabric: wal fsync: %w", syncErr)
		}
	case Periodic:
		if time.Since(w.lastSync) >= w.interval {
			if syncErr := w.file.Sync(); syncErr != nil {
				return 0, fmt.Errorf("fabric: wal fsync: %w", syncErr)
			}
			w.lastSync = time.Now()
		}
	case OsDefault:
		// rely on the page cache
	}

	w.offset += int64(len(frame))
	return writeOff, nil
}

// RecoveredEvent pairs a recovered FabricEvent with the offset it was
// read from, for callers that need to resume appending precisely after
// the last good frame.
type RecoveredEvent struct {
	Event  FabricEvent
	Offset int64
}

// RecoverOption configures a Recover call; the zero value uses
// slog.Default() and tracks no observability operation.
type RecoverOption func(*recoverConfig)

type recoverConfig struct {
	logger   *slog.Logger
	observer *observability.Provider
}

// WithRecoverLogger routes skip/defect log lines to logger instead of
// slog.Default().
func WithRecoverLogger(logger *slog.Logger) RecoverOption {
	return func(c *recoverConfig) { c.logger = logger }
}

// WithRecoverObserver wraps the scan in a tracked "fabric.wal.recover"
// operation on obs.
func WithRecoverObserver(obs *observability.Provider) RecoverOption {
	return func(c *recoverConfig) { c.observer = obs }
}

// Recover scans the segment from offset 0, returning every well-formed
// frame in append order. A torn tail (incomplete header or payload) ends
// recovery without error; a single corrupt frame (bad CRC or
// undecodable payload) is logged and skipped, and recovery continues
// with the next frame (§4.3 Recovery).
func Recover(path string, opts ...RecoverOption) (events []RecoveredEvent, err error) {
	cfg := recoverConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("component", "fabric.wal", "path", path)

	if cfg.observer != nil {
		_, done := cfg.observer.TrackOperation(context.Background(), "fabric.wal.recover")
		defer func() { done(err) }()
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("fabric: read wal segment: %w", readErr)
	}

	var out []RecoveredEvent
	offset := 0
	for {
		remaining := len(data) - offset
		if remaining < 8 {
			break
		}
		length := binary.LittleEndian.Uint32(data[offset : offset+4])
		crc := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if length == 0 || int(length) > remaining-8 {
			break
		}

		payload := data[offset+8 : offset+8+int(length)]
		frameStart := offset
		offset += 8 + int(length)

		if crc32.ChecksumIEEE(payload) != crc {
			logger.Warn("wal: crc mismatch, skipping frame", "offset", frameStart, "length", length)
			continue
		}
		event, decodeErr := decodeEvent(payload)
		if decodeErr != nil {
			logger.Warn("wal: payload decode failed, skipping frame", "offset", frameStart, "length", length, "error", decodeErr)
			continue
		}
		out = append(out, RecoveredEvent{Event: event, Offset: int64(frameStart)})
	}
	return out, nil
}

// Checkpoint records that every frame before throughOffset has been
// durably consumed elsewhere. Under DeleteOnCheckpoint it rewrites the
// segment to discard those bytes; under KeepAll it is a no-op beyond
// validating the bound.
func (w *WAL) Checkpoint(throughOffset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if throughOffset < 0 || throughOffset > w.offset {
		return wllerr.Wrap(wllerr.ErrInvalidRange, fmt.Errorf("checkpoint offset %d exceeds wal length %d", throughOffset, w.offset))
	}
	if w.retention == KeepAll || throughOffset == 0 {
		return nil
	}

	tail := make([]byte, w.offset-throughOffset)
	if _, err := w.file.ReadAt(tail, throughOffset); err != nil {
		return fmt.Errorf("fabric: checkpoint read tail: %w", err)
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("fabric: checkpoint truncate: %w", err)
	}
	if _, err := w.file.WriteAt(tail, 0); err != nil {
		return fmt.Errorf("fabric: checkpoint rewrite: %w", err)
	}
	w.offset = int64(len(tail))
	return nil
}
