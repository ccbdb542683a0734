package pack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// Writer accumulates PendingEntry values in memory and, on Finish, emits
// both the pack file and its index (§4.2 Pack writing).
type Writer struct {
	entries []PendingEntry
}

// NewWriter returns an empty pack writer.
func NewWriter() *Writer { return &Writer{} }

// Add queues an object for inclusion.
func (w *Writer) Add(e PendingEntry) { w.entries = append(w.entries, e) }

// Finish compresses every queued entry, writes packPath and indexPath,
// and returns the index entries actually written (sorted by id).
func (w *Writer) Finish(packPath, indexPath string) ([]IndexEntry, error) {
	// klauspost/compress exposes tiers rather than the reference zstd's
	// numeric levels; SpeedDefault is its closest match to level 3.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("pack: new zstd encoder: %w", err)
	}
	defer enc.Close()

	var body bytes.Buffer
	header := make([]byte, 0, 12)
	header = append(header, []byte(PackMagic)...)
	header = binary.BigEndian.AppendUint32(header, FormatVersion)
	header = binary.BigEndian.AppendUint32(header, uint32(len(w.entries)))
	if _, err := body.Write(header); err != nil {
		return nil, err
	}

	indexEntries := make([]IndexEntry, 0, len(w.entries))

	for _, e := range w.entries {
		typeByte := entryTypeForKind(e.Kind)
		offset := uint64(body.Len())

		compressed := enc.EncodeAll(e.Data, nil)
		crc := crc32.ChecksumIEEE(compressed)

		body.WriteByte(byte(typeByte))
		if err := writeVarint(&body, uint64(len(e.Data))); err != nil {
			return nil, err
		}
		if err := writeVarint(&body, uint64(len(compressed))); err != nil {
			return nil, err
		}
		body.Write(compressed)

		indexEntries = append(indexEntries, IndexEntry{Id: e.Id, Crc32: crc, Offset: offset})
	}

	trailer := wcrypto.Hash("wll-pack-trailer-v1", body.Bytes())
	body.Write(trailer[:])

	if err := os.WriteFile(packPath, body.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("pack: write pack file: %w", err)
	}

	sort.Slice(indexEntries, func(i, j int) bool {
		return bytes.Compare(indexEntries[i].Id[:], indexEntries[j].Id[:]) < 0
	})

	if err := writeIndex(indexPath, indexEntries, trailer); err != nil {
		return nil, err
	}

	return indexEntries, nil
}
