package pack

import (
	"io"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/worldline-systems/wll/pkg/wcrypto"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

// writeIndex emits the WLLI companion file: magic, version, a 256-way
// fan-out table, then parallel sorted-id/crc32/offset arrays, then the
// pack's trailer hash for cross-checking (§4.2 Index file layout).
func writeIndex(path string, entries []IndexEntry, packTrailer wcrypto.Digest) error {
	var buf bytes.Buffer
	buf.WriteString(IndexMagic)
	var verBuf [4]byte
	binary.BigEndian.PutUint32(verBuf[:], FormatVersion)
	buf.Write(verBuf[:])

	var fanOut [256]uint32
	for _, e := range entries {
		fanOut[e.Id[0]]++
	}
	// convert per-byte counts into cumulative counts (fan_out[i] = count
	// of ids with first byte <= i)
	var running uint32
	for i := range fanOut {
		running += fanOut[i]
		fanOut[i] = running
	}
	for _, v := range fanOut {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	for _, e := range entries {
		buf.Write(e.Id[:])
	}
	for _, e := range entries {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e.Crc32)
		buf.Write(b[:])
	}
	for _, e := range entries {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], e.Offset)
		buf.Write(b[:])
	}
	buf.Write(packTrailer[:])

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("pack: write index file: %w", err)
	}
	return nil
}

// Index is a parsed, queryable WLLI file.
type Index struct {
	fanOut      [256]uint32
	ids         []wcrypto.Digest
	crcs        []uint32
	offsets     []uint64
	PackTrailer wcrypto.Digest
}

// ReadIndex loads and parses an index file from path.
func ReadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pack: read index file: %w", err)
	}
	return ParseIndex(data)
}

// ParseIndex parses index bytes already in memory.
func ParseIndex(data []byte) (*Index, error) {
	if len(data) < 4 || string(data[:4]) != IndexMagic {
		return nil, wllerr.Wrap(wllerr.ErrMagicMismatch, nil)
	}
	r := bytes.NewReader(data[4:])

	var verBuf [4]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		return nil, fmt.Errorf("pack: read index version: %w", err)
	}
	version := binary.BigEndian.Uint32(verBuf[:])
	if !CompatibleWireVersion(version) {
		return nil, wllerr.Wrap(wllerr.ErrVersionMismatch, fmt.Errorf("index: wire version %d outside %s", version, CompatibleFormatRange))
	}

	idx := &Index{}
	for i := range idx.fanOut {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("pack: read fan-out: %w", err)
		}
		idx.fanOut[i] = binary.BigEndian.Uint32(b[:])
	}

	count := idx.fanOut[255]
	idx.ids = make([]wcrypto.Digest, count)
	for i := uint32(0); i < count; i++ {
		var id wcrypto.Digest
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, fmt.Errorf("pack: read id %d: %w", i, err)
		}
		idx.ids[i] = id
	}

	idx.crcs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("pack: read crc %d: %w", i, err)
		}
		idx.crcs[i] = binary.BigEndian.Uint32(b[:])
	}

	idx.offsets = make([]uint64, count)
	for i := uint32(0); i < count; i++ {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("pack: read offset %d: %w", i, err)
		}
		idx.offsets[i] = binary.BigEndian.Uint64(b[:])
	}

	if _, err := io.ReadFull(r, idx.PackTrailer[:]); err != nil {
		return nil, fmt.Errorf("pack: read pack checksum: %w", err)
	}

	return idx, nil
}

// Lookup finds the offset and expected CRC for id via fan-out bounds plus
// binary search over the sorted id array (§4.2 Lookup).
func (idx *Index) Lookup(id wcrypto.Digest) (offset uint64, crc uint32, ok bool) {
	first := id[0]
	lo := uint32(0)
	if first > 0 {
		lo = idx.fanOut[first-1]
	}
	hi := idx.fanOut[first]

	for lo < hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(idx.ids[mid][:], id[:])
		switch {
		case cmp == 0:
			return idx.offsets[mid], idx.crcs[mid], true
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, 0, false
}

// Ids returns every object id present in the index, sorted ascending.
func (idx *Index) Ids() []wcrypto.Digest {
	out := make([]wcrypto.Digest, len(idx.ids))
	copy(out, idx.ids)
	return out
}
