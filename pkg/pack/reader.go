package pack

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/wcrypto"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

// Reader gives random access to objects stored in one pack file, keyed by
// its companion index (§4.2 Pack reading).
type Reader struct {
	data []byte
	idx  *Index
	dec  *zstd.Decoder
}

// OpenReader loads packPath and indexPath and validates their magic,
// version, and cross-linking trailer hash before returning.
func OpenReader(packPath, indexPath string) (*Reader, error) {
	data, err := os.ReadFile(packPath)
	if err != nil {
		return nil, fmt.Errorf("pack: read pack file: %w", err)
	}
	if len(data) < 12 || string(data[:4]) != PackMagic {
		return nil, wllerr.Wrap(wllerr.ErrMagicMismatch, nil)
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if !CompatibleWireVersion(version) {
		return nil, wllerr.Wrap(wllerr.ErrVersionMismatch, fmt.Errorf("pack %s: wire version %d outside %s", packPath, version, CompatibleFormatRange))
	}

	idx, err := ReadIndex(indexPath)
	if err != nil {
		return nil, err
	}

	trailer := wcrypto.Hash("wll-pack-trailer-v1", data[:len(data)-32])
	if trailer != idx.PackTrailer {
		return nil, wllerr.Wrap(wllerr.ErrTrailerMismatch, fmt.Errorf("pack %s", packPath))
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("pack: new zstd decoder: %w", err)
	}

	return &Reader{data: data, idx: idx, dec: dec}, nil
}

// Close releases the decoder's background resources.
func (r *Reader) Close() { r.dec.Close() }

// Has reports whether id is present in this pack's index.
func (r *Reader) Has(id wcrypto.Digest) bool {
	_, _, ok := r.idx.Lookup(id)
	return ok
}

// ReadObject locates id via the index, verifies the compressed payload's
// CRC32, decompresses it, and returns the reconstructed StoredObject.
// Delta entries are rejected outright (§9 Open Question: deltas unsupported).
func (r *Reader) ReadObject(id wcrypto.Digest) (objstore.StoredObject, error) {
	offset, wantCrc, ok := r.idx.Lookup(id)
	if !ok {
		return objstore.StoredObject{}, wllerr.Wrap(wllerr.ErrObjectNotFound, nil)
	}
	if offset >= uint64(len(r.data)) {
		return objstore.StoredObject{}, fmt.Errorf("pack: offset %d out of range", offset)
	}

	cursor := r.data[offset:]
	if len(cursor) < 1 {
		return objstore.StoredObject{}, fmt.Errorf("pack: truncated entry at offset %d", offset)
	}
	entryType := EntryType(cursor[0])
	cursor = cursor[1:]

	rawSize, n, err := decodeVarintFromBytes(cursor)
	if err != nil {
		return objstore.StoredObject{}, err
	}
	cursor = cursor[n:]

	compSize, n, err := decodeVarintFromBytes(cursor)
	if err != nil {
		return objstore.StoredObject{}, err
	}
	cursor = cursor[n:]

	if uint64(len(cursor)) < compSize {
		return objstore.StoredObject{}, fmt.Errorf("pack: truncated compressed payload at offset %d", offset)
	}
	compressed := cursor[:compSize]

	gotCrc := crc32.ChecksumIEEE(compressed)
	if gotCrc != wantCrc {
		return objstore.StoredObject{}, wllerr.Wrap(wllerr.ErrCrcMismatch, fmt.Errorf("object %x", id))
	}

	if entryType == EntryDelta {
		return objstore.StoredObject{}, wllerr.Wrap(wllerr.ErrDeltaUnsupported, nil)
	}

	kind, ok := kindForEntryType(entryType)
	if !ok {
		return objstore.StoredObject{}, fmt.Errorf("pack: unknown entry type %d at offset %d", entryType, offset)
	}

	decompressed, err := r.dec.DecodeAll(compressed, make([]byte, 0, rawSize))
	if err != nil {
		return objstore.StoredObject{}, fmt.Errorf("pack: decompress object %x: %w", id, err)
	}
	if uint64(len(decompressed)) != rawSize {
		return objstore.StoredObject{}, wllerr.Wrap(wllerr.ErrDecompressedSize, fmt.Errorf("object %x: got %d want %d", id, len(decompressed), rawSize))
	}

	return objstore.StoredObject{Kind: kind, Bytes: decompressed, Size: int64(len(decompressed))}, nil
}

// Ids returns every object id held by this pack, sorted ascending.
func (r *Reader) Ids() []wcrypto.Digest { return r.idx.Ids() }

// decodeVarintFromBytes mirrors readVarint but operates on an in-memory
// slice, since Reader works directly off a mapped pack body rather than a
// streaming io.Reader.
func decodeVarintFromBytes(b []byte) (value uint64, n int, err error) {
	var v uint64
	var shift uint
	for i := 0; i < 10 && i < len(b); i++ {
		c := b[i]
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, wllerr.Wrap(wllerr.ErrVarintOverflow, nil)
}
