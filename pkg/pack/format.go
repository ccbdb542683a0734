// Package pack implements the compressed, CRC-checked, indexed bundle
// format used for object store compaction and transfer (§4.2). A pack is
// one file of zstd-compressed objects; a companion index file gives
// O(log N) lookup by ObjectId via a 256-way fan-out table plus binary
// search.
package pack

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/worldline-systems/wll/pkg/objstore"
)

// Magic numbers identifying the two file formats, checked on every open.
const (
	PackMagic  = "WLLP"
	IndexMagic = "WLLI"
)

// FormatVersion is the wire-level integer version this implementation
// writes into every pack and index header.
const FormatVersion uint32 = 1

// FormatSemver is FormatVersion's semantic-version form.
var FormatSemver = semver.MustParse("1.0.0")

// CompatibleFormatRange is the semver constraint a reader accepts: the
// same major version, any minor or patch. The on-disk header carries a
// single integer that wireSemver maps to N.0.0, so in practice only wire
// version 1 passes.
var CompatibleFormatRange = semver.MustParseConstraint(fmt.Sprintf("^%d.0.0", FormatSemver.Major()))

// wireSemver encodes a pack/index header's wire-level integer version
// into its semver form for range checking.
func wireSemver(wire uint32) *semver.Version {
	return semver.MustParse(fmt.Sprintf("%d.0.0", wire))
}

// CompatibleWireVersion reports whether a pack/index header's wire
// version falls within CompatibleFormatRange.
func CompatibleWireVersion(wire uint32) bool {
	return CompatibleFormatRange.Check(wireSemver(wire))
}

// EntryType is the on-disk type_byte of one packed entry.
type EntryType byte

const (
	EntryBlob     EntryType = 1
	EntryTree     EntryType = 2
	EntryReceipt  EntryType = 3
	EntrySnapshot EntryType = 4
	EntryPack     EntryType = 5
	EntryDelta    EntryType = 6
)

func entryTypeForKind(k objstore.Kind) EntryType {
	switch k {
	case objstore.KindBlob:
		return EntryBlob
	case objstore.KindTree:
		return EntryTree
	case objstore.KindReceipt:
		return EntryReceipt
	case objstore.KindSnapshot:
		return EntrySnapshot
	case objstore.KindPack:
		return EntryPack
	default:
		return 0
	}
}

func kindForEntryType(t EntryType) (objstore.Kind, bool) {
	switch t {
	case EntryBlob:
		return objstore.KindBlob, true
	case EntryTree:
		return objstore.KindTree, true
	case EntryReceipt:
		return objstore.KindReceipt, true
	case EntrySnapshot:
		return objstore.KindSnapshot, true
	case EntryPack:
		return objstore.KindPack, true
	default:
		return "", false
	}
}

// ZstdLevel is the nominal zstd level of pack payloads. Writer does not
// read this constant; it uses the encoder's SpeedDefault setting, which
// corresponds to zstd level 3.
const ZstdLevel = 3
