package pack

import (
	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// PendingEntry is one object queued for inclusion in a pack being built.
type PendingEntry struct {
	Id   wcrypto.Digest
	Kind objstore.Kind
	Data []byte
}

// IndexEntry describes where one object lives inside a pack file, as
// recorded in the companion index (§4.2 Index file layout).
type IndexEntry struct {
	Id     wcrypto.Digest
	Crc32  uint32
	Offset uint64
}
