// Package objstore implements the content-addressed object store: typed,
// immutable storage of blobs, trees, receipts, and snapshots, keyed by a
// domain-separated content hash (§4.1).
package objstore

import (
	"sort"

	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// ObjectId is the 32-byte content hash identifying a stored object.
type ObjectId = wcrypto.Digest

// Kind enumerates the object kinds the store understands. The store
// itself never interprets content beyond this tag.
type Kind string

const (
	KindBlob     Kind = "blob"
	KindTree     Kind = "tree"
	KindReceipt  Kind = "receipt"
	KindSnapshot Kind = "snapshot"
	KindPack     Kind = "pack"
)

func (k Kind) domain() string {
	switch k {
	case KindBlob:
		return wcrypto.DomainBlob
	case KindTree:
		return wcrypto.DomainTree
	case KindReceipt:
		return wcrypto.DomainReceipt
	case KindSnapshot:
		return wcrypto.DomainSnapshot
	default:
		return string(k)
	}
}

// StoredObject is the immutable, typed payload kept by the store.
type StoredObject struct {
	Kind  Kind
	Bytes []byte
	Size  int64
}

// ComputeId returns the ObjectId this object's bytes would hash to under
// its kind's domain tag.
func (o StoredObject) ComputeId() ObjectId {
	return wcrypto.Hash(o.Kind.domain(), o.Bytes)
}

// EntryMode is the file-system mode of a tree entry.
type EntryMode string

const (
	ModeRegular    EntryMode = "regular"
	ModeExecutable EntryMode = "executable"
	ModeSymlink    EntryMode = "symlink"
	ModeDirectory  EntryMode = "directory"
)

// TreeEntry is one member of a Tree object.
type TreeEntry struct {
	Mode EntryMode `json:"mode"`
	Name string    `json:"name"`
	Id   ObjectId  `json:"id"`
}

// Tree is an ordered sequence of entries, sorted by name, so that two
// trees with the same membership always serialize (and hash) identically.
type Tree struct {
	Entries []TreeEntry `json:"entries"`
}

// SortEntries sorts t's entries by name in place, the canonical order
// required before hashing or serializing a Tree.
func (t *Tree) SortEntries() {
	sort.Slice(t.Entries, func(i, j int) bool { return t.Entries[i].Name < t.Entries[j].Name })
}

// jsonTreeEntry mirrors TreeEntry for marshaling; kept private since
// callers interact with Tree and MarshalTree/UnmarshalTree.
type jsonTreeEntry struct {
	Mode EntryMode `json:"mode"`
	Name string    `json:"name"`
	Id   []byte    `json:"id"`
}
