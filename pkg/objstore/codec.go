package objstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MarshalTree serializes a Tree to its canonical on-disk bytes: entries
// sorted by name, ids hex-encoded. The same bytes are what gets hashed
// to produce the Tree's ObjectId, so MarshalTree must be deterministic.
func MarshalTree(t Tree) ([]byte, error) {
	t.SortEntries()
	wire := make([]jsonTreeEntry, len(t.Entries))
	for i, e := range t.Entries {
		wire[i] = jsonTreeEntry{Mode: e.Mode, Name: e.Name, Id: e.Id[:]}
	}
	out := struct {
		Entries []wireEntry `json:"entries"`
	}{entriesToWire(wire)}
	return json.Marshal(out)
}

type wireEntry struct {
	Mode EntryMode `json:"mode"`
	Name string    `json:"name"`
	Id   string    `json:"id"`
}

func entriesToWire(in []jsonTreeEntry) []wireEntry {
	out := make([]wireEntry, len(in))
	for i, e := range in {
		out[i] = wireEntry{Mode: e.Mode, Name: e.Name, Id: hex.EncodeToString(e.Id)}
	}
	return out
}

// UnmarshalTree parses bytes produced by MarshalTree.
func UnmarshalTree(data []byte) (Tree, error) {
	var wire struct {
		Entries []wireEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Tree{}, fmt.Errorf("objstore: unmarshal tree: %w", err)
	}
	t := Tree{Entries: make([]TreeEntry, len(wire.Entries))}
	for i, e := range wire.Entries {
		idBytes, err := hex.DecodeString(e.Id)
		if err != nil || len(idBytes) != len(ObjectId{}) {
			return Tree{}, fmt.Errorf("objstore: tree entry %q has invalid id", e.Name)
		}
		var id ObjectId
		copy(id[:], idBytes)
		t.Entries[i] = TreeEntry{Mode: e.Mode, Name: e.Name, Id: id}
	}
	return t, nil
}
