// Package diff compares two trees, two text blobs, or two state maps
// and reports the minimal set of changes between them (§4.9).
package diff

import (
	"sort"

	"github.com/worldline-systems/wll/pkg/objstore"
)

// ChangeKind tags what happened to one tree entry between two trees.
type ChangeKind string

const (
	ChangeAdded       ChangeKind = "added"
	ChangeDeleted     ChangeKind = "deleted"
	ChangeModified    ChangeKind = "modified"
	ChangeModeChanged ChangeKind = "mode_changed"
	ChangeRenamed     ChangeKind = "renamed"
)

// TreeChange is one entry-level difference between two trees.
type TreeChange struct {
	Kind ChangeKind
	Name string

	// Renamed-only.
	From string
	To   string

	OldId   objstore.ObjectId
	NewId   objstore.ObjectId
	OldMode objstore.EntryMode
	NewMode objstore.EntryMode

	Similarity float64
}

// Trees compares old and new by entry name and emits Added, Deleted,
// Modified(old_id, new_id), and ModeChanged(old_mode, new_mode) changes,
// then runs a second pass that pairs up same-ObjectId delete+add entries
// into Renamed changes with similarity 1.0 (§4.9).
func Trees(old, new objstore.Tree) []TreeChange {
	oldByName := indexByName(old)
	newByName := indexByName(new)

	var changes []TreeChange
	for name, oldEntry := range oldByName {
		newEntry, present := newByName[name]
		if !present {
			changes = append(changes, TreeChange{Kind: ChangeDeleted, Name: name, OldId: oldEntry.Id, OldMode: oldEntry.Mode})
			continue
		}
		if oldEntry.Id != newEntry.Id {
			changes = append(changes, TreeChange{Kind: ChangeModified, Name: name, OldId: oldEntry.Id, NewId: newEntry.Id, OldMode: oldEntry.Mode, NewMode: newEntry.Mode})
			continue
		}
		if oldEntry.Mode != newEntry.Mode {
			changes = append(changes, TreeChange{Kind: ChangeModeChanged, Name: name, OldMode: oldEntry.Mode, NewMode: newEntry.Mode})
		}
	}
	for name, newEntry := range newByName {
		if _, present := oldByName[name]; !present {
			changes = append(changes, TreeChange{Kind: ChangeAdded, Name: name, NewId: newEntry.Id, NewMode: newEntry.Mode})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return detectRenames(changes)
}

func indexByName(t objstore.Tree) map[string]objstore.TreeEntry {
	out := make(map[string]objstore.TreeEntry, len(t.Entries))
	for _, e := range t.Entries {
		out[e.Name] = e
	}
	return out
}

// detectRenames pairs each Deleted entry with an Added entry sharing the
// same ObjectId, folding both into a single Renamed change.
func detectRenames(changes []TreeChange) []TreeChange {
	deletedById := make(map[objstore.ObjectId]int) // ObjectId -> index into changes
	for i, c := range changes {
		if c.Kind == ChangeDeleted {
			deletedById[c.OldId] = i
		}
	}

	consumed := make(map[int]bool)
	var renames []TreeChange
	for i, c := range changes {
		if c.Kind != ChangeAdded {
			continue
		}
		delIdx, ok := deletedById[c.NewId]
		if !ok || consumed[delIdx] {
			continue
		}
		consumed[delIdx] = true
		consumed[i] = true
		renames = append(renames, TreeChange{
			Kind:       ChangeRenamed,
			From:       changes[delIdx].Name,
			To:         c.Name,
			OldId:      changes[delIdx].OldId,
			NewId:      c.NewId,
			OldMode:    changes[delIdx].OldMode,
			NewMode:    c.NewMode,
			Similarity: 1.0,
		})
	}

	out := make([]TreeChange, 0, len(changes))
	for i, c := range changes {
		if consumed[i] {
			continue
		}
		out = append(out, c)
	}
	out = append(out, renames...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].From < out[j].From
	})
	return out
}
