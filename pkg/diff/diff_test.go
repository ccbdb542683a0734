package diff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/wcrypto"
)

func id(label string) objstore.ObjectId {
	return wcrypto.Hash("test-object", []byte(label))
}

func TestTreesDetectsAddedDeletedModified(t *testing.T) {
	old := objstore.Tree{Entries: []objstore.TreeEntry{
		{Name: "a.txt", Mode: objstore.ModeRegular, Id: id("a-v1")},
		{Name: "b.txt", Mode: objstore.ModeRegular, Id: id("b-v1")},
	}}
	new := objstore.Tree{Entries: []objstore.TreeEntry{
		{Name: "a.txt", Mode: objstore.ModeRegular, Id: id("a-v2")},
		{Name: "c.txt", Mode: objstore.ModeRegular, Id: id("c-v1")},
	}}

	changes := Trees(old, new)
	kinds := map[string]ChangeKind{}
	for _, c := range changes {
		kinds[c.Name] = c.Kind
	}
	require.Equal(t, ChangeModified, kinds["a.txt"])
	require.Equal(t, ChangeDeleted, kinds["b.txt"])
	require.Equal(t, ChangeAdded, kinds["c.txt"])
}

func TestTreesDetectsModeChange(t *testing.T) {
	old := objstore.Tree{Entries: []objstore.TreeEntry{{Name: "run.sh", Mode: objstore.ModeRegular, Id: id("script")}}}
	new := objstore.Tree{Entries: []objstore.TreeEntry{{Name: "run.sh", Mode: objstore.ModeExecutable, Id: id("script")}}}

	changes := Trees(old, new)
	require.Len(t, changes, 1)
	require.Equal(t, ChangeModeChanged, changes[0].Kind)
}

func TestTreesDetectsRename(t *testing.T) {
	old := objstore.Tree{Entries: []objstore.TreeEntry{{Name: "old-name.txt", Mode: objstore.ModeRegular, Id: id("same-content")}}}
	new := objstore.Tree{Entries: []objstore.TreeEntry{{Name: "new-name.txt", Mode: objstore.ModeRegular, Id: id("same-content")}}}

	changes := Trees(old, new)
	require.Len(t, changes, 1)
	require.Equal(t, ChangeRenamed, changes[0].Kind)
	require.Equal(t, "old-name.txt", changes[0].From)
	require.Equal(t, "new-name.txt", changes[0].To)
	require.Equal(t, 1.0, changes[0].Similarity)
}

func TestBlobProducesLineTaggedHunks(t *testing.T) {
	old := []byte("line1\nline2\nline3\n")
	new := []byte("line1\nline2-changed\nline3\n")

	hunks := Blob(old, new)
	require.NotEmpty(t, hunks)

	var sawRemoved, sawAdded bool
	for _, h := range hunks {
		require.False(t, h.Binary)
		for _, l := range h.Lines {
			if l.Tag == LineRemoved && l.Text == "line2" {
				sawRemoved = true
			}
			if l.Tag == LineAdded && l.Text == "line2-changed" {
				sawAdded = true
			}
		}
	}
	require.True(t, sawRemoved)
	require.True(t, sawAdded)
}

func TestBlobYieldsBinaryHunkForNonUTF8(t *testing.T) {
	old := []byte{0xff, 0xfe, 0x00, 0x01}
	new := []byte{0xff, 0xfe, 0x00, 0x02, 0x03}

	hunks := Blob(old, new)
	require.Len(t, hunks, 1)
	require.True(t, hunks[0].Binary)
	require.Equal(t, len(old), hunks[0].OldCount)
	require.Equal(t, len(new), hunks[0].NewCount)
}

func TestStateDetectsAddedRemovedModified(t *testing.T) {
	old := map[string]interface{}{"a": 1.0, "b": "keep", "c": map[string]interface{}{"nested": true}}
	new := map[string]interface{}{"a": 2.0, "b": "keep", "d": "new"}

	changes := State(old, new)
	kinds := map[string]ChangeKind{}
	for _, c := range changes {
		kinds[c.Key] = c.Kind
	}
	require.Equal(t, ChangeModified, kinds["a"])
	require.Equal(t, ChangeDeleted, kinds["c"])
	require.Equal(t, ChangeAdded, kinds["d"])
	_, unchanged := kinds["b"]
	require.False(t, unchanged)
}
