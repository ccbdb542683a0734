package pack

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/worldline-systems/wll/pkg/objstore"
	"github.com/worldline-systems/wll/pkg/wcrypto"
	"github.com/worldline-systems/wll/pkg/wllerr"
)

// packEntry pairs an open Reader with the base name it was loaded from,
// used only for diagnostics (repack/GC reporting).
type packEntry struct {
	name   string
	reader *Reader
}

// Manager owns every pack under a directory and answers object reads by
// scanning them in load order (packs found at open, by filename, then
// packs added by Repack), first hit wins (§4.2 Manager).
type Manager struct {
	dir   string
	packs []*packEntry
}

// OpenManager loads every *.pack file under dir along with its *.idx
// companion. Packs are ordered by filename so lookups are deterministic.
func OpenManager(dir string) (*Manager, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pack: read pack dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pack") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	m := &Manager{dir: dir}
	for _, name := range names {
		packPath := filepath.Join(dir, name)
		indexPath := strings.TrimSuffix(packPath, ".pack") + ".idx"
		r, err := OpenReader(packPath, indexPath)
		if err != nil {
			return nil, fmt.Errorf("pack: open %s: %w", name, err)
		}
		m.packs = append(m.packs, &packEntry{name: name, reader: r})
	}
	return m, nil
}

// Close releases every open pack's decoder.
func (m *Manager) Close() {
	for _, p := range m.packs {
		p.reader.Close()
	}
}

// ReadObject scans packs in load order and returns the first match.
func (m *Manager) ReadObject(id wcrypto.Digest) (objstore.StoredObject, bool, error) {
	for _, p := range m.packs {
		if !p.reader.Has(id) {
			continue
		}
		obj, err := p.reader.ReadObject(id)
		if err != nil {
			return objstore.StoredObject{}, false, fmt.Errorf("pack: %s: %w", p.name, err)
		}
		return obj, true, nil
	}
	return objstore.StoredObject{}, false, nil
}

// Repack reads every id from store (in the order given) and writes them
// into one new pack file, named by the caller, returning its index
// entries. It does not remove objects from store or delete older packs;
// that is left to the caller once the new pack is confirmed durable.
func (m *Manager) Repack(ctx context.Context, store objstore.Store, ids []wcrypto.Digest, packName string) ([]IndexEntry, error) {
	w := NewWriter()
	for _, id := range ids {
		obj, ok, err := store.Read(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("pack: repack read %x: %w", id, err)
		}
		if !ok {
			return nil, wllerr.Wrap(wllerr.ErrObjectNotFound, fmt.Errorf("repack: %x", id))
		}
		w.Add(PendingEntry{Id: id, Kind: obj.Kind, Data: obj.Bytes})
	}

	packPath := filepath.Join(m.dir, packName+".pack")
	indexPath := filepath.Join(m.dir, packName+".idx")
	entries, err := w.Finish(packPath, indexPath)
	if err != nil {
		return nil, err
	}

	r, err := OpenReader(packPath, indexPath)
	if err != nil {
		return nil, err
	}
	m.packs = append(m.packs, &packEntry{name: packName + ".pack", reader: r})
	return entries, nil
}

// Ids returns every object id held across all loaded packs, deduplicated.
// Used by fsck to walk every packed object and force its CRC check.
func (m *Manager) Ids() []wcrypto.Digest {
	seen := make(map[wcrypto.Digest]bool)
	var ids []wcrypto.Digest
	for _, p := range m.packs {
		for _, id := range p.reader.Ids() {
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// GC reports object ids held across every loaded pack that are absent
// from reachable. It never deletes anything; callers decide how to act
// on the report (§4.2 GC is advisory, not destructive).
func (m *Manager) GC(reachable map[wcrypto.Digest]bool) []wcrypto.Digest {
	seen := make(map[wcrypto.Digest]bool)
	var unreachable []wcrypto.Digest
	for _, p := range m.packs {
		for _, id := range p.reader.Ids() {
			if seen[id] {
				continue
			}
			seen[id] = true
			if !reachable[id] {
				unreachable = append(unreachable, id)
			}
		}
	}
	sort.Slice(unreachable, func(i, j int) bool {
		return bytes.Compare(unreachable[i][:], unreachable[j][:]) < 0
	})
	return unreachable
}
