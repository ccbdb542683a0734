package objstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/worldline-systems/wll/pkg/wcrypto"
)

// FS is a filesystem-backed Store laid out the way a content-addressed
// store conventionally is on disk: objects live under
// <root>/<kind>/<first-2-hex>/<remaining-hex>, written via a temp file
// plus os.Rename so a reader never observes a partially written object.
type FS struct {
	root string
	mu   sync.Mutex // serializes writes; reads need no lock (os handles that)
}

// NewFS opens (creating if needed) a filesystem object store rooted at dir.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create root: %w", err)
	}
	return &FS{root: dir}, nil
}

func (f *FS) pathFor(kind Kind, id ObjectId) string {
	hexId := hex.EncodeToString(id[:])
	return filepath.Join(f.root, string(kind), hexId[:2], hexId[2:])
}

func (f *FS) Write(_ context.Context, obj StoredObject) (ObjectId, error) {
	id, err := validateWrite(obj)
	if err != nil {
		return ObjectId{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.pathFor(obj.Kind, id)
	if _, err := os.Stat(path); err == nil {
		return id, nil // idempotent no-op
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ObjectId{}, fmt.Errorf("objstore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return ObjectId{}, fmt.Errorf("objstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(obj.Bytes); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ObjectId{}, fmt.Errorf("objstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ObjectId{}, fmt.Errorf("objstore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ObjectId{}, fmt.Errorf("objstore: rename into place: %w", err)
	}
	return id, nil
}

func (f *FS) Read(_ context.Context, id ObjectId) (StoredObject, bool, error) {
	for _, kind := range []Kind{KindBlob, KindTree, KindReceipt, KindSnapshot} {
		path := f.pathFor(kind, id)
		data, err := os.ReadFile(path)
		if err == nil {
			return StoredObject{Kind: kind, Bytes: data, Size: int64(len(data))}, true, nil
		}
		if !os.IsNotExist(err) {
			return StoredObject{}, false, fmt.Errorf("objstore: read: %w", err)
		}
	}
	return StoredObject{}, false, nil
}

func (f *FS) Exists(ctx context.Context, id ObjectId) (bool, error) {
	_, ok, err := f.Read(ctx, id)
	return ok, err
}

// Walk invokes fn once for every object currently held loose on disk, in
// unspecified order. Used by repack and gc to enumerate candidates
// before grouping them into a pack or pruning them.
func (f *FS) Walk(fn func(kind Kind, id ObjectId) error) error {
	for _, kind := range []Kind{KindBlob, KindTree, KindReceipt, KindSnapshot} {
		kindDir := filepath.Join(f.root, string(kind))
		shards, err := os.ReadDir(kindDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("objstore: walk %s: %w", kind, err)
		}
		for _, shard := range shards {
			if !shard.IsDir() {
				continue
			}
			shardDir := filepath.Join(kindDir, shard.Name())
			files, err := os.ReadDir(shardDir)
			if err != nil {
				return fmt.Errorf("objstore: walk %s: %w", kind, err)
			}
			for _, file := range files {
				if file.IsDir() || strings.HasPrefix(file.Name(), ".tmp-") {
					continue
				}
				raw, err := hex.DecodeString(shard.Name() + file.Name())
				if err != nil {
					continue
				}
				id, ok := wcrypto.DigestFromBytes(raw)
				if !ok {
					continue
				}
				if err := fn(kind, id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (f *FS) Delete(_ context.Context, id ObjectId) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	deleted := false
	for _, kind := range []Kind{KindBlob, KindTree, KindReceipt, KindSnapshot} {
		path := f.pathFor(kind, id)
		if err := os.Remove(path); err == nil {
			deleted = true
		} else if !os.IsNotExist(err) {
			return deleted, fmt.Errorf("objstore: delete: %w", err)
		}
	}
	return deleted, nil
}
