package objstore

import (
	"context"

	"github.com/worldline-systems/wll/pkg/wllerr"
)

// Store is the capability set every object store backend satisfies:
// write/read/exists/delete of typed immutable objects, plus batch
// variants that compose the singletons. Concurrent reads must be safe;
// writes on the same key must be idempotent (§4.1).
type Store interface {
	Write(ctx context.Context, obj StoredObject) (ObjectId, error)
	Read(ctx context.Context, id ObjectId) (StoredObject, bool, error)
	Exists(ctx context.Context, id ObjectId) (bool, error)
	Delete(ctx context.Context, id ObjectId) (bool, error)
}

// WriteBatch writes each object in order, stopping at the first error.
func WriteBatch(ctx context.Context, s Store, objs []StoredObject) ([]ObjectId, error) {
	ids := make([]ObjectId, 0, len(objs))
	for _, o := range objs {
		id, err := s.Write(ctx, o)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ReadBatch reads each id in order, returning a zero StoredObject with
// found=false for objects absent from the store rather than failing the
// whole batch.
func ReadBatch(ctx context.Context, s Store, ids []ObjectId) ([]StoredObject, []bool, error) {
	objs := make([]StoredObject, len(ids))
	found := make([]bool, len(ids))
	for i, id := range ids {
		o, ok, err := s.Read(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		objs[i], found[i] = o, ok
	}
	return objs, found, nil
}

func validateWrite(obj StoredObject) (ObjectId, error) {
	id := obj.ComputeId()
	if id.IsZero() {
		return id, wllerr.Wrap(wllerr.ErrZeroObjectID, nil)
	}
	return id, nil
}
