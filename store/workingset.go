package store

import (
	"context"

	"github.com/pkg/errors"
)

// WorkingSet buffers the writes of one call on top of a KVStore. Reads see the
// buffered writes first. Nothing reaches the store until Commit, so dropping
// a working set discards the call.
type WorkingSet struct {
	kv    KVStore
	dirty map[string]Write
	order []string
}

// NewWorkingSet returns an empty working set over kv
func NewWorkingSet(kv KVStore) *WorkingSet {
	return &WorkingSet{
		kv:    kv,
		dirty: make(map[string]Write),
	}
}

// Get returns the buffered value if any, otherwise the stored one
func (ws *WorkingSet) Get(ctx context.Context, namespace string, key []byte) ([]byte, error) {
	if w, ok := ws.dirty[string(compositeKey(namespace, key))]; ok {
		if w.Type == Delete {
			return nil, errors.Wrapf(ErrNotExist, "key = %s/%s was deleted", namespace, key)
		}
		return append([]byte(nil), w.Value...), nil
	}
	return ws.kv.Get(ctx, namespace, key)
}

// Put buffers a write
func (ws *WorkingSet) Put(namespace string, key, value []byte) {
	ws.record(Write{
		Type:      Put,
		Namespace: namespace,
		Key:       append([]byte(nil), key...),
		Value:     append([]byte(nil), value...),
	})
}

// Delete buffers a removal
func (ws *WorkingSet) Delete(namespace string, key []byte) {
	ws.record(Write{
		Type:      Delete,
		Namespace: namespace,
		Key:       append([]byte(nil), key...),
	})
}

// Size returns the number of distinct keys touched
func (ws *WorkingSet) Size() int {
	return len(ws.order)
}

// Batch returns the buffered writes in first-touch order
func (ws *WorkingSet) Batch() *Batch {
	b := NewBatch()
	for _, k := range ws.order {
		w := ws.dirty[k]
		if w.Type == Put {
			b.Put(w.Namespace, w.Key, w.Value)
		} else {
			b.Delete(w.Namespace, w.Key)
		}
	}
	return b
}

// Commit writes every buffered entry in one batch. An empty working set and a
// cancelled context commit nothing.
func (ws *WorkingSet) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "working set not committed")
	}
	if len(ws.order) == 0 {
		return nil
	}
	if err := ws.kv.Commit(ctx, ws.Batch()); err != nil {
		return err
	}
	ws.dirty = make(map[string]Write)
	ws.order = nil
	return nil
}

func (ws *WorkingSet) record(w Write) {
	k := string(compositeKey(w.Namespace, w.Key))
	if _, ok := ws.dirty[k]; !ok {
		ws.order = append(ws.order, k)
	}
	ws.dirty[k] = w
}
