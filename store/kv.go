// Package store holds the key-value substrate the escrow engine persists into.
// Every backend applies a Batch atomically: either all of its writes become
// visible or none do.
package store

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotExist indicates the requested key is absent
	ErrNotExist = errors.New("not exist in DB")
	// ErrIO indicates the generic error of DB I/O operation
	ErrIO = errors.New("DB I/O operation error")
)

const keyDelimiter = "."

// KVStore is the interface of KV store.
type KVStore interface {
	// Start opens the underlying database
	Start(context.Context) error
	// Stop closes the underlying database
	Stop(context.Context) error
	// Get gets a record by (namespace, key)
	Get(ctx context.Context, namespace string, key []byte) ([]byte, error)
	// Commit applies every write of the batch atomically
	Commit(ctx context.Context, b *Batch) error
}

// WriteType is the type of a batch entry
type WriteType uint8

const (
	// Put writes a value
	Put WriteType = iota
	// Delete removes a key
	Delete
)

// Write is one entry of a Batch
type Write struct {
	Type      WriteType
	Namespace string
	Key       []byte
	Value     []byte
}

// Batch is an ordered list of writes. Later writes to the same key win.
type Batch struct {
	writes []Write
}

// NewBatch returns an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// Put appends a put entry
func (b *Batch) Put(namespace string, key, value []byte) {
	b.writes = append(b.writes, Write{
		Type:      Put,
		Namespace: namespace,
		Key:       append([]byte(nil), key...),
		Value:     append([]byte(nil), value...),
	})
}

// Delete appends a delete entry
func (b *Batch) Delete(namespace string, key []byte) {
	b.writes = append(b.writes, Write{
		Type:      Delete,
		Namespace: namespace,
		Key:       append([]byte(nil), key...),
	})
}

// Size returns the number of entries
func (b *Batch) Size() int {
	return len(b.writes)
}

// Entry returns the i-th entry
func (b *Batch) Entry(i int) (Write, error) {
	if i < 0 || i >= len(b.writes) {
		return Write{}, errors.Errorf("batch entry %d out of range [0, %d)", i, len(b.writes))
	}
	return b.writes[i], nil
}

func compositeKey(namespace string, key []byte) []byte {
	k := make([]byte, 0, len(namespace)+len(keyDelimiter)+len(key))
	k = append(k, namespace...)
	k = append(k, keyDelimiter...)
	return append(k, key...)
}
