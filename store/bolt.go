package store

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const fileMode = 0600

// boltDB is KVStore implementation based on bolt DB, one bucket per namespace
type boltDB struct {
	db   *bolt.DB
	path string
}

// NewBoltDB returns a bolt store backed by the file at path
func NewBoltDB(path string) KVStore {
	return &boltDB{path: path}
}

// Start opens the BoltDB (creates new file if not existing yet)
func (b *boltDB) Start(_ context.Context) error {
	db, err := bolt.Open(b.path, fileMode, nil)
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	b.db = db
	return nil
}

// Stop closes the BoltDB
func (b *boltDB) Stop(_ context.Context) error {
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return errors.Wrap(ErrIO, err.Error())
		}
	}
	return nil
}

// Get retrieves a record
func (b *boltDB) Get(_ context.Context, namespace string, key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespace))
		if bucket == nil {
			return errors.Wrapf(ErrNotExist, "bucket = %s doesn't exist", namespace)
		}
		v := bucket.Get(key)
		if v == nil {
			return errors.Wrapf(ErrNotExist, "key = %s/%s doesn't exist", namespace, key)
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		if errors.Cause(err) == ErrNotExist {
			return nil, err
		}
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	return value, nil
}

// Commit applies the batch inside a single read-write transaction
func (b *boltDB) Commit(_ context.Context, batch *Batch) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, w := range batch.writes {
			switch w.Type {
			case Put:
				bucket, err := tx.CreateBucketIfNotExists([]byte(w.Namespace))
				if err != nil {
					return err
				}
				if err := bucket.Put(w.Key, w.Value); err != nil {
					return err
				}
			case Delete:
				bucket := tx.Bucket([]byte(w.Namespace))
				if bucket == nil {
					continue
				}
				if err := bucket.Delete(w.Key); err != nil {
					return err
				}
			default:
				return errors.Errorf("unexpected write type %d", w.Type)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}
