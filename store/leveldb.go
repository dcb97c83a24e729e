package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// levelDB is KVStore implementation based on goleveldb
type levelDB struct {
	db      *leveldb.DB
	path    string
	storage storage.Storage
}

// NewLevelDB returns a LevelDB store persisted under path
func NewLevelDB(path string) KVStore {
	return &levelDB{path: path}
}

// NewLevelDBWithStorage returns a LevelDB store on top of an explicit storage,
// e.g. storage.NewMemStorage()
func NewLevelDBWithStorage(stor storage.Storage) KVStore {
	return &levelDB{storage: stor}
}

// Start opens the database
func (l *levelDB) Start(_ context.Context) error {
	var (
		db  *leveldb.DB
		err error
	)
	if l.storage != nil {
		db, err = leveldb.Open(l.storage, nil)
	} else {
		db, err = leveldb.OpenFile(l.path, nil)
	}
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	l.db = db
	return nil
}

// Stop closes the database
func (l *levelDB) Stop(_ context.Context) error {
	if l.db == nil {
		return nil
	}
	if err := l.db.Close(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

// Get retrieves a record
func (l *levelDB) Get(_ context.Context, namespace string, key []byte) ([]byte, error) {
	v, err := l.db.Get(compositeKey(namespace, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, errors.Wrapf(ErrNotExist, "key = %s/%s doesn't exist", namespace, key)
	}
	if err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	return v, nil
}

// Commit writes the batch as one leveldb.Batch
func (l *levelDB) Commit(_ context.Context, b *Batch) error {
	lb := new(leveldb.Batch)
	for _, w := range b.writes {
		switch w.Type {
		case Put:
			lb.Put(compositeKey(w.Namespace, w.Key), w.Value)
		case Delete:
			lb.Delete(compositeKey(w.Namespace, w.Key))
		default:
			return errors.Errorf("unexpected write type %d", w.Type)
		}
	}
	if err := l.db.Write(lb, nil); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}
