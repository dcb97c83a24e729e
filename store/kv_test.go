package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func backends(t *testing.T) map[string]KVStore {
	t.Helper()
	mr := miniredis.RunT(t)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kv.db")), &gorm.Config{})
	require.NoError(t, err)

	return map[string]KVStore{
		"memory":  NewMemKVStore(),
		"leveldb": NewLevelDBWithStorage(storage.NewMemStorage()),
		"bolt":    NewBoltDB(filepath.Join(t.TempDir(), "escrow.bolt")),
		"redis":   NewRedisKVStore(RedisConfig{Addr: mr.Addr(), Prefix: "test:"}),
		"gorm":    NewGormKVStore(db),
	}
}

func TestKVStoreCommitAndGet(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, kv.Start(ctx))
			defer func() { require.NoError(t, kv.Stop(ctx)) }()

			_, err := kv.Get(ctx, "bounty", []byte("0"))
			require.Equal(t, ErrNotExist, errors.Cause(err))

			b := NewBatch()
			b.Put("bounty", []byte("0"), []byte(`{"id":0}`))
			b.Put("meta", []byte("bounty.next"), []byte("1"))
			b.Put("meta", []byte("owner"), []byte("alice"))
			require.NoError(t, kv.Commit(ctx, b))

			v, err := kv.Get(ctx, "bounty", []byte("0"))
			require.NoError(t, err)
			assert.Equal(t, `{"id":0}`, string(v))
			v, err = kv.Get(ctx, "meta", []byte("bounty.next"))
			require.NoError(t, err)
			assert.Equal(t, "1", string(v))

			// namespaces do not collide on equal keys
			_, err = kv.Get(ctx, "transfer", []byte("0"))
			require.Equal(t, ErrNotExist, errors.Cause(err))

			b = NewBatch()
			b.Put("meta", []byte("bounty.next"), []byte("2"))
			b.Delete("meta", []byte("owner"))
			b.Delete("transfer", []byte("missing"))
			require.NoError(t, kv.Commit(ctx, b))

			v, err = kv.Get(ctx, "meta", []byte("bounty.next"))
			require.NoError(t, err)
			assert.Equal(t, "2", string(v))
			_, err = kv.Get(ctx, "meta", []byte("owner"))
			require.Equal(t, ErrNotExist, errors.Cause(err))
		})
	}
}

type recordingWriter struct {
	lines []string
}

func (w *recordingWriter) Printf(format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestGormMissingKeyIsNotLogged(t *testing.T) {
	w := &recordingWriter{}
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kv.db")), &gorm.Config{
		Logger: gormlogger.New(w, gormlogger.Config{LogLevel: gormlogger.Warn}),
	})
	require.NoError(t, err)
	kv := NewGormKVStore(db)
	ctx := context.Background()
	require.NoError(t, kv.Start(ctx))
	defer func() { require.NoError(t, kv.Stop(ctx)) }()

	for i := 0; i < 3; i++ {
		_, err = kv.Get(ctx, "meta", []byte("owner"))
		require.Equal(t, ErrNotExist, errors.Cause(err))
	}
	assert.Empty(t, w.lines)
}

func TestBatchEntries(t *testing.T) {
	b := NewBatch()
	key := []byte("k")
	val := []byte("v")
	b.Put("ns", key, val)
	b.Delete("ns", key)
	key[0] = 'x'
	val[0] = 'y'

	require.Equal(t, 2, b.Size())
	w, err := b.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, Put, w.Type)
	assert.Equal(t, "k", string(w.Key))
	assert.Equal(t, "v", string(w.Value))
	w, err = b.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, Delete, w.Type)
	_, err = b.Entry(2)
	require.Error(t, err)
}

func TestWorkingSet(t *testing.T) {
	ctx := context.Background()
	kv := NewMemKVStore()
	seed := NewBatch()
	seed.Put("meta", []byte("bounty.next"), []byte("3"))
	seed.Put("meta", []byte("owner"), []byte("alice"))
	require.NoError(t, kv.Commit(ctx, seed))

	ws := NewWorkingSet(kv)
	v, err := ws.Get(ctx, "meta", []byte("bounty.next"))
	require.NoError(t, err)
	assert.Equal(t, "3", string(v))

	ws.Put("meta", []byte("bounty.next"), []byte("4"))
	ws.Put("bounty", []byte("3"), []byte("{}"))
	ws.Delete("meta", []byte("owner"))
	ws.Put("meta", []byte("bounty.next"), []byte("5"))
	assert.Equal(t, 3, ws.Size())

	v, err = ws.Get(ctx, "meta", []byte("bounty.next"))
	require.NoError(t, err)
	assert.Equal(t, "5", string(v))
	_, err = ws.Get(ctx, "meta", []byte("owner"))
	require.Equal(t, ErrNotExist, errors.Cause(err))

	// store untouched before commit
	v, err = kv.Get(ctx, "meta", []byte("bounty.next"))
	require.NoError(t, err)
	assert.Equal(t, "3", string(v))

	require.NoError(t, ws.Commit(ctx))
	assert.Equal(t, 0, ws.Size())
	v, err = kv.Get(ctx, "meta", []byte("bounty.next"))
	require.NoError(t, err)
	assert.Equal(t, "5", string(v))
	_, err = kv.Get(ctx, "meta", []byte("owner"))
	require.Equal(t, ErrNotExist, errors.Cause(err))
}

func TestWorkingSetCancelledContext(t *testing.T) {
	kv := NewMemKVStore()
	ws := NewWorkingSet(kv)
	ws.Put("meta", []byte("bounty.next"), []byte("1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, ws.Commit(ctx))

	_, err := kv.Get(context.Background(), "meta", []byte("bounty.next"))
	require.Equal(t, ErrNotExist, errors.Cause(err))
}
