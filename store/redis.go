package store

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisConfig selects the server and the key prefix shared by every namespace
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// redisKVStore maps (namespace, key) to the redis key "<prefix><namespace>:<key>"
type redisKVStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisKVStore returns a store on the redis server described by cfg
func NewRedisKVStore(cfg RedisConfig) KVStore {
	return &redisKVStore{cfg: cfg}
}

func (r *redisKVStore) Start(ctx context.Context) error {
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.cfg.Addr,
		Password: r.cfg.Password,
		DB:       r.cfg.DB,
	})
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(ErrIO, "ping redis at %s: %v", r.cfg.Addr, err)
	}
	return nil
}

func (r *redisKVStore) Stop(_ context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Close(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

func (r *redisKVStore) Get(ctx context.Context, namespace string, key []byte) ([]byte, error) {
	v, err := r.client.Get(ctx, r.redisKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(ErrNotExist, "key = %s/%s doesn't exist", namespace, key)
	}
	if err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	return v, nil
}

// Commit sends every write inside one MULTI/EXEC block
func (r *redisKVStore) Commit(ctx context.Context, b *Batch) error {
	for _, w := range b.writes {
		if w.Type != Put && w.Type != Delete {
			return errors.Errorf("unexpected write type %d", w.Type)
		}
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range b.writes {
			k := r.redisKey(w.Namespace, w.Key)
			if w.Type == Put {
				pipe.Set(ctx, k, w.Value, 0)
			} else {
				pipe.Del(ctx, k)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

func (r *redisKVStore) redisKey(namespace string, key []byte) string {
	return r.cfg.Prefix + namespace + ":" + string(key)
}
