package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bounty-escrow-system/config"
	"bounty-escrow-system/escrow"
	"bounty-escrow-system/ledger"
	"bounty-escrow-system/logger"
	"bounty-escrow-system/store"
	"bounty-escrow-system/utils"
	"bounty-escrow-system/workers"
)

// openStore starts the configured KV backend.
func openStore(ctx context.Context, cfg *config.Config) (store.KVStore, error) {
	var kv store.KVStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		kv = store.NewGormKVStore(db)
	case config.BackendLevelDB:
		kv = store.NewLevelDB(cfg.LevelDBPath)
	case config.BackendBolt:
		kv = store.NewBoltDB(cfg.BoltPath)
	case config.BackendRedis:
		kv = store.NewRedisKVStore(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case config.BackendMemory:
		logger.L().Warn("⚠️  memory store selected, state is lost on exit")
		kv = store.NewMemKVStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err := kv.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start %s store: %w", cfg.StoreBackend, err)
	}
	return kv, nil
}

func newEngine(kv store.KVStore, cfg *config.Config) (*escrow.Engine, error) {
	return escrow.NewEngine(kv,
		escrow.WithDefaultFee(cfg.DefaultFeePercentage),
		escrow.WithLogger(logger.Named("escrow")),
	)
}

// newDispatcher returns nil when no ledger is configured.
func newDispatcher(ctx context.Context, engine *escrow.Engine, cfg *config.Config) (*workers.TransferDispatcher, error) {
	if !cfg.DispatchEnabled() {
		return nil, nil
	}
	var archiver workers.Archiver
	if cfg.ArchiveEnabled() {
		client, err := utils.NewR2Client(ctx, cfg.R2())
		if err != nil {
			return nil, err
		}
		archiver = workers.NewSettlementArchiver(engine, client, cfg.R2BucketName, logger.Named("archiver"))
	} else {
		logger.L().Info("R2_BUCKET_NAME not set, settlement receipts are not archived")
	}

	return workers.NewTransferDispatcher(
		engine,
		ledger.NewClient(cfg.LedgerURL, cfg.LedgerToken, cfg.LedgerTimeout),
		archiver,
		workers.DispatcherConfig{
			Interval:      cfg.DispatchInterval,
			Batch:         cfg.DispatchBatch,
			MaxAttempts:   cfg.DispatchMaxAttempts,
			RetriesPerRun: 3,
		},
		logger.Named("dispatcher"),
	), nil
}

func stopStore(kv store.KVStore) {
	if err := kv.Stop(context.Background()); err != nil {
		logger.L().Error("failed to close store", zap.Error(err))
	}
}
