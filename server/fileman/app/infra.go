package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"files_manager/server/common/infra/cache"
	"files_manager/server/common/infra/db"
	"files_manager/server/common/infra/mq"
	"files_manager/server/common/infra/object"
	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/queue"
	"files_manager/server/fileman/worker"
)

const mirrorPrefix = "thumbnails"

// closers runs cleanup in reverse registration order.
type closers []func() error

func (cs *closers) add(fn func() error) {
	*cs = append(*cs, fn)
}

func (cs closers) closeAll() {
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i](); err != nil {
			commonlog.Warnf("close resource: %v", err)
		}
	}
}

func openPool(ctx context.Context, cfg Config, cs *closers) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}
	cs.add(func() error { pool.Close(); return nil })
	if err := db.EnsureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pool, nil
}

func openStore(ctx context.Context, cfg Config, cs *closers) (cache.Store, error) {
	if cfg.CacheDriver == CacheDriverMemory {
		commonlog.Warnf("CACHE_DRIVER=memory: sessions live in this process only")
		return cache.NewMemoryStore(), nil
	}
	client := cache.NewClient(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Timeout:  cfg.RedisTimeout,
	})
	store := cache.NewRedisStore(client)
	cs.add(store.Close)
	if err := cache.Ping(ctx, client); err != nil {
		// Sessions fail closed until redis answers.
		commonlog.Warnf("redis %s not reachable yet: %v", cfg.RedisAddr, err)
	}
	return store, nil
}

func openQueue(cfg Config, name string, prefetch int, cs *closers) (queue.Queue, error) {
	if cfg.QueueDriver == QueueDriverMemory {
		q := queue.NewMemoryQueue(0, cfg.Retry)
		cs.add(q.Close)
		return q, nil
	}
	conn, err := mq.NewConnection(cfg.LavinMQURL, name)
	if err != nil {
		return nil, fmt.Errorf("initialize lavinmq: %w", err)
	}
	cs.add(conn.Close)
	q, err := queue.NewAMQPQueue(conn, cfg.Retry, prefetch)
	if err != nil {
		return nil, fmt.Errorf("initialize thumbnail queue: %w", err)
	}
	cs.add(q.Close)
	return q, nil
}

func newSink(ctx context.Context, cfg Config) (worker.Sink, error) {
	if cfg.MirrorBucket == "" {
		return worker.FileSink{}, nil
	}
	client, err := object.NewClient(object.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize minio: %w", err)
	}
	if err := object.EnsureBucket(ctx, client, cfg.MirrorBucket); err != nil {
		return nil, fmt.Errorf("ensure minio bucket: %w", err)
	}
	return worker.MirrorSink{
		Primary: worker.FileSink{},
		Mirror: &worker.ObjectSink{
			Client: client,
			Bucket: cfg.MirrorBucket,
			Root:   cfg.FolderPath,
			Prefix: mirrorPrefix,
		},
	}, nil
}
