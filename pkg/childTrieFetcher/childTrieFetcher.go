// Package childTrieFetcher reads the contents of every child trie referenced from the root trie.
//
// Namespaces and the member reads inside them run concurrently; a single weighted semaphore
// shared by all of them bounds how many requests are outstanding against the node at once.
package childTrieFetcher

import (
	"context"
	"time"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/keyEnumerator"
	"github.com/Layr-Labs/storage-locator/pkg/metrics"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/metricsTypes"
	"github.com/Layr-Labs/storage-locator/pkg/storageKeys"
	"github.com/Layr-Labs/storage-locator/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type ChildTrieFetcherConfig struct {
	// MaxConcurrency caps the number of requests in flight across all namespaces
	MaxConcurrency int
	Enumerator     *keyEnumerator.KeyEnumeratorConfig
}

func DefaultChildTrieFetcherConfig() *ChildTrieFetcherConfig {
	return &ChildTrieFetcherConfig{
		MaxConcurrency: config.DefaultMaxConcurrency,
		Enumerator:     keyEnumerator.DefaultKeyEnumeratorConfig(),
	}
}

func ConvertGlobalConfigToChildTrieFetcherConfig(cfg *config.StorageConfig) *ChildTrieFetcherConfig {
	c := DefaultChildTrieFetcherConfig()
	if cfg.MaxConcurrency > 0 {
		c.MaxConcurrency = cfg.MaxConcurrency
	}
	c.Enumerator = keyEnumerator.ConvertGlobalConfigToKeyEnumeratorConfig(cfg)
	return c
}

type ChildTrieFetcher struct {
	config   *ChildTrieFetcherConfig
	querier  chainTypes.ChainQuerier
	sem      *semaphore.Weighted
	logger   *zap.Logger
	metrics  *metrics.MetricsSink
	progress func()
}

func NewChildTrieFetcher(cfg *ChildTrieFetcherConfig, q chainTypes.ChainQuerier, ms *metrics.MetricsSink, l *zap.Logger) *ChildTrieFetcher {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = config.DefaultMaxConcurrency
	}
	if cfg.Enumerator == nil {
		cfg.Enumerator = keyEnumerator.DefaultKeyEnumeratorConfig()
	}
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &ChildTrieFetcher{
		config:  cfg,
		querier: q,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger:  l,
		metrics: ms,
	}
}

// WithProgress returns a fetcher sharing the same concurrency budget that calls fn after every
// value read.
func (f *ChildTrieFetcher) WithProgress(fn func()) *ChildTrieFetcher {
	c := *f
	c.progress = fn
	return &c
}

func (f *ChildTrieFetcher) tick() {
	if f.progress != nil {
		f.progress()
	}
}

// bounded runs a single request while holding one unit of the shared semaphore.
func bounded[T any](ctx context.Context, sem *semaphore.Weighted, fn func() (T, error)) (T, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	defer sem.Release(1)
	return fn()
}

func (f *ChildTrieFetcher) childLister(namespace []byte) keyEnumerator.PageLister {
	list := keyEnumerator.ChildLister(f.querier, namespace)
	return func(ctx context.Context, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
		return bounded(ctx, f.sem, func() ([]chainTypes.StorageKey, error) {
			return list(ctx, prefix, pageSize, cursor, at)
		})
	}
}

// FetchAllChildren fetches every child trie whose namespace appears in rootKeys, at block at.
// Namespaces are kept in rootKeys order and entries in listing order. Any failure cancels the
// remaining work and no partial map is returned.
func (f *ChildTrieFetcher) FetchAllChildren(ctx context.Context, rootKeys []chainTypes.StorageKey, at *common.Hash) (result *ChildTrieMap, err error) {
	start := time.Now()
	defer func() {
		f.metrics.Timing(metricsTypes.Metric_Timing_ChildTrieFetch, time.Since(start), []metricsTypes.MetricsLabel{
			{Name: "hasError", Value: boolLabel(err != nil)},
		})
	}()

	namespaces := utils.Filter(rootKeys, func(k chainTypes.StorageKey) bool {
		return storageKeys.IsChildTrieKey(k)
	})
	f.logger.Sugar().Debugw("Fetching child tries", zap.Int("namespaces", len(namespaces)))

	tries := make([][]*chainTypes.StorageEntry, len(namespaces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.MaxConcurrency)
	for i, ns := range namespaces {
		g.Go(func() error {
			entries, err := f.fetchChild(gctx, ns, at)
			if err != nil {
				return errors.Wrapf(err, "failed to fetch child trie %s", hexutil.Encode(ns))
			}
			tries[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.Sugar().Errorw("Failed to fetch child tries", zap.Error(err))
		return nil, err
	}

	result = NewChildTrieMap()
	for i, ns := range namespaces {
		result.Set(ns, tries[i])
	}
	return result, nil
}

func (f *ChildTrieFetcher) fetchChild(ctx context.Context, namespace []byte, at *common.Hash) ([]*chainTypes.StorageEntry, error) {
	enumeratorConfig := *f.config.Enumerator
	enumerator := keyEnumerator.NewKeyEnumerator(&enumeratorConfig, f.childLister(namespace), keyEnumerator.Scope_Child, f.metrics, f.logger)

	keys, err := enumerator.Enumerate(ctx, []byte{}, at)
	if err != nil {
		return nil, err
	}
	return f.readAll(ctx, keys, func(ctx context.Context, key []byte) (*hexutil.Bytes, error) {
		return f.querier.ReadChildStorage(ctx, namespace, key, at)
	})
}

// FetchValues reads the root trie value of every key at block at, preserving key order.
func (f *ChildTrieFetcher) FetchValues(ctx context.Context, keys []chainTypes.StorageKey, at *common.Hash) ([]*chainTypes.StorageEntry, error) {
	entries, err := f.readAll(ctx, keys, func(ctx context.Context, key []byte) (*hexutil.Bytes, error) {
		return f.querier.ReadStorage(ctx, key, at)
	})
	if err != nil {
		f.logger.Sugar().Errorw("Failed to fetch storage values", zap.Int("keys", len(keys)), zap.Error(err))
		return nil, err
	}
	return entries, nil
}

func (f *ChildTrieFetcher) readAll(
	ctx context.Context,
	keys []chainTypes.StorageKey,
	read func(ctx context.Context, key []byte) (*hexutil.Bytes, error),
) ([]*chainTypes.StorageEntry, error) {
	entries := utils.Map(keys, func(k chainTypes.StorageKey, i uint64) *chainTypes.StorageEntry {
		return &chainTypes.StorageEntry{Key: k}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.MaxConcurrency)
	for _, entry := range entries {
		g.Go(func() error {
			value, err := bounded(gctx, f.sem, func() (*hexutil.Bytes, error) {
				return read(gctx, entry.Key)
			})
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", hexutil.Encode(entry.Key))
			}
			entry.Value = value
			f.tick()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
