// Package keyEnumerator lists every storage key under a prefix by walking the node's paged key
// listing with a cursor.
package keyEnumerator

import (
	"bytes"
	"context"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/metrics"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/metricsTypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	Scope_Root  = "root"
	Scope_Child = "child"
)

// HasMore decides, from the size of the page just received, whether another page is requested.
type HasMore func(pageLen int, pageSize int) bool

// FullPageHasMore keeps going while pages come back full. A result that is an exact multiple of
// the page size costs one extra, empty, round trip.
func FullPageHasMore(pageLen int, pageSize int) bool {
	return pageLen >= pageSize
}

// OverfullPageHasMore only continues when a page is longer than requested. Nodes never return
// more than pageSize keys, so this stops after the first page; it exists to reproduce output of
// older tooling.
func OverfullPageHasMore(pageLen int, pageSize int) bool {
	return pageLen > pageSize
}

// PageLister fetches up to pageSize keys under prefix that sort strictly after cursor.
type PageLister func(ctx context.Context, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error)

// RootLister lists keys of the root trie.
func RootLister(q chainTypes.ChainQuerier) PageLister {
	return q.ListKeysPaged
}

// ChildLister lists keys of the child trie addressed by namespace.
func ChildLister(q chainTypes.ChainQuerier, namespace []byte) PageLister {
	return func(ctx context.Context, prefix []byte, pageSize uint32, cursor []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
		return q.ListChildKeysPaged(ctx, namespace, prefix, pageSize, cursor, at)
	}
}

type KeyEnumeratorConfig struct {
	PageSize int
	HasMore  HasMore
}

func DefaultKeyEnumeratorConfig() *KeyEnumeratorConfig {
	return &KeyEnumeratorConfig{
		PageSize: config.DefaultPageSize,
		HasMore:  FullPageHasMore,
	}
}

func ConvertGlobalConfigToKeyEnumeratorConfig(cfg *config.StorageConfig) *KeyEnumeratorConfig {
	c := DefaultKeyEnumeratorConfig()
	if cfg.PageSize > 0 {
		c.PageSize = cfg.PageSize
	}
	if cfg.LegacyPaging {
		c.HasMore = OverfullPageHasMore
	}
	return c
}

type KeyEnumerator struct {
	config  *KeyEnumeratorConfig
	lister  PageLister
	scope   string
	logger  *zap.Logger
	metrics *metrics.MetricsSink
}

func NewKeyEnumerator(cfg *KeyEnumeratorConfig, lister PageLister, scope string, ms *metrics.MetricsSink, l *zap.Logger) *KeyEnumerator {
	if cfg.PageSize < 1 {
		cfg.PageSize = config.DefaultPageSize
	}
	if cfg.HasMore == nil {
		cfg.HasMore = FullPageHasMore
	}
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &KeyEnumerator{
		config:  cfg,
		lister:  lister,
		scope:   scope,
		logger:  l,
		metrics: ms,
	}
}

// NewRootKeyEnumerator enumerates the root trie of q.
func NewRootKeyEnumerator(cfg *KeyEnumeratorConfig, q chainTypes.ChainQuerier, ms *metrics.MetricsSink, l *zap.Logger) *KeyEnumerator {
	return NewKeyEnumerator(cfg, RootLister(q), Scope_Root, ms, l)
}

// ForChild returns an enumerator with the same settings over the child trie at namespace.
func (e *KeyEnumerator) ForChild(q chainTypes.ChainQuerier, namespace []byte) *KeyEnumerator {
	cfg := *e.config
	return NewKeyEnumerator(&cfg, ChildLister(q, namespace), Scope_Child, e.metrics, e.logger)
}

func (e *KeyEnumerator) PageSize() int {
	return e.config.PageSize
}

// Enumerate returns every key under prefix at block at, in the order the node lists them.
// Nothing is returned unless every page succeeds.
func (e *KeyEnumerator) Enumerate(ctx context.Context, prefix []byte, at *common.Hash) ([]chainTypes.StorageKey, error) {
	pageSize := e.config.PageSize
	keys := make([]chainTypes.StorageKey, 0)

	var cursor []byte
	pages := 0
	for {
		page, err := e.lister(ctx, prefix, uint32(pageSize), cursor, at)
		if err != nil {
			e.logger.Sugar().Errorw("Failed to fetch keys page",
				zap.String("scope", e.scope),
				zap.Int("page", pages),
				zap.Error(err),
			)
			return nil, errors.Wrapf(err, "failed to list keys page %d", pages)
		}
		pages++
		e.metrics.Incr(metricsTypes.Metric_Incr_PageFetched, []metricsTypes.MetricsLabel{
			{Name: "scope", Value: e.scope},
		}, 1)

		if cursor != nil && len(page) > 0 && bytes.Compare(page[0], cursor) <= 0 {
			err := errors.Errorf("page %d starts at %s which does not sort after cursor %s",
				pages, hexutil.Encode(page[0]), hexutil.Encode(cursor))
			return nil, chainErrors.WithKind(chainErrors.ErrRpcFailure, err)
		}

		keys = append(keys, page...)
		if !e.config.HasMore(len(page), pageSize) || len(page) == 0 {
			break
		}
		cursor = page[len(page)-1]
	}

	e.logger.Sugar().Debugw("Enumerated keys",
		zap.String("scope", e.scope),
		zap.String("prefix", hexutil.Encode(prefix)),
		zap.Int("keys", len(keys)),
		zap.Int("pages", pages),
	)
	return keys, nil
}
