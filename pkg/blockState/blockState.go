// Package blockState reads the storage version and migration flag of the monitored pallet at a
// single block.
package blockState

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/metrics"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/metricsTypes"
	"github.com/Layr-Labs/storage-locator/pkg/scale"
	"github.com/Layr-Labs/storage-locator/pkg/storageKeys"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BlockState is the pallet's storage version and migration flag at one block.
type BlockState struct {
	Identity            chainTypes.BlockIdentity `json:"block"`
	Version             uint16                   `json:"version"`
	MigrationInProgress bool                     `json:"migrationInProgress"`
}

// Equivalent compares the observed state only; the block identity is ignored.
func (s *BlockState) Equivalent(other *BlockState) bool {
	return s.Version == other.Version && s.MigrationInProgress == other.MigrationInProgress
}

func (s *BlockState) String() string {
	return fmt.Sprintf("block %s: version=%d migrationInProgress=%t", s.Identity, s.Version, s.MigrationInProgress)
}

type ProberConfig struct {
	Pallet string
	// BlockHashCacheSize is the number of resolved block hashes kept; 0 disables the cache
	BlockHashCacheSize int
}

func DefaultProberConfig() *ProberConfig {
	return &ProberConfig{
		Pallet:             storageKeys.DefaultPallet,
		BlockHashCacheSize: config.DefaultBlockHashCacheSize,
	}
}

func ConvertGlobalConfigToProberConfig(cfg *config.ChainConfig) *ProberConfig {
	return &ProberConfig{
		Pallet:             cfg.Pallet,
		BlockHashCacheSize: cfg.BlockHashCacheSize,
	}
}

type Prober struct {
	config  *ProberConfig
	querier chainTypes.ChainQuerier
	keys    *storageKeys.PalletKeys
	hashes  *lru.Cache[uint32, common.Hash]
	logger  *zap.Logger
	metrics *metrics.MetricsSink
}

func NewProber(cfg *ProberConfig, q chainTypes.ChainQuerier, ms *metrics.MetricsSink, l *zap.Logger) (*Prober, error) {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	p := &Prober{
		config:  cfg,
		querier: q,
		keys:    storageKeys.NewPalletKeys(cfg.Pallet),
		logger:  l,
		metrics: ms,
	}
	if cfg.BlockHashCacheSize > 0 {
		cache, err := lru.New[uint32, common.Hash](cfg.BlockHashCacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create block hash cache")
		}
		p.hashes = cache
	}
	return p, nil
}

// Keys returns the storage keys of the monitored pallet.
func (p *Prober) Keys() *storageKeys.PalletKeys {
	return p.keys
}

// LatestBlockNumber returns the chain head height.
func (p *Prober) LatestBlockNumber(ctx context.Context) (uint32, error) {
	number, err := p.querier.LatestBlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get latest block number")
	}
	p.metrics.Gauge(metricsTypes.Metric_Gauge_ChainHeadHeight, float64(number), nil)
	return number, nil
}

// BlockHashAt resolves number to a hash, consulting the cache first.
func (p *Prober) BlockHashAt(ctx context.Context, number uint32) (common.Hash, error) {
	if p.hashes != nil {
		if hash, ok := p.hashes.Get(number); ok {
			p.metrics.Incr(metricsTypes.Metric_Incr_BlockHashCache, []metricsTypes.MetricsLabel{
				{Name: "result", Value: "hit"},
			}, 1)
			return hash, nil
		}
		p.metrics.Incr(metricsTypes.Metric_Incr_BlockHashCache, []metricsTypes.MetricsLabel{
			{Name: "result", Value: "miss"},
		}, 1)
	}
	hash, err := p.querier.BlockHashAt(ctx, number)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "failed to resolve block %d", number)
	}
	if p.hashes != nil {
		p.hashes.Add(number, hash)
	}
	return hash, nil
}

// Probe returns the pallet state at block number, or at the latest block when number is nil.
// The version and the migration flag are read concurrently against the same resolved hash.
func (p *Prober) Probe(ctx context.Context, number *uint32) (*BlockState, error) {
	var n uint32
	if number == nil {
		latest, err := p.LatestBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		n = latest
	} else {
		n = *number
	}

	hash, err := p.BlockHashAt(ctx, n)
	if err != nil {
		return nil, err
	}

	var version uint16
	var migrating bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := p.querier.ReadStorage(gctx, p.keys.StorageVersion, &hash)
		if err != nil {
			return errors.Wrap(err, "failed to read storage version")
		}
		if raw == nil {
			return chainErrors.NotFound("%s storage version at block %d", p.keys.Pallet, n)
		}
		v, err := scale.DecodeU16(*raw)
		if err != nil {
			return errors.Wrapf(err, "storage version %s at block %d", hexutil.Encode(*raw), n)
		}
		version = v
		return nil
	})
	g.Go(func() error {
		raw, err := p.querier.ReadStorage(gctx, p.keys.MigrationInProgress, &hash)
		if err != nil {
			return errors.Wrap(err, "failed to read migration flag")
		}
		migrating = raw != nil
		return nil
	})
	if err := g.Wait(); err != nil {
		p.logger.Sugar().Errorw("Failed to probe block",
			zap.Uint32("blockNumber", n),
			zap.Error(err),
		)
		return nil, err
	}

	p.metrics.Incr(metricsTypes.Metric_Incr_BlockProbed, nil, 1)
	state := &BlockState{
		Identity:            chainTypes.BlockIdentity{Number: n, Hash: hash},
		Version:             version,
		MigrationInProgress: migrating,
	}
	p.logger.Sugar().Debugw("Probed block",
		zap.Uint32("blockNumber", n),
		zap.String("blockHash", hash.Hex()),
		zap.Uint16("version", version),
		zap.Bool("migrationInProgress", migrating),
	)
	return state, nil
}

// ProbeNumber probes a specific height.
func (p *Prober) ProbeNumber(ctx context.Context, number uint32) (*BlockState, error) {
	return p.Probe(ctx, &number)
}
