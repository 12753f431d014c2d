// Package migrationLocator finds the blocks where a pallet's storage version or migration flag
// changed, by bisecting over block heights.
//
// The search assumes that, walking backward from the starting block, once the state differs from
// the starting state it never becomes equal again. Storage versions only increase and the
// migration flag only toggles together with a version bump, so this holds for pallet storage.
package migrationLocator

import (
	"context"
	"time"

	"github.com/Layr-Labs/storage-locator/pkg/blockState"
	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/metrics"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/metricsTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// StateProber reads the pallet state at a block, or at the latest block when number is nil.
type StateProber interface {
	Probe(ctx context.Context, number *uint32) (*blockState.BlockState, error)
}

// StopCondition ends a Walk once it returns true for a boundary.
type StopCondition func(state *blockState.BlockState) bool

// VersionReached stops once the storage version is at or below target and no migration is running.
func VersionReached(target uint16) StopCondition {
	return func(state *blockState.BlockState) bool {
		return state.Version <= target && !state.MigrationInProgress
	}
}

// Never walks all the way back to the first transition.
func Never(state *blockState.BlockState) bool {
	return false
}

type Locator struct {
	prober  StateProber
	logger  *zap.Logger
	metrics *metrics.MetricsSink

	// OnBoundary, when set, is called with every boundary as soon as Walk finds it.
	OnBoundary func(state *blockState.BlockState)
}

func NewLocator(prober StateProber, ms *metrics.MetricsSink, l *zap.Logger) *Locator {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &Locator{
		prober:  prober,
		logger:  l,
		metrics: ms,
	}
}

func (l *Locator) probe(ctx context.Context, number uint32) (*blockState.BlockState, error) {
	return l.prober.Probe(ctx, &number)
}

// FindPreviousMigrationInfo returns the state of the block right before the most recent
// transition into initial's state. When no transition exists at or after block 0 the state at
// block 0 is returned, which is then equivalent to initial.
func (l *Locator) FindPreviousMigrationInfo(ctx context.Context, initial *blockState.BlockState) (result *blockState.BlockState, err error) {
	if initial.Identity.Number == 0 {
		return nil, chainErrors.InvalidRange("no blocks before block 0")
	}

	start := time.Now()
	steps := 0
	defer func() {
		hasError := "false"
		if err != nil {
			hasError = "true"
		}
		l.metrics.Timing(metricsTypes.Metric_Timing_LocatorDuration, time.Since(start), []metricsTypes.MetricsLabel{
			{Name: "hasError", Value: hasError},
		})
		l.metrics.Gauge(metricsTypes.Metric_Gauge_BisectionSteps, float64(steps), nil)
	}()

	lower := uint32(0)
	upper := initial.Identity.Number

	var mid uint32
	var atMid *blockState.BlockState
	for {
		mid = lower + (upper-lower)/2
		atMid, err = l.probe(ctx, mid)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to probe block %d", mid)
		}
		steps++

		if atMid.Equivalent(initial) {
			upper = mid
		} else {
			lower = mid
		}
		l.logger.Sugar().Debugw("Bisection step",
			zap.Uint32("lower", lower),
			zap.Uint32("upper", upper),
			zap.Uint32("mid", mid),
			zap.Uint16("version", atMid.Version),
			zap.Bool("migrationInProgress", atMid.MigrationInProgress),
		)
		if upper-lower <= 1 {
			break
		}
	}

	if !atMid.Equivalent(initial) {
		return atMid, nil
	}
	if mid == 0 {
		return atMid, nil
	}
	result, err = l.probe(ctx, mid-1)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to probe block %d", mid-1)
	}
	steps++
	return result, nil
}

// Walk starts at block from (the latest block when nil) and repeatedly locates the previous
// boundary, returning boundaries newest first. It stops after the first boundary matching stop,
// at block 0, or when no older transition exists.
func (l *Locator) Walk(ctx context.Context, from *uint32, stop StopCondition) ([]*blockState.BlockState, error) {
	if stop == nil {
		stop = Never
	}
	current, err := l.prober.Probe(ctx, from)
	if err != nil {
		return nil, errors.Wrap(err, "failed to probe starting block")
	}
	l.logger.Sugar().Infow("Walking migration boundaries",
		zap.Uint32("fromBlock", current.Identity.Number),
		zap.Uint16("version", current.Version),
		zap.Bool("migrationInProgress", current.MigrationInProgress),
	)

	boundaries := make([]*blockState.BlockState, 0)
	for current.Identity.Number > 0 {
		previous, err := l.FindPreviousMigrationInfo(ctx, current)
		if err != nil {
			return nil, err
		}
		if previous.Equivalent(current) {
			break
		}
		boundaries = append(boundaries, previous)
		if l.OnBoundary != nil {
			l.OnBoundary(previous)
		}
		if stop(previous) {
			break
		}
		current = previous
	}
	return boundaries, nil
}
