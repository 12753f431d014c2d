// Package exporter writes chain storage, change sets, blocks and migration boundaries to files.
package exporter

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/Layr-Labs/storage-locator/pkg/blockState"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/childTrieFetcher"
	"github.com/Layr-Labs/storage-locator/pkg/keyEnumerator"
	"github.com/Layr-Labs/storage-locator/pkg/snapshotStore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type ExporterConfig struct {
	// ProgressWriter receives a progress bar while values are fetched; nil disables it
	ProgressWriter io.Writer
}

type Exporter struct {
	config     *ExporterConfig
	querier    chainTypes.HistoryQuerier
	enumerator *keyEnumerator.KeyEnumerator
	fetcher    *childTrieFetcher.ChildTrieFetcher
	logger     *zap.Logger
}

func NewExporter(
	cfg *ExporterConfig,
	q chainTypes.HistoryQuerier,
	enumerator *keyEnumerator.KeyEnumerator,
	fetcher *childTrieFetcher.ChildTrieFetcher,
	l *zap.Logger,
) *Exporter {
	return &Exporter{
		config:     cfg,
		querier:    q,
		enumerator: enumerator,
		fetcher:    fetcher,
		logger:     l,
	}
}

func newRunLogger(l *zap.Logger, operation string) *zap.Logger {
	return l.With(zap.String("runId", uuid.New().String()), zap.String("operation", operation))
}

// ResolveBlock pins number, or the latest block when nil, to its hash.
func (e *Exporter) ResolveBlock(ctx context.Context, number *uint32) (chainTypes.BlockIdentity, error) {
	var n uint32
	if number != nil {
		n = *number
	} else {
		latest, err := e.querier.LatestBlockNumber(ctx)
		if err != nil {
			return chainTypes.BlockIdentity{}, errors.Wrap(err, "failed to get latest block number")
		}
		n = latest
	}
	hash, err := e.querier.BlockHashAt(ctx, n)
	if err != nil {
		return chainTypes.BlockIdentity{}, errors.Wrapf(err, "failed to resolve block %d", n)
	}
	return chainTypes.BlockIdentity{Number: n, Hash: hash}, nil
}

// Snapshot reads every root entry at the block, and every child trie when withChildren is set.
func (e *Exporter) Snapshot(ctx context.Context, number *uint32, withChildren bool) (*snapshotStore.Snapshot, error) {
	l := newRunLogger(e.logger, "snapshot")

	block, err := e.ResolveBlock(ctx, number)
	if err != nil {
		return nil, err
	}
	l.Sugar().Infow("Taking storage snapshot", zap.Uint32("blockNumber", block.Number), zap.String("blockHash", block.Hash.Hex()))

	keys, err := e.enumerator.Enumerate(ctx, []byte{}, &block.Hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate storage keys")
	}
	l.Sugar().Infow("Enumerated storage keys", zap.Int("keys", len(keys)))

	fetcher := e.fetcher
	if e.config.ProgressWriter != nil {
		bar := progressbar.NewOptions(len(keys),
			progressbar.OptionSetWriter(e.config.ProgressWriter),
			progressbar.OptionSetDescription("fetching values"),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				_, _ = io.WriteString(e.config.ProgressWriter, "\n")
			}),
		)
		defer bar.Close()
		fetcher = fetcher.WithProgress(func() {
			_ = bar.Add(1)
		})
	}

	entries, err := fetcher.FetchValues(ctx, keys, &block.Hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch storage values")
	}

	snapshot := &snapshotStore.Snapshot{Block: block, Entries: entries}
	if withChildren {
		snapshot.ChildTries, err = e.fetcher.FetchAllChildren(ctx, keys, &block.Hash)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch child tries")
		}
		l.Sugar().Infow("Fetched child tries", zap.Int("namespaces", snapshot.ChildTries.Len()))
	}
	return snapshot, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to write JSON")
	}
	return nil
}

// WriteStorage writes snapshot entries as a JSON array of {key, value} objects.
func WriteStorage(w io.Writer, snapshot *snapshotStore.Snapshot) error {
	return writeJSON(w, snapshot.Entries)
}

// WriteChildTries writes the snapshot's child tries as a JSON object keyed by namespace.
func WriteChildTries(w io.Writer, snapshot *snapshotStore.Snapshot) error {
	if snapshot.ChildTries == nil {
		return writeJSON(w, childTrieFetcher.NewChildTrieMap())
	}
	return writeJSON(w, snapshot.ChildTries)
}

// ExportChangeSets writes every change to the keys present at the head, from block fromBlock up
// to the head.
func (e *Exporter) ExportChangeSets(ctx context.Context, fromBlock uint32, w io.Writer) ([]*chainTypes.ChangeSet, error) {
	l := newRunLogger(e.logger, "changeSets")

	from, err := e.ResolveBlock(ctx, &fromBlock)
	if err != nil {
		return nil, err
	}
	keys, err := e.enumerator.Enumerate(ctx, []byte{}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate storage keys")
	}
	changeSets, err := e.querier.QueryStorage(ctx, keys, from.Hash, nil)
	if err != nil {
		l.Sugar().Errorw("Failed to query storage", zap.Uint32("fromBlock", fromBlock), zap.Error(err))
		return nil, errors.Wrap(err, "failed to query storage changes")
	}
	l.Sugar().Infow("Queried change sets",
		zap.Uint32("fromBlock", fromBlock),
		zap.Int("keys", len(keys)),
		zap.Int("changeSets", len(changeSets)),
	)
	return changeSets, writeJSON(w, changeSets)
}

// ExportBlock writes the block at number, or the latest block when nil.
func (e *Exporter) ExportBlock(ctx context.Context, number *uint32, w io.Writer) (*chainTypes.SignedBlock, error) {
	l := newRunLogger(e.logger, "block")

	block, err := e.ResolveBlock(ctx, number)
	if err != nil {
		return nil, err
	}
	signed, err := e.querier.GetBlock(ctx, &block.Hash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get block %d", block.Number)
	}
	l.Sugar().Infow("Fetched block",
		zap.Uint32("blockNumber", block.Number),
		zap.Int("extrinsics", len(signed.Block.Extrinsics)),
	)
	return signed, writeJSON(w, signed)
}

// TransitionRow is one migration boundary as written to CSV.
type TransitionRow struct {
	BlockNumber         uint32 `csv:"block_number"`
	BlockHash           string `csv:"block_hash"`
	Version             uint16 `csv:"version"`
	MigrationInProgress bool   `csv:"migration_in_progress"`
	Timestamp           string `csv:"timestamp"`
}

// TransitionRows pairs every boundary with the time its block was produced.
func (e *Exporter) TransitionRows(ctx context.Context, states []*blockState.BlockState) ([]*TransitionRow, error) {
	rows := make([]*TransitionRow, 0, len(states))
	for _, s := range states {
		ts, err := e.querier.Timestamp(ctx, s.Identity.Hash)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read timestamp of block %d", s.Identity.Number)
		}
		rows = append(rows, &TransitionRow{
			BlockNumber:         s.Identity.Number,
			BlockHash:           s.Identity.Hash.Hex(),
			Version:             s.Version,
			MigrationInProgress: s.MigrationInProgress,
			Timestamp:           ts.UTC().Format(time.RFC3339),
		})
	}
	return rows, nil
}

// ExportTransitions writes boundaries as CSV.
func (e *Exporter) ExportTransitions(ctx context.Context, states []*blockState.BlockState, w io.Writer) error {
	rows, err := e.TransitionRows(ctx, states)
	if err != nil {
		return err
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return errors.Wrap(err, "failed to write CSV")
	}
	return nil
}

// BlockTime returns when the block with hash was produced.
func (e *Exporter) BlockTime(ctx context.Context, hash common.Hash) (time.Time, error) {
	return e.querier.Timestamp(ctx, hash)
}
