package cmd

import (
	"context"
	"os"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/internal/tracer"
	"github.com/Layr-Labs/storage-locator/pkg/blockState"
	"github.com/Layr-Labs/storage-locator/pkg/childTrieFetcher"
	"github.com/Layr-Labs/storage-locator/pkg/clients/substrate"
	"github.com/Layr-Labs/storage-locator/pkg/exporter"
	"github.com/Layr-Labs/storage-locator/pkg/keyEnumerator"
	"github.com/Layr-Labs/storage-locator/pkg/logger"
	"github.com/Layr-Labs/storage-locator/pkg/metrics"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/prometheus"
	"github.com/Layr-Labs/storage-locator/pkg/migrationLocator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagBlock          = "block"
	flagTargetVersion  = "target-version"
	flagOutput         = "output"
	flagChildrenOutput = "children-output"
	flagLevelDb        = "leveldb"
	flagFromBlock      = "from-block"
)

// services holds everything a command needs, built once from the global config.
type services struct {
	cfg        *config.Config
	logger     *zap.Logger
	sink       *metrics.MetricsSink
	client     *substrate.Client
	prober     *blockState.Prober
	locator    *migrationLocator.Locator
	enumerator *keyEnumerator.KeyEnumerator
	fetcher    *childTrieFetcher.ChildTrieFetcher
	exporter   *exporter.Exporter
}

// newServices wires the client and every component on top of it. The returned func flushes
// metrics and stops the tracer.
func newServices(ctx context.Context) (*services, func(), error) {
	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid configuration")
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize logger")
	}

	tracer.StartTracer(cfg.DataDogConfig.TracingConfig.Enabled)

	metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		tracer.StopTracer()
		return nil, nil, errors.Wrap(err, "failed to setup metrics clients")
	}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, metricsClients)
	if err != nil {
		tracer.StopTracer()
		return nil, nil, errors.Wrap(err, "failed to setup metrics sink")
	}
	if cfg.PrometheusConfig.Enabled {
		prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{Port: cfg.PrometheusConfig.Port}, l).Start(ctx)
	}

	l.Sugar().Infow("storage-locator",
		zap.String("rpcUrl", cfg.ChainConfig.RpcUrl),
		zap.String("pallet", cfg.ChainConfig.Pallet),
	)

	client := substrate.NewClient(substrate.ConvertGlobalConfigToSubstrateConfig(&cfg.ChainConfig), sink, l)

	prober, err := blockState.NewProber(blockState.ConvertGlobalConfigToProberConfig(&cfg.ChainConfig), client, sink, l)
	if err != nil {
		tracer.StopTracer()
		return nil, nil, err
	}

	enumerator := keyEnumerator.NewRootKeyEnumerator(keyEnumerator.ConvertGlobalConfigToKeyEnumeratorConfig(&cfg.StorageConfig), client, sink, l)
	fetcher := childTrieFetcher.NewChildTrieFetcher(childTrieFetcher.ConvertGlobalConfigToChildTrieFetcherConfig(&cfg.StorageConfig), client, sink, l)

	s := &services{
		cfg:        cfg,
		logger:     l,
		sink:       sink,
		client:     client,
		prober:     prober,
		locator:    migrationLocator.NewLocator(prober, sink, l),
		enumerator: enumerator,
		fetcher:    fetcher,
		exporter:   exporter.NewExporter(&exporter.ExporterConfig{ProgressWriter: os.Stderr}, client, enumerator, fetcher, l),
	}
	cleanup := func() {
		sink.Flush()
		tracer.StopTracer()
		_ = l.Sync()
	}
	return s, cleanup, nil
}

// optionalBlock returns the --block value, or nil for the latest block when it was not given.
func optionalBlock(cmd *cobra.Command, name string) (*uint32, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	n, err := cmd.Flags().GetUint32(name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// stopCondition turns --target-version into a Walk stop condition; a negative value never stops.
func stopCondition(cmd *cobra.Command) (migrationLocator.StopCondition, error) {
	target, err := cmd.Flags().GetInt(flagTargetVersion)
	if err != nil {
		return nil, err
	}
	if target < 0 {
		return migrationLocator.Never, nil
	}
	if target > 0xffff {
		return nil, errors.Errorf("--%s must fit in 16 bits, got %d", flagTargetVersion, target)
	}
	return migrationLocator.VersionReached(uint16(target)), nil
}

func createOutput(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	return f, nil
}
