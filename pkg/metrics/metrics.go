// Package metrics fans metric observations out to every configured metrics backend.
package metrics

import (
	"time"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/dogstatsd"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/metricsTypes"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/prometheus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type MetricsSinkConfig struct{}

type MetricsSink struct {
	config  *MetricsSinkConfig
	clients []metricsTypes.IMetricsClient
}

func NewMetricsSink(cfg *MetricsSinkConfig, clients []metricsTypes.IMetricsClient) (*MetricsSink, error) {
	return &MetricsSink{
		config:  cfg,
		clients: clients,
	}, nil
}

// NewNoopMetricsSink returns a sink with no backends, used by tests and when metrics are disabled.
func NewNoopMetricsSink() *MetricsSink {
	return &MetricsSink{config: &MetricsSinkConfig{}}
}

func (ms *MetricsSink) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) {
	for _, client := range ms.clients {
		_ = client.Incr(name, labels, value)
	}
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) {
	for _, client := range ms.clients {
		_ = client.Gauge(name, value, labels)
	}
}

func (ms *MetricsSink) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) {
	for _, client := range ms.clients {
		_ = client.Timing(name, value, labels)
	}
}

func (ms *MetricsSink) Flush() {
	for _, client := range ms.clients {
		client.Flush()
	}
}

// InitMetricsSinksFromConfig builds one client per enabled backend.
func InitMetricsSinksFromConfig(cfg *config.Config, l *zap.Logger) ([]metricsTypes.IMetricsClient, error) {
	clients := make([]metricsTypes.IMetricsClient, 0)

	if cfg.DataDogConfig.StatsdConfig.Enabled {
		s, err := dogstatsd.NewDogStatsdClient(cfg.DataDogConfig.StatsdConfig.Url)
		if err != nil {
			l.Sugar().Errorw("Failed to create statsd client", zap.Error(err))
			return nil, errors.Wrap(err, "failed to create statsd client")
		}
		clients = append(clients, dogstatsd.NewDogStatsdMetricsClient(s, l))
		l.Sugar().Infow("DataDog statsd metrics enabled")
	}

	if cfg.PrometheusConfig.Enabled {
		pc, err := prometheus.NewPrometheusMetricsClient(&prometheus.PrometheusMetricsConfig{
			Metrics: metricsTypes.MetricTypes,
		}, l)
		if err != nil {
			l.Sugar().Errorw("Failed to create prometheus client", zap.Error(err))
			return nil, errors.Wrap(err, "failed to create prometheus client")
		}
		clients = append(clients, pc)
		l.Sugar().Infow("Prometheus metrics enabled")
	}

	return clients, nil
}
