package dogstatsd

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/metricsTypes"
	"go.uber.org/zap"
)

type DogStatsdMetricsClient struct {
	client statsd.ClientInterface
	logger *zap.Logger
}

func NewDogStatsdMetricsClient(client statsd.ClientInterface, l *zap.Logger) *DogStatsdMetricsClient {
	return &DogStatsdMetricsClient{
		client: client,
		logger: l,
	}
}

// NewDogStatsdClient dials a statsd agent at addr. An empty addr lets the library fall back to
// DD_AGENT_HOST / DD_DOGSTATSD_PORT.
func NewDogStatsdClient(addr string) (*statsd.Client, error) {
	return statsd.New(addr, statsd.WithNamespace("storage_locator."))
}

func formatTags(labels []metricsTypes.MetricsLabel) []string {
	tags := make([]string, 0, len(labels))
	for _, l := range labels {
		tags = append(tags, fmt.Sprintf("%s:%s", l.Name, l.Value))
	}
	return tags
}

func (dsc *DogStatsdMetricsClient) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	return dsc.client.Count(name, int64(value), formatTags(labels), 1)
}

func (dsc *DogStatsdMetricsClient) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	return dsc.client.Gauge(name, value, formatTags(labels), 1)
}

func (dsc *DogStatsdMetricsClient) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	return dsc.client.Timing(name, value, formatTags(labels), 1)
}

func (dsc *DogStatsdMetricsClient) Flush() {
	if err := dsc.client.Flush(); err != nil {
		dsc.logger.Sugar().Warnw("Failed to flush statsd client", zap.Error(err))
	}
}
