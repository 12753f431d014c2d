package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
	Flush()
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_RpcRequest     = "rpc.request"
	Metric_Incr_BlockProbed    = "probe.count"
	Metric_Incr_PageFetched    = "enumerator.pages"
	Metric_Incr_BlockHashCache = "probe.blockHashCache"

	Metric_Gauge_ChainHeadHeight = "chain.head.height"
	Metric_Gauge_BisectionSteps  = "locator.bisection.steps"

	Metric_Timing_RpcDuration     = "rpc.duration"
	Metric_Timing_LocatorDuration = "locator.duration"
	Metric_Timing_ChildTrieFetch  = "childTries.fetch.duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name: Metric_Incr_RpcRequest,
			Labels: []string{
				"method",
				"status",
			},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_BlockProbed,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name: Metric_Incr_PageFetched,
			Labels: []string{
				"scope",
			},
		},
		MetricsTypeConfig{
			Name: Metric_Incr_BlockHashCache,
			Labels: []string{
				"result",
			},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_ChainHeadHeight,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_BisectionSteps,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name: Metric_Timing_RpcDuration,
			Labels: []string{
				"method",
				"status",
			},
		},
		MetricsTypeConfig{
			Name: Metric_Timing_LocatorDuration,
			Labels: []string{
				"hasError",
			},
		},
		MetricsTypeConfig{
			Name: Metric_Timing_ChildTrieFetch,
			Labels: []string{
				"hasError",
			},
		},
	},
}
