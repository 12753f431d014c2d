package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "STORAGE_LOCATOR"

const (
	Debug = "debug"

	ChainRpcUrl             = "chain.rpc-url"
	ChainRequestTimeout     = "chain.request-timeout"
	ChainPallet             = "chain.pallet"
	ChainBlockHashCacheSize = "chain.block-hash-cache-size"

	StoragePageSize       = "storage.page-size"
	StorageMaxConcurrency = "storage.max-concurrency"
	StorageLegacyPaging   = "storage.legacy-paging"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	DataDogStatsdEnabled  = "datadog.statsd.enabled"
	DataDogStatsdUrl      = "datadog.statsd.url"
	DataDogTracingEnabled = "datadog.tracing.enabled"
)

const (
	DefaultRpcUrl             = "http://127.0.0.1:9944"
	DefaultRequestTimeout     = 30
	DefaultBlockHashCacheSize = 1024
	DefaultPageSize           = 100
	DefaultMaxConcurrency     = 16
	DefaultPrometheusPort     = 2112
)

type Config struct {
	Debug            bool
	ChainConfig      ChainConfig
	StorageConfig    StorageConfig
	PrometheusConfig PrometheusConfig
	DataDogConfig    DataDogConfig
}

type ChainConfig struct {
	RpcUrl             string
	RequestTimeout     time.Duration
	Pallet             string
	BlockHashCacheSize int
}

type StorageConfig struct {
	PageSize       int
	MaxConcurrency int
	// LegacyPaging only requests another page when the last one was longer than the page size
	LegacyPaging   bool
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type DataDogConfig struct {
	StatsdConfig  StatsdConfig
	TracingConfig TracingConfig
}

type StatsdConfig struct {
	Enabled bool
	Url     string
}

type TracingConfig struct {
	Enabled bool
}

// KebabToSnakeCase turns a flag name such as "chain.rpc-url" into the viper key "chain.rpc_url".
func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}

func intOrDefault(key string, defaultValue int) int {
	if !viper.IsSet(normalizeFlagName(key)) {
		return defaultValue
	}
	return viper.GetInt(normalizeFlagName(key))
}

// NewConfig reads every bound flag / environment variable from viper.
func NewConfig() *Config {
	rpcUrl := viper.GetString(normalizeFlagName(ChainRpcUrl))
	if rpcUrl == "" {
		rpcUrl = DefaultRpcUrl
	}

	return &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),

		ChainConfig: ChainConfig{
			RpcUrl:             rpcUrl,
			RequestTimeout:     time.Duration(intOrDefault(ChainRequestTimeout, DefaultRequestTimeout)) * time.Second,
			Pallet:             viper.GetString(normalizeFlagName(ChainPallet)),
			BlockHashCacheSize: intOrDefault(ChainBlockHashCacheSize, DefaultBlockHashCacheSize),
		},

		StorageConfig: StorageConfig{
			PageSize:       intOrDefault(StoragePageSize, DefaultPageSize),
			MaxConcurrency: intOrDefault(StorageMaxConcurrency, DefaultMaxConcurrency),
			LegacyPaging:   viper.GetBool(normalizeFlagName(StorageLegacyPaging)),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    intOrDefault(PrometheusPort, DefaultPrometheusPort),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled: viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:     viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
			},
			TracingConfig: TracingConfig{
				Enabled: viper.GetBool(normalizeFlagName(DataDogTracingEnabled)),
			},
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ChainConfig.RpcUrl)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", ChainRpcUrl, c.ChainConfig.RpcUrl, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got '%s'", ChainRpcUrl, c.ChainConfig.RpcUrl)
	}
	if c.ChainConfig.RequestTimeout <= 0 {
		return fmt.Errorf("%s must be greater than 0", ChainRequestTimeout)
	}
	if c.ChainConfig.BlockHashCacheSize < 0 {
		return fmt.Errorf("%s must not be negative", ChainBlockHashCacheSize)
	}
	if c.StorageConfig.PageSize < 1 {
		return fmt.Errorf("%s must be at least 1", StoragePageSize)
	}
	if c.StorageConfig.MaxConcurrency < 1 {
		return fmt.Errorf("%s must be at least 1", StorageMaxConcurrency)
	}
	return nil
}
