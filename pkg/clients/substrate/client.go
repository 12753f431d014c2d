// Package substrate is a JSON-RPC client for Substrate-based chain nodes.
//
// It implements chainTypes.ChainQuerier and chainTypes.HistoryQuerier over HTTP. One Client is
// meant to be constructed at startup and shared, read-only, by every component.
package substrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/metrics"
	"github.com/Layr-Labs/storage-locator/pkg/metrics/metricsTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type SubstrateClientConfig struct {
	// BaseUrl is the node's HTTP JSON-RPC endpoint
	BaseUrl string
	// RequestTimeout bounds every single request, including batches
	RequestTimeout time.Duration
}

func DefaultSubstrateClientConfig() *SubstrateClientConfig {
	return &SubstrateClientConfig{
		BaseUrl:        config.DefaultRpcUrl,
		RequestTimeout: config.DefaultRequestTimeout * time.Second,
	}
}

func ConvertGlobalConfigToSubstrateConfig(cfg *config.ChainConfig) *SubstrateClientConfig {
	return &SubstrateClientConfig{
		BaseUrl:        cfg.RpcUrl,
		RequestTimeout: cfg.RequestTimeout,
	}
}

type Client struct {
	config     *SubstrateClientConfig
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.MetricsSink
	nextId     atomic.Uint64
}

func NewClient(cfg *SubstrateClientConfig, ms *metrics.MetricsSink, l *zap.Logger) *Client {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	l.Sugar().Debugw("Creating substrate client", zap.String("baseUrl", cfg.BaseUrl))
	return &Client{
		config:     cfg,
		httpClient: &http.Client{},
		logger:     l,
		metrics:    ms,
	}
}

// SetHttpClient replaces the underlying http client, e.g. with a mocked transport.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      *uint64         `json:"id"`
}

// IsNull reports whether the node answered with a JSON null result.
func (r *RPCResponse) IsNull() bool {
	trimmed := bytes.TrimSpace(r.Result)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// NewRequest builds a request with the next request id.
func (c *Client) NewRequest(method string, params ...interface{}) *RPCRequest {
	if params == nil {
		params = []interface{}{}
	}
	return &RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextId.Add(1),
	}
}

func (c *Client) recordCall(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := []metricsTypes.MetricsLabel{
		{Name: "method", Value: method},
		{Name: "status", Value: status},
	}
	c.metrics.Incr(metricsTypes.Metric_Incr_RpcRequest, labels, 1)
	c.metrics.Timing(metricsTypes.Metric_Timing_RpcDuration, time.Since(start), labels)
}

func (c *Client) post(ctx context.Context, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseUrl, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("request failed with status %d: %s", res.StatusCode, string(resBody))
	}
	return resBody, nil
}

// Call sends a single request. Transport failures, timeouts, malformed bodies and JSON-RPC error
// objects are all reported as chainErrors.ErrRpcFailure.
func (c *Client) Call(ctx context.Context, req *RPCRequest) (res *RPCResponse, err error) {
	start := time.Now()
	span, ctx := ddTracer.StartSpanFromContext(ctx, "substrate.rpc", ddTracer.ResourceName(req.Method))
	defer func() {
		c.recordCall(req.Method, start, err)
		span.Finish(ddTracer.WithError(err))
	}()

	body, err := c.post(ctx, req)
	if err != nil {
		c.logger.Sugar().Errorw("RPC request failed",
			zap.String("method", req.Method),
			zap.Error(err),
		)
		return nil, chainErrors.RpcFailure(err, "%s", req.Method)
	}

	res = &RPCResponse{}
	if err = json.Unmarshal(body, res); err != nil {
		return nil, chainErrors.RpcFailure(err, "%s: malformed response", req.Method)
	}
	if res.Error != nil {
		err = chainErrors.RpcFailure(res.Error, "%s", req.Method)
		return nil, err
	}
	return res, nil
}

// BatchCall sends requests as one JSON-RPC batch and returns the responses in request order.
func (c *Client) BatchCall(ctx context.Context, requests []*RPCRequest) (responses []*RPCResponse, err error) {
	if len(requests) == 0 {
		return []*RPCResponse{}, nil
	}
	start := time.Now()
	span, ctx := ddTracer.StartSpanFromContext(ctx, "substrate.rpc.batch", ddTracer.ResourceName(requests[0].Method))
	defer func() {
		c.recordCall("batch", start, err)
		span.Finish(ddTracer.WithError(err))
	}()

	body, err := c.post(ctx, requests)
	if err != nil {
		c.logger.Sugar().Errorw("RPC batch request failed",
			zap.Int("count", len(requests)),
			zap.Error(err),
		)
		return nil, chainErrors.RpcFailure(err, "batch of %d", len(requests))
	}

	responses = make([]*RPCResponse, 0, len(requests))
	if err = json.Unmarshal(body, &responses); err != nil {
		return nil, chainErrors.RpcFailure(err, "batch: malformed response")
	}
	if len(responses) != len(requests) {
		err = errors.Errorf("expected %d responses, got %d", len(requests), len(responses))
		return nil, chainErrors.RpcFailure(err, "batch")
	}

	order := make(map[uint64]int, len(requests))
	for i, r := range requests {
		order[r.ID] = i
	}
	for _, r := range responses {
		if r.ID == nil {
			err = errors.New("response without id")
			return nil, chainErrors.RpcFailure(err, "batch")
		}
		if _, ok := order[*r.ID]; !ok {
			err = errors.Errorf("unexpected response id %d", *r.ID)
			return nil, chainErrors.RpcFailure(err, "batch")
		}
		if r.Error != nil {
			err = chainErrors.RpcFailure(r.Error, "batch request %d", *r.ID)
			return nil, err
		}
	}
	slices.SortFunc(responses, func(a, b *RPCResponse) int {
		return order[*a.ID] - order[*b.ID]
	})
	return responses, nil
}

func decodeResult[T any](method string, res *RPCResponse) (T, error) {
	var out T
	if err := json.Unmarshal(res.Result, &out); err != nil {
		return out, chainErrors.RpcFailure(err, "%s: failed to decode result", method)
	}
	return out, nil
}
