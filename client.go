package seqstream

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/motionlake/seqstream-go/query"
	"github.com/motionlake/seqstream-go/transport"
)

// Client is a seqstream client. It owns the connection-pooled transport
// dialer and the shared logging/metrics/tracing instrumentation; it is
// safe for concurrent use.
//
// The default transport is HTTP/2-preferring with connection pooling; tests
// and embedded deployments can swap it out via WithDialer.
type Client struct {
	dialer      transport.Dialer
	logger      *zap.Logger
	tracer      trace.Tracer
	metrics     *Metrics
	retryPolicy RetryPolicy
}

// NewClient creates a new seqstream client.
//
// Example:
//
//	client := seqstream.NewClient(seqstream.WithBaseURL("https://recorder.example.com"))
func NewClient(opts ...ClientOption) *Client {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	dialer := cfg.dialer
	if dialer == nil {
		dialer = transport.NewHTTPDialer(cfg.baseURL, nil)
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tracer := cfg.tracer
	if tracer == nil {
		tracer = noopTracer()
	}

	retryPolicy := DefaultRetryPolicy()
	if cfg.retryPolicy != nil {
		retryPolicy = *cfg.retryPolicy
	}

	var metrics *Metrics
	if cfg.registerer != nil {
		metrics = newMetrics(cfg.registerer)
	} else {
		metrics = newUnregisteredMetrics()
	}

	return &Client{
		dialer:      dialer,
		logger:      logger,
		tracer:      tracer,
		metrics:     metrics,
		retryPolicy: retryPolicy,
	}
}

// Metrics returns the client's Prometheus collector bundle. Safe to call
// even if no registerer was configured; the collectors simply go unread.
func (c *Client) Metrics() *Metrics { return c.metrics }

// queryBuilder is the shape every builder in package query exposes; kept
// private so this package doesn't need a named interface type from query.
type queryBuilder interface {
	MarshalWire() ([]byte, error)
}

type wireResponseItem struct {
	Sequence string   `json:"sequence"`
	Topics   []string `json:"topics"`
}

// ExecuteQuery sends a builder's filter document to the platform's QUERY
// control endpoint and parses the response. Query execution happens
// server-side; this method only carries the request and parses the reply.
func (c *Client) ExecuteQuery(ctx context.Context, b queryBuilder) (*query.Response, error) {
	body, err := b.MarshalWire()
	if err != nil {
		return nil, newOpError("query", "", "", KindValidation, err)
	}

	data, err := c.dialer.SendControl(ctx, transport.Endpoint{}, transport.Query, body)
	if err != nil {
		return nil, newOpError("query", "", "", KindTransport, err)
	}

	var raw []wireResponseItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newOpError("query", "", "", KindData, fmt.Errorf("decode query response: %w", err))
	}

	items := make([]query.ResponseItem, len(raw))
	for i, r := range raw {
		items[i] = query.NewResponseItem(r.Sequence, r.Topics)
	}
	return &query.Response{Items: items}, nil
}
