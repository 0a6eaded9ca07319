package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-zigbee/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// A state burst after permit_join or a network scan is a few hundred
	// points at most.
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Client queues device telemetry for a single org and bucket.
//
// All methods are safe for concurrent use. A nil *Client behaves as a
// closed one.
type Client struct {
	influx influxdb2.Client
	queue  api.WriteAPI
	bucket string

	mu      sync.RWMutex
	open    bool
	onError func(err error)

	queued  atomic.Uint64
	skipped atomic.Uint64
}

// Stats counts WriteDeviceState calls since Connect.
type Stats struct {
	// Queued values were turned into points.
	Queued uint64
	// Skipped values had no numeric form or arrived after Close.
	Skipped uint64
}

// Connect pings the server and opens a batching writer for cfg.Bucket.
//
// Returns:
//   - *Client: open client
//   - error: ErrDisabled when cfg.Enabled is false, or ErrUnreachable
//     wrapping the ping failure
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w at %s: %w", ErrUnreachable, cfg.URL, err)
	}

	c := &Client{
		influx: influx,
		queue:  influx.WriteAPI(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
		open:   true,
	}
	// The error channel has to be claimed before the first point is queued.
	go c.reportRejections(c.queue.Errors())
	return c, nil
}

// writeOptions maps the telemetry config onto client options, falling back
// to the package defaults for unset or negative values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server reports unhealthy")
	}
	return nil
}

func (c *Client) reportRejections(rejected <-chan error) {
	for err := range rejected {
		c.mu.RLock()
		report := c.onError
		c.mu.RUnlock()
		if report != nil {
			report(fmt.Errorf("%w by bucket %s: %w", ErrRejected, c.bucket, err))
		}
	}
}

// SetOnError registers the callback for refused batches. The error wraps
// ErrRejected.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Client) isOpen() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Flush sends the queued points now instead of waiting for the batch to
// fill or the flush interval to pass.
func (c *Client) Flush() {
	if c.isOpen() {
		c.queue.Flush()
	}
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Queued: c.queued.Load(), Skipped: c.skipped.Load()}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.isOpen() {
		return ErrClosed
	}
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

// Close sends whatever is still queued and releases the client. Later
// calls do nothing.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if wasOpen {
		c.queue.Flush()
		c.influx.Close()
	}
	return nil
}
