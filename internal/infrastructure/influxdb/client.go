package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	fallbackBatch      = 100
	fallbackFlushEvery = 10 * time.Second
)

// pointWriter is the slice of api.WriteAPI the client drives.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client batches tick and tap points to one bucket.
//
// Writes never block the engine: points queue in the library's batch
// buffer and failures arrive later on the SetOnError callback. After
// Close, writes are counted as dropped.
type Client struct {
	server influxdb2.Client
	writer pointWriter

	closed  atomic.Bool
	dropped atomic.Uint64

	errMu   sync.RWMutex
	onError func(err error)
}

// clientOptions maps the batch settings of cfg, falling back to 100 points
// every 10s. Every point carries an app=yysbot tag.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatch)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushEvery
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetPrecision(time.Millisecond).
		AddDefaultTag("app", "yysbot")
}

// Connect pings the server and opens a batching writer on cfg.Bucket.
//
// Returns:
//   - *Client: ready for WriteTick and WriteTap
//   - error: ErrDisabled, or ErrConnectionFailed when the ping fails
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	server := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))
	if err := ping(context.Background(), server); err != nil {
		server.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	w := server.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{server: server, writer: w}
	go c.forwardErrors(w.Errors())
	return c, nil
}

func ping(ctx context.Context, server influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	ok, err := server.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server reports unhealthy")
	}
	return nil
}

// newWithWriter wraps w without a server, for tests.
func newWithWriter(w pointWriter) *Client {
	return &Client{writer: w}
}

// forwardErrors hands async write failures to the callback until the
// library closes ch.
func (c *Client) forwardErrors(ch <-chan error) {
	for err := range ch {
		c.errMu.RLock()
		fn := c.onError
		c.errMu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

// write queues p, or counts it as dropped once closed.
func (c *Client) write(p *write.Point) {
	if c.closed.Load() {
		c.dropped.Add(1)
		return
	}
	c.writer.WritePoint(p)
}

// Dropped returns the number of points discarded after Close.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// IsConnected reports whether the client still accepts points.
func (c *Client) IsConnected() bool { return !c.closed.Load() }

// Flush pushes the current batch out. No-op after Close.
func (c *Client) Flush() {
	if c.closed.Load() {
		return
	}
	c.writer.Flush()
}

// Close flushes the last batch and releases the server connection.
// Calling it again is a no-op.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writer.Flush()
	if c.server != nil {
		c.server.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() || c.server == nil {
		return ErrNotConnected
	}
	if err := ping(ctx, c.server); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}
