// Package redis publishes comparison_completed events to Redis.
//
// Events go out on a pub/sub channel and, when ListKey is set, are also
// appended to a list so consumers that were offline can still read them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/wptdiff/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "wptdiff:comparison_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default wptdiff:comparison_completed).
	Channel string
	// ListKey, when set, also RPUSHes every event onto this list.
	ListKey string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
	// Codec selects the payload encoding (default json).
	Codec adapter.Codec
	// Backoff is the delay before the first retry (default adapter.BaseBackoff).
	Backoff time.Duration
}

// Adapter publishes events via Redis PUBLISH (and optionally RPUSH).
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. The connection is established lazily.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	codec, err := adapter.ParseCodec(string(cfg.Codec))
	if err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}
	cfg.Codec = codec
	if cfg.Backoff <= 0 {
		cfg.Backoff = adapter.BaseBackoff
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the encoded event, retrying with exponential backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ComparisonCompletedEvent) error {
	body, err := a.config.Codec.Encode(event)
	if err != nil {
		return fmt.Errorf("redis: encode event: %w", err)
	}

	var lastErr error
	attempts := 1 + a.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}
		if i > 0 {
			if err := adapter.Sleep(ctx, adapter.Backoff(a.config.Backoff, i)); err != nil {
				return fmt.Errorf("redis: context canceled during backoff: %w", err)
			}
		}

		lastErr = a.send(ctx, body)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, goredis.ErrClosed) {
			break
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

// send performs one delivery. With ListKey set, PUBLISH and RPUSH go out in
// a single MULTI/EXEC so a retry never duplicates the list entry.
func (a *Adapter) send(ctx context.Context, body []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if a.config.ListKey == "" {
		return a.client.Publish(sendCtx, a.config.Channel, body).Err()
	}
	_, err := a.client.TxPipelined(sendCtx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(sendCtx, a.config.ListKey, body)
		pipe.Publish(sendCtx, a.config.Channel, body)
		return nil
	})
	return err
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
