// Package quotecache caches serialized premium quotes in Valkey for the
// quote validity window, sparing repeat pricing runs for unchanged
// devices.
package quotecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// ErrMiss is returned when no cached quote exists for a key.
var ErrMiss = errors.New("quote not cached")

// DefaultTTL matches the 30-day quote validity window.
const DefaultTTL = 30 * 24 * time.Hour

// Cache stores serialized quotes keyed by device and coverage level.
type Cache struct {
	client valkey.Client
	ttl    time.Duration
}

// New connects to a Valkey instance. ttl <= 0 uses DefaultTTL.
func New(addr string, ttl time.Duration) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Put stores a serialized quote with the cache TTL.
func (c *Cache) Put(ctx context.Context, deviceID, coverageLevel string, quoteJSON []byte) error {
	cmd := c.client.B().Set().Key(key(deviceID, coverageLevel)).Value(string(quoteJSON)).Ex(c.ttl).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Get retrieves a cached quote, or ErrMiss.
func (c *Cache) Get(ctx context.Context, deviceID, coverageLevel string) ([]byte, error) {
	cmd := c.client.B().Get().Key(key(deviceID, coverageLevel)).Build()
	resp := c.client.Do(ctx, cmd)
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("valkey GET: %w", err)
	}
	value, err := resp.ToString()
	if err != nil {
		return nil, fmt.Errorf("decode valkey reply: %w", err)
	}
	return []byte(value), nil
}

// Invalidate drops all cached quotes for a device, across coverage
// levels. Called when a new assessment changes the device's risk.
func (c *Cache) Invalidate(ctx context.Context, deviceID string) error {
	keysCmd := c.client.B().Keys().Pattern(key(deviceID, "*")).Build()
	resp := c.client.Do(ctx, keysCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("valkey KEYS: %w", err)
	}
	keys, err := resp.AsStrSlice()
	if err != nil {
		return fmt.Errorf("decode key list: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	delCmd := c.client.B().Del().Key(keys...).Build()
	return c.client.Do(ctx, delCmd).Error()
}

// Close shuts down the client connection.
func (c *Cache) Close() {
	c.client.Close()
}

func key(deviceID, coverageLevel string) string {
	return fmt.Sprintf("quote:%s:%s", deviceID, coverageLevel)
}
