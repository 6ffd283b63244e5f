package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/upb/identity-gateway/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxDocumentSize = 1 << 20

// CacheConfig holds configuration for KeySetCache
type CacheConfig struct {
	URL string
	// TTL bounds how long a fetched set is served. Zero keeps it forever.
	TTL         time.Duration
	HTTPTimeout time.Duration
	// HTTPClient overrides the default client built from HTTPTimeout.
	HTTPClient *http.Client
}

// CacheStats is a point-in-time view of the cache, reported by /readyz.
type CacheStats struct {
	Cached    bool       `json:"cached"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Keys      int        `json:"keys"`
	KeyIDs    []string   `json:"key_ids,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// KeySetCache fetches the issuer's signing keys on first use and serves
// them to every later caller. Concurrent first fetches collapse into one.
type KeySetCache struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	keys      *KeySet
	fetchedAt time.Time
	lastErr   error
}

// NewKeySetCache creates an empty cache. Nothing is fetched until Get or Warm.
func NewKeySetCache(cfg CacheConfig, logger *zap.Logger, metrics *observability.Metrics) *KeySetCache {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KeySetCache{
		url:        cfg.URL,
		ttl:        cfg.TTL,
		httpClient: client,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Get returns the cached key set, fetching it when absent or expired.
// When a refetch fails and a previous set exists, the previous set is returned.
func (c *KeySetCache) Get(ctx context.Context) (*KeySet, error) {
	if keys, ok := c.current(); ok {
		return keys, nil
	}

	ch := c.group.DoChan("jwks", func() (interface{}, error) {
		// The shared fetch must outlive any single caller; the client timeout bounds it.
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeyFetch, ctx.Err())
	}
}

// Warm performs the first fetch eagerly.
func (c *KeySetCache) Warm(ctx context.Context) error {
	_, err := c.Get(ctx)
	return err
}

// Invalidate drops the stored set so the next Get refetches.
func (c *KeySetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = nil
	c.fetchedAt = time.Time{}
}

// Stats returns cache statistics
func (c *KeySetCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Cached: c.keys != nil,
		Keys:   c.keys.Len(),
		KeyIDs: c.keys.KeyIDs(),
	}
	if c.keys != nil {
		fetchedAt := c.fetchedAt
		stats.FetchedAt = &fetchedAt
		if c.ttl > 0 {
			expiresAt := fetchedAt.Add(c.ttl)
			stats.ExpiresAt = &expiresAt
		}
	}
	if c.lastErr != nil {
		stats.LastError = c.lastErr.Error()
	}
	return stats
}

func (c *KeySetCache) current() (*KeySet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil || c.expired() {
		return nil, false
	}
	return c.keys, true
}

// expired must be called with mu held.
func (c *KeySetCache) expired() bool {
	return c.ttl > 0 && c.now().Sub(c.fetchedAt) >= c.ttl
}

func (c *KeySetCache) refresh(ctx context.Context) (*KeySet, error) {
	// A flight that finished just before this one may already have stored a fresh set.
	if keys, ok := c.current(); ok {
		return keys, nil
	}

	keys, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		if c.keys != nil {
			c.metrics.RecordKeyFetch(observability.ResultStale)
			c.logger.Warn("signing key refresh failed, serving stale key set",
				zap.String("url", c.url),
				zap.Time("fetched_at", c.fetchedAt),
				zap.Error(err))
			return c.keys, nil
		}
		c.metrics.RecordKeyFetch(observability.ResultFailure)
		c.logger.Error("failed to fetch signing keys", zap.String("url", c.url), zap.Error(err))
		return nil, err
	}

	c.keys = keys
	c.fetchedAt = c.now()
	c.lastErr = nil
	c.metrics.RecordKeyFetch(observability.ResultSuccess)
	c.logger.Info("signing keys fetched",
		zap.String("url", c.url),
		zap.Int("keys", keys.Len()))
	return keys, nil
}

func (c *KeySetCache) fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrKeyFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status code %d", ErrKeyFetch, resp.StatusCode)
	}

	var doc JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode JWKS: %v", ErrKeyFetch, err)
	}

	keys, skipped := NewKeySet(doc)
	if skipped != nil {
		c.logger.Debug("skipped unusable keys", zap.Error(skipped))
	}
	return keys, nil
}

// Close releases idle connections held by the fetch client.
func (c *KeySetCache) Close() {
	c.httpClient.CloseIdleConnections()
}
