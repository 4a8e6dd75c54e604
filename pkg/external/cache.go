package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// EmbeddingStore is the shared (second-tier) embedding cache.
type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// CacheClient wraps Redis client with caching functionality for external API responses
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a cache client for config.RedisURL. It does not connect;
// call Ping to verify the server is reachable.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	return &CacheClient{
		redis:      redis.NewClient(opts),
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedEmbedding represents a cached embedding with metadata
type CachedEmbedding struct {
	Vector    []float32 `json:"vector"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetEmbedding retrieves a cached embedding
func (c *CacheClient) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var cached CachedEmbedding
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Vector, true, nil
}

// SetEmbedding caches an embedding
func (c *CacheClient) SetEmbedding(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	cached := CachedEmbedding{
		Vector:    vector,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding cache data: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// Ping checks if Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

// EmbeddingKey creates a content-addressed cache key for an embedding.
func EmbeddingKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return fmt.Sprintf("embedding:%s:%x", model, hash[:16])
}

type memoryEntry struct {
	vector    []float32
	expiresAt time.Time
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	MemoryHits    int64     `json:"memory_hits"`
	MemoryMisses  int64     `json:"memory_misses"`
	StoreHits     int64     `json:"store_hits"`
	StoreMisses   int64     `json:"store_misses"`
	ExternalCalls int64     `json:"external_calls"`
	ErrorCount    int64     `json:"error_count"`
	LastReset     time.Time `json:"last_reset"`
}

// EmbeddingCache is an Embedder that memoizes another Embedder in an in-memory LRU
// (tier 1) and an optional shared store such as Redis (tier 2). Entries are
// content-addressed, so the cache can be cleared at any time.
type EmbeddingCache struct {
	next   Embedder
	model  string
	memory *lru.Cache[string, memoryEntry]
	store  EmbeddingStore
	ttl    time.Duration
	logger *logrus.Logger

	now     func() time.Time
	stats   CacheStats
	statsMu sync.Mutex
}

// NewEmbeddingCache creates a two-tier embedding cache. store may be nil.
func NewEmbeddingCache(next Embedder, model string, maxItems int, ttl time.Duration, store EmbeddingStore, logger *logrus.Logger) (*EmbeddingCache, error) {
	if maxItems <= 0 {
		maxItems = 1024
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	memory, err := lru.New[string, memoryEntry](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &EmbeddingCache{
		next:   next,
		model:  model,
		memory: memory,
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		stats:  CacheStats{LastReset: time.Now()},
	}, nil
}

// Embed implements Embedder
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := EmbeddingKey(c.model, text)

	if entry, ok := c.memory.Get(key); ok {
		if c.now().Before(entry.expiresAt) {
			c.record(func(s *CacheStats) { s.MemoryHits++ })
			return entry.vector, nil
		}
		c.memory.Remove(key)
	}
	c.record(func(s *CacheStats) { s.MemoryMisses++ })

	if c.store != nil {
		vector, found, err := c.store.GetEmbedding(ctx, key)
		switch {
		case err != nil:
			c.record(func(s *CacheStats) { s.ErrorCount++ })
			c.logger.WithError(err).Warn("Embedding store lookup failed")
		case found:
			c.record(func(s *CacheStats) { s.StoreHits++ })
			c.memory.Add(key, memoryEntry{vector: vector, expiresAt: c.now().Add(c.ttl)})
			return vector, nil
		default:
			c.record(func(s *CacheStats) { s.StoreMisses++ })
		}
	}

	c.record(func(s *CacheStats) { s.ExternalCalls++ })
	vector, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.memory.Add(key, memoryEntry{vector: vector, expiresAt: c.now().Add(c.ttl)})
	if c.store != nil {
		if err := c.store.SetEmbedding(ctx, key, vector, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Failed to store embedding")
		}
	}
	return vector, nil
}

// Purge clears the memory tier.
func (c *EmbeddingCache) Purge() {
	c.memory.Purge()
}

// Stats returns a snapshot of the cache statistics
func (c *EmbeddingCache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *EmbeddingCache) record(update func(*CacheStats)) {
	c.statsMu.Lock()
	update(&c.stats)
	c.statsMu.Unlock()
}
