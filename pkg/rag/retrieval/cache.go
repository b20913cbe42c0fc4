package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"docrag-be/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// EmbeddingCache stores query embeddings. Lookups and writes never fail the
// caller; a miss simply means the query is embedded again.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

// CacheKey identifies a query embedding by backend, dimension and text.
func CacheKey(algorithm string, dimension int, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s:%d:%s", algorithm, dimension, hex.EncodeToString(sum[:]))
}

type LocalEmbeddingCache struct {
	c *cache.Cache
}

func NewLocalEmbeddingCache(ttl time.Duration) *LocalEmbeddingCache {
	return &LocalEmbeddingCache{c: cache.New(ttl, 2*ttl)}
}

func (l *LocalEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool) {
	v, ok := l.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]float32), true
}

func (l *LocalEmbeddingCache) Set(ctx context.Context, key string, vector []float32) {
	l.c.SetDefault(key, vector)
}

// RedisEmbeddingCache shares query embeddings between instances.
type RedisEmbeddingCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    logger.ILogger
}

func NewRedisEmbeddingCache(rdb *redis.Client, ttl time.Duration, log logger.ILogger) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{rdb: rdb, ttl: ttl, prefix: "docrag:qemb:", log: log}
}

func (r *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.Warn("Retrieval", "Embedding cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}
	vec, ok := decodeVector(b)
	return vec, ok
}

func (r *RedisEmbeddingCache) Set(ctx context.Context, key string, vector []float32) {
	if err := r.rdb.Set(ctx, r.prefix+key, encodeVector(vector), r.ttl).Err(); err != nil {
		r.log.Warn("Retrieval", "Embedding cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
