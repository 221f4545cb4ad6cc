package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

const cacheKeyPrefix = "rag:embedding:"

// CacheStore is the subset of the Redis client used by Cached.
type CacheStore interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cached serves repeated texts from Redis. Cache failures never fail a
// call; they fall through to the wrapped embedder.
type Cached struct {
	next  Embedder
	store CacheStore
	ttl   time.Duration
}

// NewCached wraps next with a Redis cache whose entries expire after ttl.
func NewCached(next Embedder, store CacheStore, ttl time.Duration) *Cached {
	return &Cached{next: next, store: store, ttl: ttl}
}

func (c *Cached) Model() string   { return c.next.Model() }
func (c *Cached) Dimensions() int { return c.next.Dimensions() }

// Embed looks every text up, embeds only the misses and stores them.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	vals, err := c.store.MGet(ctx, keys...).Result()
	if err != nil {
		log.Warnf("[EmbeddingCache] lookup failed, embedding all %d texts: %v", len(texts), err)
		vals = nil
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(s), &vec); err == nil && len(vec) > 0 {
			out[i] = vec
		}
	}

	var missIdx []int
	var missTexts []string
	for i, vec := range out {
		if vec == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, ErrCountMismatch
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		payload, err := json.Marshal(vecs[j])
		if err != nil {
			continue
		}
		if err := c.store.Set(ctx, keys[i], payload, c.ttl).Err(); err != nil {
			log.Warnf("[EmbeddingCache] store failed: %v", err)
		}
	}
	return out, nil
}

func (c *Cached) key(text string) string {
	sum := md5.Sum([]byte(c.next.Model() + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
