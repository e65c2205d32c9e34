package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wizanyx/finsent/internal/explain"
	"github.com/wizanyx/finsent/models"
)

const cacheKeyPrefix = "finsent:clf:v1:"

// Cached wraps a classifier with a best-effort redis cache keyed by text
// hash. Redis trouble degrades to the inner adapter; it never fails a batch.
type Cached struct {
	inner  Classifier
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCached builds the caching decorator. ttl <= 0 disables expiry.
func NewCached(inner Classifier, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[CLF-CACHE] ", log.LstdFlags),
	}
}

func (c *Cached) Name() string { return c.inner.Name() + "+cache" }

func (c *Cached) Warmup(ctx context.Context) error { return c.inner.Warmup(ctx) }

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cached) Classify(ctx context.Context, docs []models.Document) ([]Prediction, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = cacheKey(d.Text)
	}

	preds := make([]Prediction, len(docs))
	missIdx := make([]int, 0, len(docs))

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Printf("cache read failed, passing batch through: %v", err)
		for i := range docs {
			missIdx = append(missIdx, i)
		}
	} else {
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				missIdx = append(missIdx, i)
				continue
			}
			var p Prediction
			if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr != nil {
				missIdx = append(missIdx, i)
				continue
			}
			preds[i] = p
		}
	}

	if len(missIdx) > 0 {
		missed := make([]models.Document, len(missIdx))
		for j, i := range missIdx {
			missed[j] = docs[i]
		}
		fresh, err := c.inner.Classify(ctx, missed)
		if err != nil {
			return nil, err
		}
		if len(fresh) != len(missed) {
			return nil, &AdapterError{Adapter: c.Name(), Err: errors.New("inner adapter returned short batch")}
		}
		pipe := c.rdb.Pipeline()
		for j, i := range missIdx {
			preds[i] = fresh[j]
			if raw, jsonErr := json.Marshal(fresh[j]); jsonErr == nil {
				pipe.Set(ctx, keys[i], raw, c.ttl)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Printf("cache write failed: %v", err)
		}
	}
	return preds, nil
}

// Attributions delegates to the inner adapter when it can explain itself.
func (c *Cached) Attributions(ctx context.Context, doc models.Document) ([]explain.TokenWeight, error) {
	if ex, ok := c.inner.(Explainer); ok {
		return ex.Attributions(ctx, doc)
	}
	return nil, &AdapterError{Adapter: c.Name(), Err: errors.New("adapter does not expose attributions")}
}
