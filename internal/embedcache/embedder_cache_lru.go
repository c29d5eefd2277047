package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
)

// WrapLruCacheToEmbedder keeps recent vectors in process. A non-positive
// size or ttl disables the cache.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	model := l.next.ModelName()
	var pending misses
	for i, text := range texts {
		if cached, ok := l.cache.Get(keyFor(model, taskType, text).String()); ok {
			out[i] = cloneVector(cached)
			continue
		}
		pending.add(i, text)
	}
	if len(pending.texts) == 0 {
		logutil.GetLogger(ctx).Debug("lru embedding cache hit", zap.String("task_type", taskType), zap.Int("count", len(texts)))
		return out, nil
	}
	res, err := l.next.EmbedBatch(ctx, pending.texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) != len(pending.texts) {
		return nil, fmt.Errorf("embedding count mismatch, want %d got %d", len(pending.texts), len(res))
	}
	for j, text := range pending.texts {
		l.cache.Add(keyFor(model, taskType, text).String(), cloneVector(res[j]))
		for _, i := range pending.slots[j] {
			out[i] = cloneVector(res[j])
		}
	}
	return out, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}
