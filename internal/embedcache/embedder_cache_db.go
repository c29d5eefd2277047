package embedcache

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
)

// Store is the persistent side of the embedding cache.
type Store interface {
	GetMany(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error)
	SaveMany(ctx context.Context, items []model.EmbeddingCache) error
}

// WrapDBCacheToEmbedder shares vectors across processes through store.
// Store failures are logged and never fail the embedding call.
func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
}

func (d *dbEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("task_type", taskType))
	keys := make([]entryKey, len(texts))
	hashes := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = keyFor(d.next.ModelName(), taskType, text)
		hashes[i] = keys[i].hash
	}
	modelName := keys[0].model
	found, err := d.store.GetMany(ctx, modelName, taskType, hashes)
	if err != nil {
		logger.Warn("embedding cache lookup failed", zap.Error(err))
		found = nil
	}
	out := make([][]float32, len(texts))
	var pending misses
	for i, text := range texts {
		if vec, ok := found[hashes[i]]; ok {
			out[i] = vec
			continue
		}
		pending.add(i, text)
	}
	if len(pending.texts) == 0 {
		logger.Debug("db embedding cache hit", zap.Int("count", len(texts)))
		return out, nil
	}
	res, err := d.next.EmbedBatch(ctx, pending.texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) != len(pending.texts) {
		return nil, fmt.Errorf("embedding count mismatch, want %d got %d", len(pending.texts), len(res))
	}
	now := timeutil.NowMilli()
	items := make([]model.EmbeddingCache, 0, len(pending.texts))
	for j, slots := range pending.slots {
		for _, i := range slots {
			out[i] = res[j]
		}
		items = append(items, model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[slots[0]],
			Embedding:   res[j],
			Ctime:       now,
		})
	}
	if err := d.store.SaveMany(ctx, items); err != nil {
		logger.Warn("store embeddings in cache failed", zap.Int("count", len(items)), zap.Error(err))
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
