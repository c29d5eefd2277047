package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/model"
)

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	c.calls = append(c.calls, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) ModelName() string { return "test-model" }

type memStore struct {
	items   map[string][]float32
	saved   int
	lookErr error
}

func (m *memStore) GetMany(ctx context.Context, modelName, taskType string, hashes []string) (map[string][]float32, error) {
	if m.lookErr != nil {
		return nil, m.lookErr
	}
	out := map[string][]float32{}
	for _, h := range hashes {
		if v, ok := m.items[modelName+taskType+h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (m *memStore) SaveMany(ctx context.Context, items []model.EmbeddingCache) error {
	for _, item := range items {
		m.items[item.ModelName+item.TaskType+item.ContentHash] = item.Embedding
		m.saved++
	}
	return nil
}

func TestLruEmbedderOnlyEmbedsMisses(t *testing.T) {
	next := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(next, 16, time.Minute)
	ctx := context.Background()

	first, err := e.EmbedBatch(ctx, []string{"a", "bb"}, "Q")
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := e.EmbedBatch(ctx, []string{"bb", "ccc", "a"}, "Q")
	require.NoError(t, err)
	require.Equal(t, first[1], second[0])
	require.Equal(t, first[0], second[2])
	require.Equal(t, []float32{3, 1}, second[1])
	require.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, next.calls)

	_, err = e.EmbedBatch(ctx, []string{"a"}, "D")
	require.NoError(t, err)
	require.Len(t, next.calls, 3)
	require.Equal(t, "test-model", e.ModelName())
}

func TestLruEmbedderDisabled(t *testing.T) {
	next := &countingEmbedder{}
	require.Same(t, next, WrapLruCacheToEmbedder(next, 0, time.Minute))
}

func TestDBEmbedder(t *testing.T) {
	next := &countingEmbedder{}
	store := &memStore{items: map[string][]float32{}}
	e := WrapDBCacheToEmbedder(next, store)
	ctx := context.Background()

	_, err := e.EmbedBatch(ctx, []string{"x", "yy"}, "D")
	require.NoError(t, err)
	require.Equal(t, 2, store.saved)

	out, err := e.EmbedBatch(ctx, []string{"yy", "x"}, "D")
	require.NoError(t, err)
	require.Equal(t, []float32{2, 1}, out[0])
	require.Equal(t, []float32{1, 1}, out[1])
	require.Len(t, next.calls, 1)
}

func TestDBEmbedderLookupFailureFallsThrough(t *testing.T) {
	next := &countingEmbedder{}
	store := &memStore{items: map[string][]float32{}, lookErr: errors.New("db down")}
	out, err := WrapDBCacheToEmbedder(next, store).EmbedBatch(context.Background(), []string{"x"}, "D")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, next.calls, 1)
}

func TestDBEmbedderPropagatesEmbedError(t *testing.T) {
	boom := errors.New("boom")
	next := &countingEmbedder{err: boom}
	_, err := WrapDBCacheToEmbedder(next, &memStore{items: map[string][]float32{}}).EmbedBatch(context.Background(), []string{"x"}, "D")
	require.ErrorIs(t, err, boom)
}

func TestEmbeddersDedupRepeatedTexts(t *testing.T) {
	next := &countingEmbedder{}
	store := &memStore{items: map[string][]float32{}}
	e := WrapLruCacheToEmbedder(WrapDBCacheToEmbedder(next, store), 16, time.Minute)

	out, err := e.EmbedBatch(context.Background(), []string{"same", "other", "same"}, "D")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"same", "other"}}, next.calls)
	require.Equal(t, 2, store.saved)
	require.Equal(t, out[0], out[2])
	out[0][0] = 99
	require.NotEqual(t, out[0][0], out[2][0])
}

func TestKeyForSeparatesModelsAndTasks(t *testing.T) {
	a := keyFor("m1", "Q", "text")
	require.Equal(t, a, keyFor(" m1 ", "Q", "text"))
	require.NotEqual(t, a.String(), keyFor("m2", "Q", "text").String())
	require.NotEqual(t, a.String(), keyFor("m1", "D", "text").String())
	require.Equal(t, "unknown", keyFor("", "Q", "text").model)
}
