package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
)

type recordingDeleter struct {
	cutoff int64
	err    error
}

func (r *recordingDeleter) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	r.cutoff = cutoff
	return 3, r.err
}

func TestEmbeddingCacheCleanupUsesMillisecondCutoff(t *testing.T) {
	repo := &recordingDeleter{}
	before := timeutil.NowMilli()
	require.NoError(t, NewEmbeddingCacheCleanupJob(repo, 2).Run(context.Background()))
	want := before - (48 * time.Hour).Milliseconds()
	require.InDelta(t, want, repo.cutoff, 5000)

	repo.err = errors.New("db down")
	require.Error(t, NewEmbeddingCacheCleanupJob(repo, 0).Run(context.Background()))
	require.NoError(t, NewEmbeddingCacheCleanupJob(nil, 1).Run(context.Background()))
}

type recordingReconciler struct {
	maxAge time.Duration
}

func (r *recordingReconciler) ReconcileStale(ctx context.Context, maxAge time.Duration) (int, error) {
	r.maxAge = maxAge
	return 1, nil
}

func TestIngestReconcileJobDefaultsMaxAge(t *testing.T) {
	docs := &recordingReconciler{}
	require.NoError(t, NewIngestReconcileJob(docs, 0).Run(context.Background()))
	require.Equal(t, time.Hour, docs.maxAge)

	require.NoError(t, NewIngestReconcileJob(docs, 15*time.Minute).Run(context.Background()))
	require.Equal(t, 15*time.Minute, docs.maxAge)
}
