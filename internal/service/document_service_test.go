package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
)

func TestDocumentListAndDelete(t *testing.T) {
	db := newMemDB()
	seedDocs(t, db, "t1", map[string]string{"a.txt": "alpha text", "b.txt": "beta text"})
	seedDocs(t, db, "t2", map[string]string{"c.txt": "gamma text"})
	svc := NewDocumentService(memDocs{db: db})
	ctx := context.Background()

	docs, err := svc.List(ctx, "t1", 0, 20)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	empty, err := svc.List(ctx, "t9", 0, 20)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	other, err := svc.List(ctx, "t2", 0, 20)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, "t1", other[0].ID), appErr.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "t1", docs[0].ID))
	_, err = svc.Get(ctx, "t1", docs[0].ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Equal(t, 1, db.chunkCount("t1"))
	require.Equal(t, 1, db.chunkCount("t2"))
}

func TestReconcileStaleRemovesOnlyOldIngesting(t *testing.T) {
	db := newMemDB()
	now := timeutil.NowMilli()
	old := now - time.Hour.Milliseconds()
	db.docs["stale"] = &model.Document{ID: "stale", TenantID: "t1", State: model.DocumentStateIngesting, ExpectedChunks: 4, ChunkCount: 2, Mtime: old}
	db.docs["fresh"] = &model.Document{ID: "fresh", TenantID: "t1", State: model.DocumentStateIngesting, Mtime: now}
	db.docs["ready"] = &model.Document{ID: "ready", TenantID: "t1", State: model.DocumentStateReady, Mtime: old}
	db.chunks = []model.DocumentChunk{{ID: "c1", DocumentID: "stale"}, {ID: "c2", DocumentID: "ready"}}

	svc := NewDocumentService(memDocs{db: db})
	removed, err := svc.ReconcileStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NotContains(t, db.docs, "stale")
	require.Contains(t, db.docs, "fresh")
	require.Contains(t, db.docs, "ready")
	require.Len(t, db.chunks, 1)

	removed, err = svc.ReconcileStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}

func TestReconcileStaleStopsWhenDeleteFails(t *testing.T) {
	db := newMemDB()
	db.docs["stale"] = &model.Document{ID: "stale", TenantID: "t1", State: model.DocumentStateIngesting, Mtime: 1}
	db.failDelete = true
	svc := NewDocumentService(memDocs{db: db})
	_, err := svc.ReconcileStale(context.Background(), time.Minute)
	require.Error(t, err)
}
