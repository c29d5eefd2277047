package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
)

type DocumentStore interface {
	GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error)
	ListByTenant(ctx context.Context, tenantID string, offset, limit uint) ([]model.Document, error)
	Delete(ctx context.Context, tenantID, docID string) error
	ListStale(ctx context.Context, cutoff int64, limit uint) ([]model.Document, error)
	DeleteIfIngesting(ctx context.Context, docID string, cutoff int64) (bool, error)
}

type DocumentService struct {
	docs DocumentStore
}

func NewDocumentService(docs DocumentStore) *DocumentService {
	return &DocumentService{docs: docs}
}

func (s *DocumentService) List(ctx context.Context, tenantID string, offset, limit uint) ([]model.Document, error) {
	docs, err := s.docs.ListByTenant(ctx, tenantID, offset, limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

func (s *DocumentService) Get(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	return s.docs.GetByID(ctx, tenantID, docID)
}

// Delete removes the document and its chunks.
func (s *DocumentService) Delete(ctx context.Context, tenantID, docID string) error {
	if err := s.docs.Delete(ctx, tenantID, docID); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("document deleted", zap.String("tenant_id", tenantID), zap.String("document_id", docID))
	return nil
}

const reconcileBatch = 100

// ReconcileStale deletes documents that stayed in the ingesting state
// longer than maxAge, which only happens when a process died between
// commits or a cleanup delete failed. It returns the number removed.
func (s *DocumentService) ReconcileStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := timeutil.NowMilli() - maxAge.Milliseconds()
	removed := 0
	for {
		docs, err := s.docs.ListStale(ctx, cutoff, reconcileBatch)
		if err != nil {
			return removed, err
		}
		if len(docs) == 0 {
			return removed, nil
		}
		progressed := false
		for _, doc := range docs {
			ok, err := s.docs.DeleteIfIngesting(ctx, doc.ID, cutoff)
			if err != nil {
				return removed, err
			}
			if !ok {
				continue
			}
			progressed = true
			removed++
			logutil.GetLogger(ctx).Info("removed stale ingestion",
				zap.String("tenant_id", doc.TenantID),
				zap.String("document_id", doc.ID),
				zap.Int("chunk_count", doc.ChunkCount),
				zap.Int("expected_chunks", doc.ExpectedChunks))
		}
		if !progressed || len(docs) < reconcileBatch {
			return removed, nil
		}
	}
}
