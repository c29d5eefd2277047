package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/extract"
	"github.com/xxxsen/ragdesk/internal/filestore"
	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
	"github.com/xxxsen/ragdesk/internal/repo"
)

// IngestStore is the persistence the ingestion pipeline needs.
type IngestStore interface {
	GetByHash(ctx context.Context, tenantID, contentHash string) (*model.Document, error)
	Begin(ctx context.Context) (repo.IngestTx, error)
	Delete(ctx context.Context, tenantID, docID string) error
	SetArchiveKey(ctx context.Context, docID, key string) error
}

type IngestOptions struct {
	ChunkSize   int
	Overlap     int
	EmbedBatch  int
	InsertBatch int
}

func DefaultIngestOptions() IngestOptions {
	return IngestOptions{ChunkSize: 800, Overlap: 100, EmbedBatch: 64, InsertBatch: 200}
}

type IngestInput struct {
	TenantID   string
	UploaderID string
	Filename   string
	FileType   string
	Data       []byte
}

type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

type IngestService struct {
	store    IngestStore
	embedder ai.IEmbedder
	archive  filestore.Store
	opts     IngestOptions
}

// NewIngestService wires the pipeline. archive may be nil.
func NewIngestService(store IngestStore, embedder ai.IEmbedder, archive filestore.Store, opts IngestOptions) *IngestService {
	def := DefaultIngestOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = def.EmbedBatch
	}
	if opts.InsertBatch <= 0 {
		opts.InsertBatch = def.InsertBatch
	}
	return &IngestService{store: store, embedder: embedder, archive: archive, opts: opts}
}

// Ingest extracts, deduplicates, chunks, embeds and stores one upload.
// The document row commits together with the first chunk sub-batch; each
// later sub-batch commits on its own and the document only becomes visible
// to retrieval once it is marked ready.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return nil, appErr.ErrInvalid
	}
	fileType := extract.NormalizeType(in.FileType)
	if fileType == "" {
		fileType = extract.TypeFromFilename(in.Filename)
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("tenant_id", in.TenantID),
		zap.String("filename", in.Filename),
		zap.String("file_type", fileType),
	)

	text, err := extract.Extract(fileType, in.Data)
	if err != nil {
		return nil, err
	}
	hash := ai.ContentHash(text)
	if _, err := s.store.GetByHash(ctx, in.TenantID, hash); err == nil {
		return nil, appErr.ErrDuplicateDocument
	} else if !appErr.IsNotFound(err) {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}

	chunks := ai.Chunk(text, s.opts.ChunkSize, s.opts.Overlap)
	now := timeutil.NowMilli()
	doc := &model.Document{
		ID:             newID(),
		TenantID:       in.TenantID,
		UploaderID:     in.UploaderID,
		Filename:       in.Filename,
		FileType:       fileType,
		ContentHash:    hash,
		State:          model.DocumentStateIngesting,
		ExpectedChunks: len(chunks),
		Ctime:          now,
		Mtime:          now,
	}
	logger = logger.With(zap.String("document_id", doc.ID))

	// The first batch is embedded before the document row exists so no
	// transaction stays open across that call.
	var first [][]float32
	if len(chunks) > 0 {
		first, err = s.embedBatch(ctx, chunks[:min(s.opts.EmbedBatch, len(chunks))], 0)
		if err != nil {
			logger.Error("ingestion failed", zap.Int("stored_chunks", 0), zap.Int("expected_chunks", len(chunks)), zap.Error(err))
			return nil, &appErr.IngestionFailedError{DocumentID: doc.ID, Cause: err}
		}
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ingestion: %w", err)
	}
	if err := tx.CreateDocument(ctx, doc); err != nil {
		_ = tx.Rollback()
		if appErr.IsDuplicate(err) {
			return nil, appErr.ErrDuplicateDocument
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	stored, err := s.storeChunks(ctx, doc.ID, chunks, first, &tx)
	if err == nil {
		err = s.markReady(ctx, doc.ID, &tx)
	}
	if err != nil {
		if tx != nil {
			_ = tx.Rollback()
		}
		logger.Error("ingestion failed", zap.Int("stored_chunks", stored), zap.Int("expected_chunks", len(chunks)), zap.Error(err))
		s.cleanup(ctx, doc)
		return nil, &appErr.IngestionFailedError{DocumentID: doc.ID, Cause: err}
	}
	logger.Info("document ingested", zap.Int("chunk_count", stored))

	s.archiveUpload(ctx, doc, in.Data)
	return &IngestResult{DocumentID: doc.ID, ChunkCount: stored}, nil
}

// embedBatch embeds one batch of chunks starting at position offset.
func (s *IngestService) embedBatch(ctx context.Context, batch []string, offset int) ([][]float32, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, batch, ai.TaskRetrievalDocument)
	if err != nil {
		return nil, fmt.Errorf("embed chunks [%d,%d): %w", offset, offset+len(batch), err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedding count mismatch, want %d got %d", len(batch), len(vecs))
	}
	return vecs, nil
}

// storeChunks inserts chunks in sub-batches, embedding every batch after
// the pre-embedded first one. *tx holds the open transaction, nil once
// committed.
func (s *IngestService) storeChunks(ctx context.Context, docID string, chunks []string, first [][]float32, tx *repo.IngestTx) (int, error) {
	stored := 0
	dim := 0
	for start := 0; start < len(chunks); start += s.opts.EmbedBatch {
		end := min(start+s.opts.EmbedBatch, len(chunks))
		batch := chunks[start:end]
		vecs := first
		var err error
		if start > 0 {
			if vecs, err = s.embedBatch(ctx, batch, start); err != nil {
				return stored, err
			}
		}
		for i, vec := range vecs {
			if dim == 0 {
				dim = len(vec)
			}
			if len(vec) == 0 || len(vec) != dim {
				return stored, fmt.Errorf("chunk %d: embedding dimension %d, want %d", start+i, len(vec), dim)
			}
		}
		for sub := 0; sub < len(batch); sub += s.opts.InsertBatch {
			subEnd := min(sub+s.opts.InsertBatch, len(batch))
			now := timeutil.NowMilli()
			rows := make([]model.DocumentChunk, 0, subEnd-sub)
			for i := sub; i < subEnd; i++ {
				rows = append(rows, model.DocumentChunk{
					ID:         newID(),
					DocumentID: docID,
					Position:   start + i,
					Content:    batch[i],
					Embedding:  vecs[i],
					Ctime:      now,
				})
			}
			if *tx == nil {
				if *tx, err = s.store.Begin(ctx); err != nil {
					return stored, fmt.Errorf("begin chunk batch: %w", err)
				}
			}
			if err := (*tx).InsertChunks(ctx, docID, rows); err != nil {
				return stored, fmt.Errorf("insert chunks at %d: %w", start+sub, err)
			}
			err := (*tx).Commit()
			*tx = nil
			if err != nil {
				return stored, fmt.Errorf("commit chunks at %d: %w", start+sub, err)
			}
			stored += len(rows)
		}
	}
	return stored, nil
}

func (s *IngestService) markReady(ctx context.Context, docID string, tx *repo.IngestTx) error {
	var err error
	if *tx == nil {
		if *tx, err = s.store.Begin(ctx); err != nil {
			return fmt.Errorf("begin finalize: %w", err)
		}
	}
	if err := (*tx).MarkReady(ctx, docID); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	err = (*tx).Commit()
	*tx = nil
	if err != nil {
		return fmt.Errorf("commit ready: %w", err)
	}
	return nil
}

// cleanup removes committed parts of a failed ingestion. A failure here
// leaves the document in the ingesting state for the reconcile job.
func (s *IngestService) cleanup(ctx context.Context, doc *model.Document) {
	err := s.store.Delete(context.WithoutCancel(ctx), doc.TenantID, doc.ID)
	if err == nil || errors.Is(err, appErr.ErrNotFound) {
		return
	}
	logutil.GetLogger(ctx).Warn("cleanup of failed ingestion failed, left for reconcile",
		zap.String("document_id", doc.ID), zap.Error(err))
}

func (s *IngestService) archiveUpload(ctx context.Context, doc *model.Document, data []byte) {
	if s.archive == nil {
		return
	}
	key := filestore.ArchiveKey(doc.TenantID, doc.ContentHash, doc.Filename)
	if err := filestore.SaveBytes(ctx, s.archive, key, data); err != nil {
		logutil.GetLogger(ctx).Warn("archive upload failed", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	if err := s.store.SetArchiveKey(ctx, doc.ID, key); err != nil {
		logutil.GetLogger(ctx).Warn("record archive key failed", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	doc.ArchiveKey = key
}
