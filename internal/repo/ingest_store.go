package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/timeutil"
)

// IngestTx is one unit of ingestion work: a document insert, a chunk
// sub-batch or the final state flip.
type IngestTx interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	InsertChunks(ctx context.Context, docID string, chunks []model.DocumentChunk) error
	MarkReady(ctx context.Context, docID string) error
	Commit() error
	Rollback() error
}

// IngestStore groups the document and chunk tables behind explicit
// transactions for the ingestion pipeline.
type IngestStore struct {
	db   *sql.DB
	docs *DocumentRepo
}

func NewIngestStore(db *sql.DB) *IngestStore {
	return &IngestStore{db: db, docs: NewDocumentRepo(db)}
}

func (s *IngestStore) GetByHash(ctx context.Context, tenantID, contentHash string) (*model.Document, error) {
	return s.docs.GetByHash(ctx, tenantID, contentHash)
}

func (s *IngestStore) Delete(ctx context.Context, tenantID, docID string) error {
	return s.docs.Delete(ctx, tenantID, docID)
}

func (s *IngestStore) SetArchiveKey(ctx context.Context, docID, key string) error {
	return s.docs.SetArchiveKey(ctx, docID, key, timeutil.NowMilli())
}

func (s *IngestStore) Begin(ctx context.Context) (IngestTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ingest tx: %w", err)
	}
	return &sqlIngestTx{tx: tx, docs: NewDocumentRepo(tx), chunks: NewChunkRepo(tx)}, nil
}

type sqlIngestTx struct {
	tx     *sql.Tx
	docs   *DocumentRepo
	chunks *ChunkRepo
}

func (t *sqlIngestTx) CreateDocument(ctx context.Context, doc *model.Document) error {
	return t.docs.Create(ctx, doc)
}

func (t *sqlIngestTx) InsertChunks(ctx context.Context, docID string, chunks []model.DocumentChunk) error {
	if err := t.chunks.InsertBatch(ctx, chunks); err != nil {
		return err
	}
	return t.docs.IncrChunkCount(ctx, docID, len(chunks), timeutil.NowMilli())
}

func (t *sqlIngestTx) MarkReady(ctx context.Context, docID string) error {
	return t.docs.MarkReady(ctx, docID, timeutil.NowMilli())
}

func (t *sqlIngestTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlIngestTx) Rollback() error {
	return t.tx.Rollback()
}
