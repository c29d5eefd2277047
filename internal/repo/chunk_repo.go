package repo

import (
	"context"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db DBTX
}

func NewChunkRepo(db DBTX) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch writes chunks in one multi-row INSERT. Every chunk must carry
// its embedding.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		data = append(data, map[string]interface{}{
			"id":          c.ID,
			"document_id": c.DocumentID,
			"position":    c.Position,
			"content":     c.Content,
			"embedding":   pgvector.NewVector(c.Embedding),
			"ctime":       c.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("document_chunks", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return dbutil.Classify(err)
	}
	return nil
}

// Search returns the nearest ready chunks of one tenant. Score is
// 1 - cosine distance; ties are broken by chunk id.
func (r *ChunkRepo) Search(ctx context.Context, tenantID string, query []float32, limit int) ([]model.ChunkHit, error) {
	const sqlStr = `
		SELECT c.id, c.document_id, d.filename, c.position, c.content, 1 - (c.embedding <=> $1) AS score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.tenant_id = $2 AND d.state = $3
		ORDER BY c.embedding <=> $1, c.id
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, sqlStr, pgvector.NewVector(query), tenantID, model.DocumentStateReady, limit)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	var hits []model.ChunkHit
	for rows.Next() {
		var h model.ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Filename, &h.Position, &h.Content, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, docID string) ([]model.DocumentChunk, error) {
	where := map[string]interface{}{
		"document_id": docID,
		"_orderby":    "position asc",
	}
	sqlStr, args, err := builder.BuildSelect("document_chunks", where, []string{"id", "document_id", "position", "content", "embedding", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.DocumentChunk
	for rows.Next() {
		var c model.DocumentChunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Content, &vec, &c.Ctime); err != nil {
			return nil, err
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	const sqlStr = `
		SELECT COUNT(*) FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.tenant_id = $1
	`
	var n int
	if err := r.db.QueryRowContext(ctx, sqlStr, tenantID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
