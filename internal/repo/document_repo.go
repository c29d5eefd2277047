package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

var documentFields = []string{
	"id", "tenant_id", "uploader_id", "filename", "file_type", "content_hash",
	"state", "expected_chunks", "chunk_count", "archive_key", "ctime", "mtime",
}

type DocumentRepo struct {
	db DBTX
}

func NewDocumentRepo(db DBTX) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":              doc.ID,
		"tenant_id":       doc.TenantID,
		"uploader_id":     doc.UploaderID,
		"filename":        doc.Filename,
		"file_type":       doc.FileType,
		"content_hash":    doc.ContentHash,
		"state":           doc.State,
		"expected_chunks": doc.ExpectedChunks,
		"chunk_count":     doc.ChunkCount,
		"archive_key":     doc.ArchiveKey,
		"ctime":           doc.Ctime,
		"mtime":           doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrDuplicateDocument
		}
		return dbutil.Classify(err)
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"id": docID, "tenant_id": tenantID})
}

// GetByHash looks up a document in any state, so an in-flight upload also
// blocks a duplicate.
func (r *DocumentRepo) GetByHash(ctx context.Context, tenantID, contentHash string) (*model.Document, error) {
	return r.getOne(ctx, map[string]interface{}{"tenant_id": tenantID, "content_hash": contentHash})
}

func (r *DocumentRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, dbutil.Classify(err)
		}
		return nil, appErr.ErrNotFound
	}
	return scanDocument(rows)
}

func (r *DocumentRepo) ListByTenant(ctx context.Context, tenantID string, offset, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"tenant_id": tenantID,
		"_orderby":  "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.list(ctx, where)
}

// ListStale returns documents still ingesting whose last progress is older
// than cutoff.
func (r *DocumentRepo) ListStale(ctx context.Context, cutoff int64, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"state":    model.DocumentStateIngesting,
		"mtime <":  cutoff,
		"_orderby": "mtime asc",
		"_limit":   []uint{0, limit},
	}
	return r.list(ctx, where)
}

func (r *DocumentRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) IncrChunkCount(ctx context.Context, docID string, delta int, mtime int64) error {
	const query = `UPDATE documents SET chunk_count = chunk_count + $1, mtime = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, delta, mtime, docID)
	if err != nil {
		return dbutil.Classify(err)
	}
	return affectedOrNotFound(res, appErr.ErrNotFound)
}

func (r *DocumentRepo) MarkReady(ctx context.Context, docID string, mtime int64) error {
	where := map[string]interface{}{"id": docID}
	update := map[string]interface{}{"state": model.DocumentStateReady, "mtime": mtime}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return dbutil.Classify(err)
	}
	return affectedOrNotFound(res, appErr.ErrNotFound)
}

func (r *DocumentRepo) SetArchiveKey(ctx context.Context, docID, key string, mtime int64) error {
	where := map[string]interface{}{"id": docID}
	update := map[string]interface{}{"archive_key": key, "mtime": mtime}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, appErr.ErrNotFound)
}

// Delete removes the document and, through the foreign key, its chunks.
func (r *DocumentRepo) Delete(ctx context.Context, tenantID, docID string) error {
	where := map[string]interface{}{"id": docID, "tenant_id": tenantID}
	sqlStr, args, err := builder.BuildDelete("documents", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return dbutil.Classify(err)
	}
	return affectedOrNotFound(res, appErr.ErrNotFound)
}

// DeleteIfIngesting removes a document only while it is still ingesting, so
// a reconcile pass never races a document that just became ready.
func (r *DocumentRepo) DeleteIfIngesting(ctx context.Context, docID string, cutoff int64) (bool, error) {
	where := map[string]interface{}{
		"id":      docID,
		"state":   model.DocumentStateIngesting,
		"mtime <": cutoff,
	}
	sqlStr, args, err := builder.BuildDelete("documents", where)
	if err != nil {
		return false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, dbutil.Classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	if err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.UploaderID, &doc.Filename, &doc.FileType, &doc.ContentHash,
		&doc.State, &doc.ExpectedChunks, &doc.ChunkCount, &doc.ArchiveKey, &doc.Ctime, &doc.Mtime,
	); err != nil {
		return nil, err
	}
	return &doc, nil
}
