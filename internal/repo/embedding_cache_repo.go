package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
)

type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// GetMany returns the cached vectors keyed by content hash; misses are absent.
func (r *EmbeddingCacheRepo) GetMany(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(contentHashes))
	if len(contentHashes) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT content_hash, embedding FROM embedding_cache
		WHERE model_name = ? AND task_type = ? AND content_hash IN (?)
	`, modelName, taskType, contentHashes)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, dbutil.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			hash string
			vec  pgvector.Vector
		)
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, err
		}
		out[hash] = vec.Slice()
	}
	return out, rows.Err()
}

// SaveMany upserts items in one statement. Later duplicates of the same key
// in items are dropped.
func (r *EmbeddingCacheRepo) SaveMany(ctx context.Context, items []model.EmbeddingCache) error {
	if len(items) == 0 {
		return nil
	}
	type key struct{ model, task, hash string }
	seen := make(map[key]struct{}, len(items))
	values := make([]string, 0, len(items))
	args := make([]interface{}, 0, len(items)*5)
	for _, item := range items {
		k := key{item.ModelName, item.TaskType, item.ContentHash}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		values = append(values, "(?, ?, ?, ?, ?)")
		args = append(args, item.ModelName, item.TaskType, item.ContentHash, pgvector.NewVector(item.Embedding), item.Ctime)
	}
	query := fmt.Sprintf(`
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES %s
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`, strings.Join(values, ", "))
	if _, err := r.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return dbutil.Classify(err)
	}
	return nil
}

// DeleteBefore removes entries created before cutoff (unix millis).
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < $1`, cutoff)
	if err != nil {
		return 0, dbutil.Classify(err)
	}
	return res.RowsAffected()
}
