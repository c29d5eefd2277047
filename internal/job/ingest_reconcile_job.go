package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type StaleReconciler interface {
	ReconcileStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// IngestReconcileJob removes documents left in the ingesting state by a
// crashed or failed ingestion, which would otherwise block re-upload.
type IngestReconcileJob struct {
	docs   StaleReconciler
	maxAge time.Duration
}

func NewIngestReconcileJob(docs StaleReconciler, maxAge time.Duration) *IngestReconcileJob {
	return &IngestReconcileJob{docs: docs, maxAge: maxAge}
}

func (j *IngestReconcileJob) Name() string {
	return "ingest_reconcile"
}

func (j *IngestReconcileJob) Run(ctx context.Context) error {
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	removed, err := j.docs.ReconcileStale(ctx, maxAge)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("stale ingestions removed", zap.Int("count", removed))
	}
	return nil
}
