package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
)

type ChunkSearcher interface {
	Search(ctx context.Context, tenantID string, query []float32, limit int) ([]model.ChunkHit, error)
}

type QueryTranslator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type RetrievalResult struct {
	Hits      []model.ChunkHit
	Query     string
	Fallback  bool
	Confident bool
}

// TopScore is the best score, or -1 when there are no hits.
func (r *RetrievalResult) TopScore() float64 {
	return topScore(r.Hits)
}

type RetrievalService struct {
	searcher   ChunkSearcher
	embedder   ai.IEmbedder
	translator QueryTranslator
	threshold  float64
}

// NewRetrievalService builds a retriever. translator may be nil, which
// disables the cross-language fallback.
func NewRetrievalService(searcher ChunkSearcher, embedder ai.IEmbedder, translator QueryTranslator, threshold float64) *RetrievalService {
	return &RetrievalService{searcher: searcher, embedder: embedder, translator: translator, threshold: threshold}
}

// Retrieve runs a tenant scoped nearest neighbour search. When the result is
// empty or below the refusal threshold it retries exactly once with the
// query translated into the pivot language and keeps the better result.
func (s *RetrievalService) Retrieve(ctx context.Context, tenantID, query string, topK int) (*RetrievalResult, error) {
	hits, err := s.search(ctx, tenantID, query, topK)
	if err != nil {
		return nil, err
	}
	res := &RetrievalResult{Hits: hits, Query: query, Confident: s.confident(hits)}
	if res.Confident || s.translator == nil {
		return res, nil
	}

	logger := logutil.GetLogger(ctx).With(zap.String("tenant_id", tenantID))
	translated, err := s.translator.Translate(ctx, query)
	translated = strings.TrimSpace(translated)
	if err != nil {
		logger.Warn("query translation failed, keep original result", zap.Error(err))
		return res, nil
	}
	if translated == "" || strings.EqualFold(translated, strings.TrimSpace(query)) {
		return res, nil
	}
	alt, err := s.search(ctx, tenantID, translated, topK)
	if err != nil {
		logger.Warn("fallback retrieval failed, keep original result", zap.Error(err))
		return res, nil
	}
	logger.Debug("fallback retrieval",
		zap.Float64("original_top", topScore(hits)),
		zap.Float64("fallback_top", topScore(alt)))
	if topScore(alt) > topScore(hits) {
		return &RetrievalResult{Hits: alt, Query: translated, Fallback: true, Confident: s.confident(alt)}, nil
	}
	return res, nil
}

func (s *RetrievalService) search(ctx context.Context, tenantID, query string, topK int) ([]model.ChunkHit, error) {
	vec, err := ai.EmbedOne(ctx, s.embedder, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.searcher.Search(ctx, tenantID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return rankHits(hits), nil
}

func (s *RetrievalService) confident(hits []model.ChunkHit) bool {
	return len(hits) > 0 && hits[0].Score >= s.threshold
}

// rankHits clamps scores to [0,1] and orders by score desc then chunk id.
func rankHits(hits []model.ChunkHit) []model.ChunkHit {
	for i := range hits {
		switch {
		case hits[i].Score < 0:
			hits[i].Score = 0
		case hits[i].Score > 1:
			hits[i].Score = 1
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	return hits
}

func topScore(hits []model.ChunkHit) float64 {
	if len(hits) == 0 {
		return -1
	}
	return hits[0].Score
}
