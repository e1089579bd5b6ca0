// Package search answers natural-language queries against a job's corpus.
package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/internal/metrics"
	"github.com/codereader/codereader/internal/models"
	"github.com/codereader/codereader/internal/store"
)

// Query limits
const (
	DefaultLimit    = 10
	MaxLimit        = 100
	DefaultMinScore = 0.7
)

// Store is the retrieval surface the searcher needs
type Store interface {
	HasVectorIndex(ctx context.Context, dimension int) bool
	VectorSearch(ctx context.Context, jobID string, vector []float32, limit int) ([]store.ScoredChunkID, error)
	EmbeddingsByJob(ctx context.Context, jobID string) ([]models.Embedding, error)
	ChunksByIDs(ctx context.Context, chunkIDs []string) ([]models.Chunk, error)
}

// Jobs resolves the job a query runs against
type Jobs interface {
	GetByID(ctx context.Context, jobID string) (*models.Job, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.Job, error)
}

// Embedder embeds the query text
type Embedder interface {
	EmbedQuery(ctx context.Context, text string, model string) ([]float32, error)
}

// Query is one search request. JobID wins over Identifier when both are set.
type Query struct {
	Query      string
	JobID      string
	Identifier string
	Limit      int
	MinScore   float64
}

// Searcher executes semantic searches. The retrieval backend (native vector
// index vs in-memory cosine) is probed once per process.
type Searcher struct {
	store  Store
	jobs   Jobs
	embed  Embedder
	logger *slog.Logger

	backendOnce sync.Once
	useNative   bool
}

// NewSearcher creates a search service
func NewSearcher(st Store, jobs Jobs, embed Embedder, logger *slog.Logger) *Searcher {
	return &Searcher{store: st, jobs: jobs, embed: embed, logger: logger}
}

// Search embeds the query, retrieves the top candidates for the job, and
// returns chunk payloads with score ≥ MinScore in descending score order.
func (s *Searcher) Search(ctx context.Context, q Query) ([]models.SearchResult, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, apperrors.Validation("query must not be empty")
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return nil, apperrors.Validation("limit must be between 1 and %d", MaxLimit)
	}
	if q.MinScore < 0 || q.MinScore > 1 {
		return nil, apperrors.Validation("minScore must be between 0 and 1")
	}

	job, err := s.resolveJob(ctx, q)
	if err != nil {
		return nil, err
	}

	queryVector, err := s.embed.EmbedQuery(ctx, q.Query, job.Config.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	backend := s.selectBackend(ctx, len(queryVector))
	started := time.Now()

	var scored []store.ScoredChunkID
	if backend == "native" {
		scored, err = s.store.VectorSearch(ctx, job.JobID, queryVector, q.Limit)
	} else {
		scored, err = s.cosineFallback(ctx, job.JobID, queryVector, q.Limit)
	}
	if err != nil {
		return nil, err
	}
	metrics.SearchDuration.WithLabelValues(backend).Observe(time.Since(started).Seconds())

	return s.assembleResults(ctx, scored, q.MinScore)
}

func (s *Searcher) resolveJob(ctx context.Context, q Query) (*models.Job, error) {
	switch {
	case q.JobID != "":
		return s.jobs.GetByID(ctx, q.JobID)
	case q.Identifier != "":
		return s.jobs.GetByIdentifier(ctx, q.Identifier)
	default:
		return nil, apperrors.Validation("either jobId or identifier is required")
	}
}

func (s *Searcher) selectBackend(ctx context.Context, dimension int) string {
	s.backendOnce.Do(func() {
		s.useNative = s.store.HasVectorIndex(ctx, dimension)
		if s.useNative {
			s.logger.Info("using native vector search index")
		} else {
			s.logger.Info("no usable vector search index on embeddings; " +
				"falling back to in-memory cosine similarity — create a vector index " +
				"with cosine similarity over the vector field to enable native search")
		}
	})
	if s.useNative {
		return "native"
	}
	return "memory"
}

// cosineFallback scores every embedding of the job in memory and keeps the
// top limit. O(N) per query; acceptable for the corpus sizes a single job
// produces.
func (s *Searcher) cosineFallback(ctx context.Context, jobID string, queryVector []float32, limit int) ([]store.ScoredChunkID, error) {
	embeddings, err := s.store.EmbeddingsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	scored := make([]store.ScoredChunkID, 0, len(embeddings))
	for _, emb := range embeddings {
		scored = append(scored, store.ScoredChunkID{
			ChunkID: emb.ChunkID,
			Score:   CosineSimilarity(queryVector, emb.Vector),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *Searcher) assembleResults(ctx context.Context, scored []store.ScoredChunkID, minScore float64) ([]models.SearchResult, error) {
	if len(scored) == 0 {
		return []models.SearchResult{}, nil
	}

	chunkIDs := make([]string, len(scored))
	for i, sc := range scored {
		chunkIDs[i] = sc.ChunkID
	}
	chunks, err := s.store.ChunksByIDs(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}

	results := make([]models.SearchResult, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < minScore {
			continue
		}
		chunk, ok := byID[sc.ChunkID]
		if !ok {
			s.logger.Warn("scored chunk missing from store", "chunkId", sc.ChunkID)
			continue
		}
		results = append(results, models.SearchResult{
			RelativePath: chunk.RelativePath,
			Content:      chunk.Content,
			StartLine:    chunk.StartLine,
			EndLine:      chunk.EndLine,
			Score:        sc.Score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// CosineSimilarity returns a·b / (||a||·||b||), or 0 when either norm is
// zero. Mismatched dimensions are a programmer error.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
