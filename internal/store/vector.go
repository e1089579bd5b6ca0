package store

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/codereader/codereader/internal/apperrors"
)

const vectorIndexName = "embeddings_vector_index"

// maxVectorCandidates bounds the candidate pool for the native search stage
const maxVectorCandidates = 1000

// ScoredChunkID is a chunkId with its similarity score
type ScoredChunkID struct {
	ChunkID string  `bson:"chunkId"`
	Score   float64 `bson:"score"`
}

// HasVectorIndex probes the embeddings collection for a READY/ACTIVE vector
// search index over the vector field with the given dimension and cosine
// similarity. The result is intended to be checked once per process.
func (s *Store) HasVectorIndex(ctx context.Context, dimension int) bool {
	cursor, err := s.embeddings.SearchIndexes().List(ctx, nil)
	if err != nil {
		s.logger.Debug("vector index probe failed", "error", err)
		return false
	}
	defer cursor.Close(ctx)

	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		return false
	}

	for _, idx := range indexes {
		name, _ := idx["name"].(string)
		if name != vectorIndexName {
			continue
		}
		status, _ := idx["status"].(string)
		switch strings.ToUpper(status) {
		case "READY", "ACTIVE":
		default:
			continue
		}
		if def, ok := idx["latestDefinition"].(bson.M); ok {
			if fields, ok := def["fields"].(bson.A); ok {
				for _, f := range fields {
					fm, ok := f.(bson.M)
					if !ok {
						continue
					}
					dim, _ := toInt(fm["numDimensions"])
					sim, _ := fm["similarity"].(string)
					if dim == dimension && strings.EqualFold(sim, "cosine") {
						return true
					}
				}
			}
		}
	}
	return false
}

// VectorSearch runs the native $vectorSearch aggregation, returning up to
// limit chunkIds scored by cosine similarity, filtered to one job.
func (s *Store) VectorSearch(ctx context.Context, jobID string, vector []float32, limit int) ([]ScoredChunkID, error) {
	numCandidates := limit * 10
	if numCandidates > maxVectorCandidates {
		numCandidates = maxVectorCandidates
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: vectorIndexName},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: limit},
			{Key: "filter", Value: bson.D{{Key: "jobId", Value: jobID}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "chunkId", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.embeddings.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperrors.Database("vector search failed", err)
	}
	defer cursor.Close(ctx)

	var results []ScoredChunkID
	if err := cursor.All(ctx, &results); err != nil {
		return nil, apperrors.Database("failed to decode vector search results", err)
	}
	return results, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
