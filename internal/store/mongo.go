// Package store persists jobs, files, chunks, and embeddings in MongoDB and
// exposes the vector retrieval paths used by the search service.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/codereader/codereader/pkg/config"
)

const (
	serverSelectionTimeout = 5 * time.Second
	connectTimeout         = 10 * time.Second
	minPoolSize            = 2
	maxPoolSize            = 10

	reconnectAttempts    = 3
	reconnectBackoffBase = 1 * time.Second
	reconnectBackoffCap  = 60 * time.Second
)

// Collection names
const (
	collJobs       = "jobs"
	collFiles      = "files"
	collChunks     = "chunks"
	collEmbeddings = "embeddings"
)

// Store wraps the MongoDB database holding the four collections
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger

	jobs       *mongo.Collection
	files      *mongo.Collection
	chunks     *mongo.Collection
	embeddings *mongo.Collection
}

// Connect probes the labeled candidate URIs in priority order and commits to
// the first one that answers a ping. Each candidate gets up to three attempts
// with exponential backoff before the next candidate is tried; a candidate
// that exhausts its attempts is not retried later.
func Connect(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	candidates := cfg.CandidateURIs()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no store URIs configured")
	}

	var lastErr error
	for _, cand := range candidates {
		client, err := connectWithRetry(ctx, cand, logger)
		if err != nil {
			logger.Warn("store candidate unreachable", "label", cand.Label, "error", err)
			lastErr = err
			continue
		}

		logger.Info("connected to document store", "label", cand.Label, "database", cfg.Database)
		s := &Store{
			client: client,
			db:     client.Database(cfg.Database),
			logger: logger,
		}
		s.jobs = s.db.Collection(collJobs)
		s.files = s.db.Collection(collFiles)
		s.chunks = s.db.Collection(collChunks)
		s.embeddings = s.db.Collection(collEmbeddings)

		if err := s.ensureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		return s, nil
	}

	return nil, fmt.Errorf("no store candidate answered: %w", lastErr)
}

func connectWithRetry(ctx context.Context, cand config.URICandidate, logger *slog.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cand.URI).
		SetServerSelectionTimeout(serverSelectionTimeout).
		SetConnectTimeout(connectTimeout).
		SetMinPoolSize(minPoolSize).
		SetMaxPoolSize(maxPoolSize)

	backoff := reconnectBackoffBase
	var lastErr error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		client, err := mongo.Connect(ctx, opts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
			err = client.Ping(pingCtx, readpref.Primary())
			cancel()
			if err == nil {
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		if attempt < reconnectAttempts {
			logger.Warn("store connect failed, retrying",
				"label", cand.Label, "attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			if backoff > reconnectBackoffCap {
				backoff = reconnectBackoffCap
			}
		}
	}
	return nil, lastErr
}

// Close disconnects the underlying client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies the connection is still alive
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.jobs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "jobId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "identifier", Value: 1}, {Key: "version", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		}},
		{s.files, []mongo.IndexModel{
			{Keys: bson.D{{Key: "fileId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "relativePath", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "batchNumber", Value: 1}}},
		}},
		{s.chunks, []mongo.IndexModel{
			{Keys: bson.D{{Key: "chunkId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "relativePath", Value: 1}}},
		}},
		{s.embeddings, []mongo.IndexModel{
			{Keys: bson.D{{Key: "chunkId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "jobId", Value: 1}}},
		}},
	}

	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateMany(ctx, spec.models); err != nil {
			return fmt.Errorf("indexes for %s: %w", spec.coll.Name(), err)
		}
	}
	return nil
}
