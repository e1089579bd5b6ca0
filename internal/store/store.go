package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/internal/models"
)

// ErrNotFound is returned when a lookup matches no document
var ErrNotFound = errors.New("document not found")

// --- jobs ---

// InsertJob persists a new job document
func (s *Store) InsertJob(ctx context.Context, job *models.Job) error {
	if _, err := s.jobs.InsertOne(ctx, job); err != nil {
		return apperrors.Database("failed to insert job", err)
	}
	return nil
}

// GetJobByID loads a job by its jobId
func (s *Store) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := s.jobs.FindOne(ctx, bson.M{"jobId": jobID}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Database("failed to load job", err)
	}
	return &job, nil
}

// GetLatestJobByIdentifier loads the highest-version job for an identifier
func (s *Store) GetLatestJobByIdentifier(ctx context.Context, identifier string) (*models.Job, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var job models.Job
	err := s.jobs.FindOne(ctx, bson.M{"identifier": identifier}, opts).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Database("failed to load job by identifier", err)
	}
	return &job, nil
}

// ListJobVersions returns all jobs for an identifier, newest version first
func (s *Store) ListJobVersions(ctx context.Context, identifier string) ([]models.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: -1}})
	cursor, err := s.jobs.Find(ctx, bson.M{"identifier": identifier}, opts)
	if err != nil {
		return nil, apperrors.Database("failed to list job versions", err)
	}
	defer cursor.Close(ctx)

	var jobs []models.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, apperrors.Database("failed to decode job versions", err)
	}
	return jobs, nil
}

// UpdateJobFields applies a $set patch to one job and bumps updatedAt
func (s *Store) UpdateJobFields(ctx context.Context, jobID string, fields bson.M) error {
	patch := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		patch[k] = v
	}
	res, err := s.jobs.UpdateOne(ctx, bson.M{"jobId": jobID}, bson.M{"$set": patch})
	if err != nil {
		return apperrors.Database("failed to update job", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus writes a status change, stamping completedAt on
// completion and error on failure.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	fields := bson.M{"status": status}
	if status == models.JobStatusCompleted {
		fields["completedAt"] = time.Now().UTC()
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	return s.UpdateJobFields(ctx, jobID, fields)
}

// UpdateJobProgress applies the non-nil fields of patch to the job's progress
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, patch models.ProgressPatch) error {
	fields := bson.M{}
	if patch.TotalFiles != nil {
		fields["progress.totalFiles"] = *patch.TotalFiles
	}
	if patch.ProcessedFiles != nil {
		fields["progress.processedFiles"] = *patch.ProcessedFiles
	}
	if patch.CurrentBatch != nil {
		fields["progress.currentBatch"] = *patch.CurrentBatch
	}
	if patch.TotalBatches != nil {
		fields["progress.totalBatches"] = *patch.TotalBatches
	}
	if len(fields) == 0 {
		return nil
	}
	return s.UpdateJobFields(ctx, jobID, fields)
}

// DeleteJob removes one job document
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	if _, err := s.jobs.DeleteOne(ctx, bson.M{"jobId": jobID}); err != nil {
		return apperrors.Database("failed to delete job", err)
	}
	return nil
}

// --- files ---

// InsertFiles persists a batch of file records
func (s *Store) InsertFiles(ctx context.Context, files []models.File) error {
	if len(files) == 0 {
		return nil
	}
	docs := make([]any, len(files))
	for i := range files {
		docs[i] = files[i]
	}
	if _, err := s.files.InsertMany(ctx, docs); err != nil {
		return apperrors.Database("failed to insert files", err)
	}
	return nil
}

// FilesByBatch loads all file records for one (jobId, batchNumber)
func (s *Store) FilesByBatch(ctx context.Context, jobID string, batchNumber int) ([]models.File, error) {
	cursor, err := s.files.Find(ctx, bson.M{"jobId": jobID, "batchNumber": batchNumber})
	if err != nil {
		return nil, apperrors.Database("failed to load batch files", err)
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err := cursor.All(ctx, &files); err != nil {
		return nil, apperrors.Database("failed to decode batch files", err)
	}
	return files, nil
}

// DeleteFilesByBatch removes all file records for one (jobId, batchNumber)
func (s *Store) DeleteFilesByBatch(ctx context.Context, jobID string, batchNumber int) error {
	if _, err := s.files.DeleteMany(ctx, bson.M{"jobId": jobID, "batchNumber": batchNumber}); err != nil {
		return apperrors.Database("failed to delete batch files", err)
	}
	return nil
}

// DeleteFilesByJob removes every file record for a job
func (s *Store) DeleteFilesByJob(ctx context.Context, jobID string) error {
	if _, err := s.files.DeleteMany(ctx, bson.M{"jobId": jobID}); err != nil {
		return apperrors.Database("failed to delete job files", err)
	}
	return nil
}

// --- chunks ---

// InsertChunks persists a batch of chunks
func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]any, len(chunks))
	for i := range chunks {
		docs[i] = chunks[i]
	}
	if _, err := s.chunks.InsertMany(ctx, docs); err != nil {
		return apperrors.Database("failed to insert chunks", err)
	}
	return nil
}

// ChunksByIDs loads chunks for the given chunkIds
func (s *Store) ChunksByIDs(ctx context.Context, chunkIDs []string) ([]models.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.chunks.Find(ctx, bson.M{"chunkId": bson.M{"$in": chunkIDs}})
	if err != nil {
		return nil, apperrors.Database("failed to load chunks", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, apperrors.Database("failed to decode chunks", err)
	}
	return chunks, nil
}

// ChunksByFileIDs loads all chunks belonging to the given fileIds
func (s *Store) ChunksByFileIDs(ctx context.Context, fileIDs []string) ([]models.Chunk, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.chunks.Find(ctx, bson.M{"fileId": bson.M{"$in": fileIDs}})
	if err != nil {
		return nil, apperrors.Database("failed to load file chunks", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, apperrors.Database("failed to decode file chunks", err)
	}
	return chunks, nil
}

// DeleteChunksByFileIDs removes all chunks for the given fileIds
func (s *Store) DeleteChunksByFileIDs(ctx context.Context, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"fileId": bson.M{"$in": fileIDs}}); err != nil {
		return apperrors.Database("failed to delete file chunks", err)
	}
	return nil
}

// DeleteChunksByJob removes every chunk for a job
func (s *Store) DeleteChunksByJob(ctx context.Context, jobID string) error {
	if _, err := s.chunks.DeleteMany(ctx, bson.M{"jobId": jobID}); err != nil {
		return apperrors.Database("failed to delete job chunks", err)
	}
	return nil
}

// --- embeddings ---

// InsertEmbeddings persists a batch of embeddings
func (s *Store) InsertEmbeddings(ctx context.Context, embeddings []models.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	docs := make([]any, len(embeddings))
	for i := range embeddings {
		docs[i] = embeddings[i]
	}
	if _, err := s.embeddings.InsertMany(ctx, docs); err != nil {
		return apperrors.Database("failed to insert embeddings", err)
	}
	return nil
}

// EmbeddingsByJob loads every embedding for a job. Used by the in-memory
// cosine fallback, which scores the whole corpus per query.
func (s *Store) EmbeddingsByJob(ctx context.Context, jobID string) ([]models.Embedding, error) {
	cursor, err := s.embeddings.Find(ctx, bson.M{"jobId": jobID})
	if err != nil {
		return nil, apperrors.Database("failed to load job embeddings", err)
	}
	defer cursor.Close(ctx)

	var embeddings []models.Embedding
	if err := cursor.All(ctx, &embeddings); err != nil {
		return nil, apperrors.Database("failed to decode job embeddings", err)
	}
	return embeddings, nil
}

// DeleteEmbeddingsByChunkIDs removes embeddings for the given chunkIds
func (s *Store) DeleteEmbeddingsByChunkIDs(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if _, err := s.embeddings.DeleteMany(ctx, bson.M{"chunkId": bson.M{"$in": chunkIDs}}); err != nil {
		return apperrors.Database("failed to delete embeddings", err)
	}
	return nil
}

// DeleteEmbeddingsByJob removes every embedding for a job
func (s *Store) DeleteEmbeddingsByJob(ctx context.Context, jobID string) error {
	if _, err := s.embeddings.DeleteMany(ctx, bson.M{"jobId": jobID}); err != nil {
		return apperrors.Database("failed to delete job embeddings", err)
	}
	return nil
}
