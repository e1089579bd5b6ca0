// Package processor orchestrates Scanner → Extractor → Chunker → Embedder →
// Store per batch, with cooperative cancellation and per-batch rollback.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/internal/indexer"
	"github.com/codereader/codereader/internal/metrics"
	"github.com/codereader/codereader/internal/models"
	"github.com/codereader/codereader/internal/queue"
)

// Store is the artifact persistence surface the processor needs
type Store interface {
	InsertFiles(ctx context.Context, files []models.File) error
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	InsertEmbeddings(ctx context.Context, embeddings []models.Embedding) error
	FilesByBatch(ctx context.Context, jobID string, batchNumber int) ([]models.File, error)
	ChunksByFileIDs(ctx context.Context, fileIDs []string) ([]models.Chunk, error)
	DeleteEmbeddingsByChunkIDs(ctx context.Context, chunkIDs []string) error
	DeleteChunksByFileIDs(ctx context.Context, fileIDs []string) error
	DeleteFilesByBatch(ctx context.Context, jobID string, batchNumber int) error
}

// Jobs is the job lifecycle surface the processor needs
type Jobs interface {
	GetByID(ctx context.Context, jobID string) (*models.Job, error)
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error
	UpdateProgress(ctx context.Context, jobID string, patch models.ProgressPatch) error
}

// Embedder turns texts into vectors, preserving input order
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// JobQueue serializes job actions
type JobQueue interface {
	Enqueue(jobID string, action queue.Action) (int, error)
	IsJobQueued(jobID string) bool
}

// Processor runs indexing jobs batch by batch. It exclusively creates File,
// Chunk, and Embedding records.
type Processor struct {
	store   Store
	jobs    Jobs
	embed   Embedder
	queue   JobQueue
	chunker *indexer.Chunker
	logger  *slog.Logger

	mu    sync.Mutex
	stops map[string]bool
}

// New creates a processor
func New(st Store, jobs Jobs, embed Embedder, q JobQueue, chunker *indexer.Chunker, logger *slog.Logger) *Processor {
	return &Processor{
		store:   st,
		jobs:    jobs,
		embed:   embed,
		queue:   q,
		chunker: chunker,
		logger:  logger,
		stops:   make(map[string]bool),
	}
}

// StartProcessing validates the job can run and enqueues its action.
// Returns the 1-based queue position.
func (p *Processor) StartProcessing(ctx context.Context, jobID string, fileLimit int) (int, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if p.queue.IsJobQueued(jobID) {
		return 0, apperrors.Conflict("job is already queued: %s", jobID)
	}
	if job.Status != models.JobStatusPending && job.Status != models.JobStatusFailed {
		return 0, apperrors.InvalidStatus("job %s cannot be processed from status %q", jobID, job.Status)
	}

	p.clearStop(jobID)
	position, err := p.queue.Enqueue(jobID, func(ctx context.Context) error {
		return p.processJob(ctx, jobID, fileLimit)
	})
	if err != nil {
		return 0, apperrors.Internal("failed to enqueue job", err)
	}
	return position, nil
}

// StopProcessing requests a cooperative stop. The flag is observed between
// batches, so the in-flight batch always commits or rolls back whole.
func (p *Processor) StopProcessing(jobID string) {
	p.mu.Lock()
	p.stops[jobID] = true
	p.mu.Unlock()
	p.logger.Info("stop requested", "jobId", jobID)
}

func (p *Processor) stopRequested(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops[jobID]
}

func (p *Processor) clearStop(jobID string) {
	p.mu.Lock()
	delete(p.stops, jobID)
	p.mu.Unlock()
}

// processJob runs one indexing session for a job, resuming from the last
// committed batch.
func (p *Processor) processJob(ctx context.Context, jobID string, fileLimit int) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending && job.Status != models.JobStatusFailed {
		return apperrors.InvalidStatus("job %s cannot be processed from status %q", jobID, job.Status)
	}

	if err := p.jobs.UpdateStatus(ctx, jobID, models.JobStatusProcessing, ""); err != nil {
		return err
	}

	scan, err := indexer.NewScanner(job.Config).Scan(job.RepositoryPath)
	if err != nil {
		p.failJob(ctx, jobID, fmt.Sprintf("scan failed: %v", err))
		return apperrors.InvalidPath("failed to scan repository: %v", err)
	}

	if len(scan.Files) == 0 {
		if err := p.jobs.UpdateProgress(ctx, jobID, models.ProgressPatch{
			TotalFiles:   models.IntPtr(0),
			TotalBatches: models.IntPtr(0),
		}); err != nil {
			return err
		}
		return p.jobs.UpdateStatus(ctx, jobID, models.JobStatusCompleted, "")
	}

	batches := indexer.PartitionIntoBatches(scan.Files, job.Config.BatchSize)
	if err := p.jobs.UpdateProgress(ctx, jobID, models.ProgressPatch{
		TotalFiles:   models.IntPtr(len(scan.Files)),
		TotalBatches: models.IntPtr(len(batches)),
	}); err != nil {
		return err
	}

	sessionFiles := 0
	for i := job.Progress.CurrentBatch; i < len(batches); i++ {
		if p.stopRequested(jobID) || (fileLimit > 0 && sessionFiles >= fileLimit) {
			p.clearStop(jobID)
			p.logger.Info("job paused", "jobId", jobID, "nextBatch", i+1, "sessionFiles", sessionFiles)
			return p.jobs.UpdateStatus(ctx, jobID, models.JobStatusPending, "")
		}

		batchNumber := i + 1
		if err := p.processBatch(ctx, job, batches[i], batchNumber); err != nil {
			metrics.BatchesProcessed.WithLabelValues("failed").Inc()
			p.rollbackBatch(ctx, jobID, batchNumber)
			p.failJob(ctx, jobID, err.Error())
			return err
		}
		metrics.BatchesProcessed.WithLabelValues("committed").Inc()
		sessionFiles += len(batches[i])

		// processedFiles counts whole batches, clamped to totalFiles on
		// the last partial batch.
		processed := batchNumber * job.Config.BatchSize
		if processed > len(scan.Files) {
			processed = len(scan.Files)
		}
		if err := p.jobs.UpdateProgress(ctx, jobID, models.ProgressPatch{
			CurrentBatch:   models.IntPtr(batchNumber),
			ProcessedFiles: models.IntPtr(processed),
		}); err != nil {
			return err
		}

		runtime.Gosched()
	}

	if err := p.jobs.UpdateProgress(ctx, jobID, models.ProgressPatch{
		ProcessedFiles: models.IntPtr(len(scan.Files)),
	}); err != nil {
		return err
	}
	return p.jobs.UpdateStatus(ctx, jobID, models.JobStatusCompleted, "")
}

// processBatch extracts, chunks, embeds, and persists one batch. Persistence
// is ordered files → chunks → embeddings; any failure aborts the batch and
// the caller rolls it back.
func (p *Processor) processBatch(ctx context.Context, job *models.Job, batch []indexer.ScannedFile, batchNumber int) error {
	var files []models.File
	var chunks []models.Chunk

	for _, sf := range batch {
		extracted, err := indexer.ExtractFile(sf.AbsolutePath)
		if err != nil {
			p.logger.Warn("file unreadable, skipping", "path", sf.AbsolutePath, "error", err)
			continue
		}
		if extracted == nil {
			p.logger.Debug("binary file skipped", "path", sf.AbsolutePath)
			continue
		}

		file := models.File{
			FileID:       uuid.New().String(),
			JobID:        job.JobID,
			AbsolutePath: sf.AbsolutePath,
			RelativePath: sf.RelativePath,
			Language:     extracted.Language,
			SizeBytes:    extracted.SizeBytes,
			LineCount:    extracted.LineCount,
			ContentHash:  extracted.ContentHash,
			BatchNumber:  batchNumber,
		}
		files = append(files, file)

		for _, tc := range p.chunker.Chunk(extracted.Content, indexer.ChunkOptions{
			ChunkSize:    job.Config.ChunkSize,
			ChunkOverlap: job.Config.ChunkOverlap,
			Language:     extracted.Language,
		}) {
			chunks = append(chunks, models.Chunk{
				ChunkID:      uuid.New().String(),
				JobID:        job.JobID,
				FileID:       file.FileID,
				RelativePath: sf.RelativePath,
				Content:      tc.Content,
				StartLine:    tc.StartLine,
				EndLine:      tc.EndLine,
				TokenCount:   tc.TokenCount,
			})
		}
	}

	if len(chunks) == 0 {
		p.logger.Info("batch produced no chunks", "jobId", job.JobID, "batch", batchNumber)
		return nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := p.embed.EmbedTexts(ctx, texts, job.Config.EmbeddingModel)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return apperrors.Provider(fmt.Sprintf("embedding count mismatch: %d texts, %d vectors", len(chunks), len(vectors)), nil)
	}

	now := time.Now().UTC()
	embeddings := make([]models.Embedding, len(chunks))
	for i := range chunks {
		embeddings[i] = models.Embedding{
			ChunkID:   chunks[i].ChunkID,
			JobID:     job.JobID,
			Vector:    vectors[i],
			Model:     job.Config.EmbeddingModel,
			CreatedAt: now,
		}
	}

	if err := p.store.InsertFiles(ctx, files); err != nil {
		return err
	}
	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return err
	}
	if err := p.store.InsertEmbeddings(ctx, embeddings); err != nil {
		return err
	}

	metrics.ChunksEmbedded.Add(float64(len(chunks)))
	p.logger.Info("batch committed",
		"jobId", job.JobID, "batch", batchNumber, "files", len(files), "chunks", len(chunks))
	return nil
}

// rollbackBatch removes everything the failed batch may have written, in
// the order embeddings → chunks → files. Rollback failures are logged but
// never re-thrown so they cannot mask the original cause.
func (p *Processor) rollbackBatch(ctx context.Context, jobID string, batchNumber int) {
	files, err := p.store.FilesByBatch(ctx, jobID, batchNumber)
	if err != nil {
		p.logger.Error("rollback: loading batch files failed", "jobId", jobID, "batch", batchNumber, "error", err)
		return
	}
	fileIDs := make([]string, len(files))
	for i, f := range files {
		fileIDs[i] = f.FileID
	}

	chunks, err := p.store.ChunksByFileIDs(ctx, fileIDs)
	if err != nil {
		p.logger.Error("rollback: loading batch chunks failed", "jobId", jobID, "batch", batchNumber, "error", err)
		return
	}
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
	}

	if err := p.store.DeleteEmbeddingsByChunkIDs(ctx, chunkIDs); err != nil {
		p.logger.Error("rollback: deleting embeddings failed", "jobId", jobID, "batch", batchNumber, "error", err)
		return
	}
	if err := p.store.DeleteChunksByFileIDs(ctx, fileIDs); err != nil {
		p.logger.Error("rollback: deleting chunks failed", "jobId", jobID, "batch", batchNumber, "error", err)
		return
	}
	if err := p.store.DeleteFilesByBatch(ctx, jobID, batchNumber); err != nil {
		p.logger.Error("rollback: deleting files failed", "jobId", jobID, "batch", batchNumber, "error", err)
		return
	}
	p.logger.Info("batch rolled back", "jobId", jobID, "batch", batchNumber)
}

func (p *Processor) failJob(ctx context.Context, jobID, msg string) {
	if err := p.jobs.UpdateStatus(ctx, jobID, models.JobStatusFailed, msg); err != nil {
		p.logger.Error("failed to mark job failed", "jobId", jobID, "error", err)
	}
}
