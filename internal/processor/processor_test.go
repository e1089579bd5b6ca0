package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/internal/indexer"
	"github.com/codereader/codereader/internal/models"
	"github.com/codereader/codereader/internal/queue"
)

// fakeArtifactStore keeps files/chunks/embeddings in memory and can fail a
// specific insert step once.
type fakeArtifactStore struct {
	mu         sync.Mutex
	files      []models.File
	chunks     []models.Chunk
	embeddings []models.Embedding

	failEmbeddingInsertOnce bool
}

func (f *fakeArtifactStore) InsertFiles(_ context.Context, files []models.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, files...)
	return nil
}

func (f *fakeArtifactStore) InsertChunks(_ context.Context, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeArtifactStore) InsertEmbeddings(_ context.Context, embeddings []models.Embedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEmbeddingInsertOnce {
		f.failEmbeddingInsertOnce = false
		return apperrors.Database("insert failed", errors.New("connection reset"))
	}
	f.embeddings = append(f.embeddings, embeddings...)
	return nil
}

func (f *fakeArtifactStore) FilesByBatch(_ context.Context, jobID string, batchNumber int) ([]models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.File
	for _, file := range f.files {
		if file.JobID == jobID && file.BatchNumber == batchNumber {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeArtifactStore) ChunksByFileIDs(_ context.Context, fileIDs []string) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		ids[id] = true
	}
	var out []models.Chunk
	for _, chunk := range f.chunks {
		if ids[chunk.FileID] {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (f *fakeArtifactStore) DeleteEmbeddingsByChunkIDs(_ context.Context, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		ids[id] = true
	}
	kept := f.embeddings[:0]
	for _, e := range f.embeddings {
		if !ids[e.ChunkID] {
			kept = append(kept, e)
		}
	}
	f.embeddings = kept
	return nil
}

func (f *fakeArtifactStore) DeleteChunksByFileIDs(_ context.Context, fileIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		ids[id] = true
	}
	kept := f.chunks[:0]
	for _, c := range f.chunks {
		if !ids[c.FileID] {
			kept = append(kept, c)
		}
	}
	f.chunks = kept
	return nil
}

func (f *fakeArtifactStore) DeleteFilesByBatch(_ context.Context, jobID string, batchNumber int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.files[:0]
	for _, file := range f.files {
		if !(file.JobID == jobID && file.BatchNumber == batchNumber) {
			kept = append(kept, file)
		}
	}
	f.files = kept
	return nil
}

func (f *fakeArtifactStore) chunkPaths() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, c := range f.chunks {
		out[c.RelativePath]++
	}
	return out
}

// fakeJobs is an in-memory Jobs implementation
type fakeJobs struct {
	mu  sync.Mutex
	job models.Job
}

func (f *fakeJobs) GetByID(_ context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job.JobID != jobID {
		return nil, apperrors.NotFound("job not found: %s", jobID)
	}
	cp := f.job
	return &cp, nil
}

func (f *fakeJobs) UpdateStatus(_ context.Context, jobID string, status models.JobStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job.Status = status
	f.job.Error = errMsg
	return nil
}

func (f *fakeJobs) UpdateProgress(_ context.Context, jobID string, patch models.ProgressPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if patch.TotalFiles != nil {
		f.job.Progress.TotalFiles = *patch.TotalFiles
	}
	if patch.ProcessedFiles != nil {
		f.job.Progress.ProcessedFiles = *patch.ProcessedFiles
	}
	if patch.CurrentBatch != nil {
		f.job.Progress.CurrentBatch = *patch.CurrentBatch
	}
	if patch.TotalBatches != nil {
		f.job.Progress.TotalBatches = *patch.TotalBatches
	}
	return nil
}

func (f *fakeJobs) snapshot() models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.job
}

// fakeEmbedder returns deterministic vectors and can fail on demand
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failOnce bool
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string, model string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOnce {
		f.failOnce = false
		return nil, apperrors.Provider("provider unavailable", nil)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

// inlineQueue runs enqueued actions synchronously
type inlineQueue struct {
	queued map[string]bool
}

func (q *inlineQueue) Enqueue(jobID string, action queue.Action) (int, error) {
	return 1, action(context.Background())
}

func (q *inlineQueue) IsJobQueued(jobID string) bool { return q.queued[jobID] }

func testRepo(t *testing.T, fileCount int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < fileCount; i++ {
		name := filepath.Join(dir, fmt.Sprintf("file_%02d.go", i))
		content := fmt.Sprintf("package demo\n\nfunc Exported%d() int {\n\treturn %d\n}\n", i, i)
		require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	}
	return dir
}

func newTestProcessor(t *testing.T, job models.Job) (*Processor, *fakeArtifactStore, *fakeJobs, *fakeEmbedder) {
	t.Helper()
	chunker, err := indexer.NewChunker()
	require.NoError(t, err)

	st := &fakeArtifactStore{}
	jobs := &fakeJobs{job: job}
	embed := &fakeEmbedder{}
	p := New(st, jobs, embed, &inlineQueue{queued: map[string]bool{}}, chunker, slog.Default())
	return p, st, jobs, embed
}

func pendingJob(repoPath string, batchSize int) models.Job {
	cfg := models.DefaultJobConfig()
	cfg.BatchSize = batchSize
	return models.Job{
		JobID:          "job-1",
		Identifier:     "repo",
		Version:        1,
		RepositoryPath: repoPath,
		Status:         models.JobStatusPending,
		Config:         cfg,
	}
}

func TestProcessJob_FullRun(t *testing.T) {
	dir := testRepo(t, 5)
	p, st, jobs, _ := newTestProcessor(t, pendingJob(dir, 2))

	require.NoError(t, p.processJob(context.Background(), "job-1", 0))

	job := jobs.snapshot()
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 5, job.Progress.TotalFiles)
	assert.Equal(t, 5, job.Progress.ProcessedFiles)
	assert.Equal(t, 3, job.Progress.CurrentBatch)
	assert.Equal(t, 3, job.Progress.TotalBatches)

	assert.Len(t, st.files, 5)
	assert.NotEmpty(t, st.chunks)
	assert.Len(t, st.embeddings, len(st.chunks), "every chunk gets exactly one embedding")
	for _, c := range st.chunks {
		assert.Positive(t, c.TokenCount)
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
		assert.NotEmpty(t, c.Content)
	}
}

func TestProcessJob_EmptyRepository(t *testing.T) {
	dir := t.TempDir()
	p, st, jobs, _ := newTestProcessor(t, pendingJob(dir, 2))

	require.NoError(t, p.processJob(context.Background(), "job-1", 0))

	job := jobs.snapshot()
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, job.Progress.TotalFiles)
	assert.Empty(t, st.files)
}

func TestProcessJob_FileLimitPausesAndResumes(t *testing.T) {
	dir := testRepo(t, 5)
	p, st, jobs, _ := newTestProcessor(t, pendingJob(dir, 1))

	require.NoError(t, p.processJob(context.Background(), "job-1", 2))

	job := jobs.snapshot()
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 2, job.Progress.ProcessedFiles)
	assert.Equal(t, 2, job.Progress.CurrentBatch)
	assert.Len(t, st.files, 2)
	firstSessionChunks := st.chunkPaths()

	// Second session with no limit finishes the job without duplicates.
	require.NoError(t, p.processJob(context.Background(), "job-1", 0))

	job = jobs.snapshot()
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 5, job.Progress.ProcessedFiles)
	assert.Len(t, st.files, 5)
	seen := make(map[string]int)
	for _, f := range st.files {
		seen[f.RelativePath]++
	}
	for path, count := range seen {
		assert.Equal(t, 1, count, "file %s persisted more than once", path)
	}
	for path, count := range firstSessionChunks {
		assert.Equal(t, count, st.chunkPaths()[path], "resume duplicated %s", path)
	}
}

func TestProcessJob_StopReturnsToPending(t *testing.T) {
	dir := testRepo(t, 3)
	p, st, jobs, _ := newTestProcessor(t, pendingJob(dir, 1))

	p.StopProcessing("job-1")
	require.NoError(t, p.processJob(context.Background(), "job-1", 0))

	job := jobs.snapshot()
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Empty(t, st.files, "stop before the first batch commits nothing")
}

func TestProcessJob_RollbackOnPersistFailure(t *testing.T) {
	dir := testRepo(t, 4)
	p, st, jobs, _ := newTestProcessor(t, pendingJob(dir, 2))
	st.failEmbeddingInsertOnce = true

	err := p.processJob(context.Background(), "job-1", 0)
	require.Error(t, err)

	snap := jobs.snapshot()
	assert.Equal(t, models.JobStatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)
	assert.Equal(t, 0, snap.Progress.CurrentBatch)

	// The failed batch's partial writes were rolled back whole.
	assert.Empty(t, st.files)
	assert.Empty(t, st.chunks)
	assert.Empty(t, st.embeddings)
}

func TestProcessJob_ResumeAfterFailureMatchesCleanRun(t *testing.T) {
	dir := testRepo(t, 4)
	p, st, jobs, _ := newTestProcessor(t, pendingJob(dir, 2))
	st.failEmbeddingInsertOnce = true

	require.Error(t, p.processJob(context.Background(), "job-1", 0))
	assert.Equal(t, models.JobStatusFailed, jobs.snapshot().Status)

	require.NoError(t, p.processJob(context.Background(), "job-1", 0))
	assert.Equal(t, models.JobStatusCompleted, jobs.snapshot().Status)

	// Same corpus as an uninterrupted run: one file record per repo file,
	// chunk counts not duplicated.
	cleanP, cleanStore, _, _ := newTestProcessor(t, pendingJob(dir, 2))
	require.NoError(t, cleanP.processJob(context.Background(), "job-1", 0))

	assert.Len(t, st.files, len(cleanStore.files))
	assert.Equal(t, cleanStore.chunkPaths(), st.chunkPaths())
	assert.Len(t, st.embeddings, len(st.chunks))
}

func TestStartProcessing_Refusals(t *testing.T) {
	dir := testRepo(t, 1)

	t.Run("already queued", func(t *testing.T) {
		job := pendingJob(dir, 1)
		chunker, err := indexer.NewChunker()
		require.NoError(t, err)
		p := New(&fakeArtifactStore{}, &fakeJobs{job: job}, &fakeEmbedder{},
			&inlineQueue{queued: map[string]bool{"job-1": true}}, chunker, slog.Default())

		_, err = p.StartProcessing(context.Background(), "job-1", 0)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	})

	t.Run("wrong status", func(t *testing.T) {
		job := pendingJob(dir, 1)
		job.Status = models.JobStatusProcessing
		p, _, _, _ := newTestProcessor(t, job)

		_, err := p.StartProcessing(context.Background(), "job-1", 0)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidStatus, apperrors.CodeOf(err))
	})

	t.Run("missing job", func(t *testing.T) {
		p, _, _, _ := newTestProcessor(t, pendingJob(dir, 1))
		_, err := p.StartProcessing(context.Background(), "nope", 0)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}
