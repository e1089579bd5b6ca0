// Package jobs owns the lifecycle of indexing jobs: creation, version
// sequencing, retention pruning, and status/progress updates.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/internal/indexer"
	"github.com/codereader/codereader/internal/models"
	"github.com/codereader/codereader/internal/store"
)

// retainedVersions is how many versions are kept per identifier
const retainedVersions = 3

// recommendedFileLimit derives from a per-session token budget of ~200k
// embedded tokens at 1.5 tokens of overhead per chunk token.
const sessionTokenBudget = 200000

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store is the persistence surface the job service needs
type Store interface {
	InsertJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, jobID string) (*models.Job, error)
	GetLatestJobByIdentifier(ctx context.Context, identifier string) (*models.Job, error)
	ListJobVersions(ctx context.Context, identifier string) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error
	UpdateJobProgress(ctx context.Context, jobID string, patch models.ProgressPatch) error
	DeleteJob(ctx context.Context, jobID string) error
	DeleteFilesByJob(ctx context.Context, jobID string) error
	DeleteChunksByJob(ctx context.Context, jobID string) error
	DeleteEmbeddingsByJob(ctx context.Context, jobID string) error
}

// Service manages job documents. It is the only component that mutates Jobs.
type Service struct {
	store    Store
	defaults models.JobConfig
	logger   *slog.Logger
}

// NewService creates a job service with the given default job configuration
func NewService(st Store, defaults models.JobConfig, logger *slog.Logger) *Service {
	return &Service{store: st, defaults: defaults, logger: logger}
}

// CreateInput are the caller-supplied fields for a new job
type CreateInput struct {
	RepositoryPath string
	Identifier     string
	Config         *models.JobConfig
}

// Create validates the input, assigns the next version for the identifier,
// scans the repository synchronously for the total file count, persists the
// pending job, and prunes versions beyond the retention window.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Job, error) {
	if err := validateIdentifier(input.Identifier); err != nil {
		return nil, err
	}
	info, err := os.Stat(input.RepositoryPath)
	if err != nil {
		return nil, apperrors.InvalidPath("repository path does not exist: %s", input.RepositoryPath)
	}
	if !info.IsDir() {
		return nil, apperrors.InvalidPath("repository path is not a directory: %s", input.RepositoryPath)
	}

	cfg := s.defaults.Merge(input.Config)

	version := 1
	if latest, err := s.store.GetLatestJobByIdentifier(ctx, input.Identifier); err == nil {
		version = latest.Version + 1
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	scan, err := indexer.NewScanner(cfg).Scan(input.RepositoryPath)
	if err != nil {
		return nil, apperrors.InvalidPath("failed to scan repository: %v", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		JobID:          uuid.New().String(),
		Identifier:     input.Identifier,
		Version:        version,
		RepositoryPath: input.RepositoryPath,
		Status:         models.JobStatusPending,
		Progress: models.Progress{
			TotalFiles: len(scan.Files),
		},
		Config:               cfg,
		RecommendedFileLimit: RecommendedFileLimit(cfg.ChunkSize),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.InsertJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("job created",
		"jobId", job.JobID, "identifier", job.Identifier, "version", job.Version,
		"totalFiles", len(scan.Files), "skipped", len(scan.SkippedFiles))

	s.pruneOldVersions(ctx, input.Identifier)
	return job, nil
}

// RecommendedFileLimit computes the per-session file budget for a chunk size
func RecommendedFileLimit(chunkSize int) int {
	limit := int(float64(sessionTokenBudget) / (float64(chunkSize) * 1.5))
	if limit < 10 {
		return 10
	}
	return limit
}

// GetByID loads a job, mapping a miss to the not-found taxonomy
func (s *Service) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.store.GetJobByID(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("job not found: %s", jobID)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetByIdentifier loads the latest version for an identifier
func (s *Service) GetByIdentifier(ctx context.Context, identifier string) (*models.Job, error) {
	job, err := s.store.GetLatestJobByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("no job for identifier: %s", identifier)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateStatus writes a status change; completedAt and error stamping
// happens in the store layer.
func (s *Service) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	err := s.store.UpdateJobStatus(ctx, jobID, status, errMsg)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound("job not found: %s", jobID)
	}
	return err
}

// UpdateProgress applies a partial progress patch
func (s *Service) UpdateProgress(ctx context.Context, jobID string, patch models.ProgressPatch) error {
	err := s.store.UpdateJobProgress(ctx, jobID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound("job not found: %s", jobID)
	}
	return err
}

// pruneOldVersions deletes every version beyond the newest three for the
// identifier, removing embeddings, chunks, and files before the job itself
// so references never dangle. Prune failures are logged, not surfaced: the
// new job is already committed.
func (s *Service) pruneOldVersions(ctx context.Context, identifier string) {
	versions, err := s.store.ListJobVersions(ctx, identifier)
	if err != nil {
		s.logger.Warn("version prune listing failed", "identifier", identifier, "error", err)
		return
	}
	if len(versions) <= retainedVersions {
		return
	}

	for _, old := range versions[retainedVersions:] {
		if err := s.store.DeleteEmbeddingsByJob(ctx, old.JobID); err != nil {
			s.logger.Warn("prune embeddings failed", "jobId", old.JobID, "error", err)
			continue
		}
		if err := s.store.DeleteChunksByJob(ctx, old.JobID); err != nil {
			s.logger.Warn("prune chunks failed", "jobId", old.JobID, "error", err)
			continue
		}
		if err := s.store.DeleteFilesByJob(ctx, old.JobID); err != nil {
			s.logger.Warn("prune files failed", "jobId", old.JobID, "error", err)
			continue
		}
		if err := s.store.DeleteJob(ctx, old.JobID); err != nil {
			s.logger.Warn("prune job failed", "jobId", old.JobID, "error", err)
			continue
		}
		s.logger.Info("pruned old version",
			"identifier", identifier, "version", old.Version, "jobId", old.JobID)
	}
}

func validateIdentifier(identifier string) error {
	if len(identifier) < 2 || len(identifier) > 100 {
		return apperrors.Validation("identifier must be 2-100 characters")
	}
	if !identifierPattern.MatchString(identifier) {
		return apperrors.Validation("identifier may only contain letters, digits, underscores, and dashes")
	}
	return nil
}
