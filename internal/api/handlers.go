package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/internal/jobs"
	"github.com/codereader/codereader/internal/models"
	"github.com/codereader/codereader/internal/processor"
	"github.com/codereader/codereader/internal/search"
)

// Pinger reports document store liveness for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the wired services behind the HTTP surface
type Handlers struct {
	jobs      *jobs.Service
	processor *processor.Processor
	searcher  *search.Searcher
	store     Pinger
	logger    *slog.Logger
}

// NewHandlers wires the HTTP handlers
func NewHandlers(js *jobs.Service, proc *processor.Processor, searcher *search.Searcher, st Pinger, logger *slog.Logger) *Handlers {
	return &Handlers{jobs: js, processor: proc, searcher: searcher, store: st, logger: logger}
}

// taskResource is the JSON:API resource object for a job
type taskResource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes taskAttributes `json:"attributes"`
}

type taskAttributes struct {
	Identifier           string           `json:"identifier"`
	Version              int              `json:"version"`
	RepositoryPath       string           `json:"repositoryPath"`
	Status               models.JobStatus `json:"status"`
	Progress             taskProgress     `json:"progress"`
	Config               models.JobConfig `json:"config"`
	RecommendedFileLimit int              `json:"recommendedFileLimit"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
	Error                string           `json:"error,omitempty"`
}

type taskProgress struct {
	models.Progress
	PercentComplete int `json:"percentComplete"`
}

func toTaskResource(job *models.Job) taskResource {
	return taskResource{
		Type: "task",
		ID:   job.JobID,
		Attributes: taskAttributes{
			Identifier:     job.Identifier,
			Version:        job.Version,
			RepositoryPath: job.RepositoryPath,
			Status:         job.Status,
			Progress: taskProgress{
				Progress:        job.Progress,
				PercentComplete: job.Progress.PercentComplete(),
			},
			Config:               job.Config,
			RecommendedFileLimit: job.RecommendedFileLimit,
			CreatedAt:            job.CreatedAt,
			UpdatedAt:            job.UpdatedAt,
			CompletedAt:          job.CompletedAt,
			Error:                job.Error,
		},
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "up"
	status := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		dbStatus = "down"
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{"database": dbStatus},
	})
}

type createTaskRequest struct {
	RepositoryPath string            `json:"repositoryPath"`
	Identifier     string            `json:"identifier"`
	Config         *models.JobConfig `json:"config,omitempty"`
}

// CreateTask handles POST /task
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperrors.Validation("invalid request body: %v", err))
		return
	}
	if req.RepositoryPath == "" {
		writeError(w, h.logger, apperrors.Validation("repositoryPath is required"))
		return
	}
	if req.Identifier == "" {
		writeError(w, h.logger, apperrors.Validation("identifier is required"))
		return
	}

	job, err := h.jobs.Create(r.Context(), jobs.CreateInput{
		RepositoryPath: req.RepositoryPath,
		Identifier:     req.Identifier,
		Config:         req.Config,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, toTaskResource(job))
}

// GetTask handles GET /task/{jobId}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetByID(r.Context(), r.PathValue("jobId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toTaskResource(job))
}

// GetTaskByIdentifier handles GET /task/by-identifier/{identifier}
func (h *Handlers) GetTaskByIdentifier(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetByIdentifier(r.Context(), r.PathValue("identifier"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toTaskResource(job))
}

type processRequest struct {
	JobID      string `json:"jobId,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	FileLimit  int    `json:"fileLimit,omitempty"`
}

// resolveJobID maps a jobId-or-identifier request to a concrete job
func (h *Handlers) resolveJobID(ctx context.Context, jobID, identifier string) (string, error) {
	switch {
	case jobID != "":
		return jobID, nil
	case identifier != "":
		job, err := h.jobs.GetByIdentifier(ctx, identifier)
		if err != nil {
			return "", err
		}
		return job.JobID, nil
	default:
		return "", apperrors.Validation("either jobId or identifier is required")
	}
}

// Process handles POST /process, enqueueing the job action
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperrors.Validation("invalid request body: %v", err))
		return
	}
	if req.FileLimit < 0 {
		writeError(w, h.logger, apperrors.Validation("fileLimit must not be negative"))
		return
	}

	jobID, err := h.resolveJobID(r.Context(), req.JobID, req.Identifier)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	position, err := h.processor.StartProcessing(r.Context(), jobID, req.FileLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{
		"jobId":         jobID,
		"queuePosition": position,
	})
}

// StopProcess handles POST /process/stop
func (h *Handlers) StopProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperrors.Validation("invalid request body: %v", err))
		return
	}

	jobID, err := h.resolveJobID(r.Context(), req.JobID, req.Identifier)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.processor.StopProcessing(jobID)
	writeData(w, http.StatusOK, map[string]any{
		"jobId":   jobID,
		"stopped": true,
	})
}

type searchRequest struct {
	Query      string   `json:"query"`
	JobID      string   `json:"jobId,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Limit      *int     `json:"limit,omitempty"`
	MinScore   *float64 `json:"minScore,omitempty"`
}

// SearchCode handles POST /search_code
func (h *Handlers) SearchCode(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperrors.Validation("invalid request body: %v", err))
		return
	}

	q := search.Query{
		Query:      req.Query,
		JobID:      req.JobID,
		Identifier: req.Identifier,
		Limit:      search.DefaultLimit,
		MinScore:   search.DefaultMinScore,
	}
	if req.Limit != nil {
		q.Limit = *req.Limit
	}
	if req.MinScore != nil {
		q.MinScore = *req.MinScore
	}

	results, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
	})
}
