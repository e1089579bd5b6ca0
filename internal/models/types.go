package models

import "time"

// JobStatus represents the lifecycle state of an indexing job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// CanTransitionTo reports whether a status change is allowed.
// Allowed edges: pending→processing, processing→{completed,failed,pending},
// failed→processing. A job returns to pending on stop or when a session's
// file budget is exhausted.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusPending
	case JobStatusFailed:
		return next == JobStatusProcessing
	default:
		return false
	}
}

// Progress tracks how far an indexing job has advanced
type Progress struct {
	TotalFiles     int `bson:"totalFiles" json:"totalFiles"`
	ProcessedFiles int `bson:"processedFiles" json:"processedFiles"`
	CurrentBatch   int `bson:"currentBatch" json:"currentBatch"`
	TotalBatches   int `bson:"totalBatches" json:"totalBatches"`
}

// PercentComplete is derived, never stored.
func (p Progress) PercentComplete() int {
	if p.TotalBatches == 0 {
		return 0
	}
	pct := float64(p.CurrentBatch) / float64(p.TotalBatches) * 100
	return int(pct + 0.5)
}

// ProgressPatch is a partial progress update; nil fields are left untouched
type ProgressPatch struct {
	TotalFiles     *int
	ProcessedFiles *int
	CurrentBatch   *int
	TotalBatches   *int
}

// IntPtr is a convenience for building ProgressPatch values
func IntPtr(v int) *int { return &v }

// Job represents an indexing job for one (identifier, version) of a repository
type Job struct {
	JobID                string     `bson:"jobId" json:"jobId"`
	Identifier           string     `bson:"identifier" json:"identifier"`
	Version              int        `bson:"version" json:"version"`
	RepositoryPath       string     `bson:"repositoryPath" json:"repositoryPath"`
	Status               JobStatus  `bson:"status" json:"status"`
	Progress             Progress   `bson:"progress" json:"progress"`
	Config               JobConfig  `bson:"config" json:"config"`
	RecommendedFileLimit int        `bson:"recommendedFileLimit" json:"recommendedFileLimit"`
	CreatedAt            time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time  `bson:"updatedAt" json:"updatedAt"`
	CompletedAt          *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Error                string     `bson:"error,omitempty" json:"error,omitempty"`
}

// File represents one scanned source file persisted for a job
type File struct {
	FileID       string `bson:"fileId" json:"fileId"`
	JobID        string `bson:"jobId" json:"jobId"`
	AbsolutePath string `bson:"absolutePath" json:"absolutePath"`
	RelativePath string `bson:"relativePath" json:"relativePath"`
	Language     string `bson:"language" json:"language"`
	SizeBytes    int64  `bson:"sizeBytes" json:"sizeBytes"`
	LineCount    int    `bson:"lineCount" json:"lineCount"`
	ContentHash  string `bson:"contentHash" json:"contentHash"`
	BatchNumber  int    `bson:"batchNumber" json:"batchNumber"`
}

// Chunk is a token-bounded, boundary-aligned span of a file's text
type Chunk struct {
	ChunkID      string `bson:"chunkId" json:"chunkId"`
	JobID        string `bson:"jobId" json:"jobId"`
	FileID       string `bson:"fileId" json:"fileId"`
	RelativePath string `bson:"relativePath" json:"relativePath"`
	Content      string `bson:"content" json:"content"`
	StartLine    int    `bson:"startLine" json:"startLine"` // 1-based
	EndLine      int    `bson:"endLine" json:"endLine"`     // inclusive
	TokenCount   int    `bson:"tokenCount" json:"tokenCount"`
}

// Embedding pairs a chunk with its dense vector
type Embedding struct {
	ChunkID   string    `bson:"chunkId" json:"chunkId"`
	JobID     string    `bson:"jobId" json:"jobId"`
	Vector    []float32 `bson:"vector" json:"vector"`
	Model     string    `bson:"model" json:"model"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// SearchResult is one scored chunk returned by the search service
type SearchResult struct {
	RelativePath string  `json:"relativePath"`
	Content      string  `json:"content"`
	StartLine    int     `json:"startLine"`
	EndLine      int     `json:"endLine"`
	Score        float64 `json:"score"`
}

// JobConfig controls scanning, chunking, and embedding for one job
type JobConfig struct {
	BatchSize      int      `bson:"batchSize" json:"batchSize" yaml:"batch_size"`
	ChunkSize      int      `bson:"chunkSize" json:"chunkSize" yaml:"chunk_size"`
	ChunkOverlap   int      `bson:"chunkOverlap" json:"chunkOverlap" yaml:"chunk_overlap"`
	EmbeddingModel string   `bson:"embeddingModel" json:"embeddingModel" yaml:"embedding_model"`
	Extensions     []string `bson:"extensions" json:"extensions" yaml:"extensions"`
	ExcludeDirs    []string `bson:"excludeDirs" json:"excludeDirs" yaml:"exclude_dirs"`
	MaxFileSize    int64    `bson:"maxFileSize" json:"maxFileSize" yaml:"max_file_size"`
}

// DefaultJobConfig returns the built-in job configuration
func DefaultJobConfig() JobConfig {
	return JobConfig{
		BatchSize:      50,
		ChunkSize:      1000,
		ChunkOverlap:   100,
		EmbeddingModel: "text-embedding-3-small",
		Extensions: []string{
			".js", ".ts", ".py", ".go", ".rs", ".java",
			".cpp", ".c", ".h", ".md", ".json", ".yaml", ".yml",
		},
		ExcludeDirs: []string{"node_modules", ".git", "dist", "build"},
		MaxFileSize: 1048576,
	}
}

// Merge overlays non-zero fields of override on top of c and clamps the
// numeric fields into their valid ranges.
func (c JobConfig) Merge(override *JobConfig) JobConfig {
	out := c
	if override != nil {
		if override.BatchSize != 0 {
			out.BatchSize = override.BatchSize
		}
		if override.ChunkSize != 0 {
			out.ChunkSize = override.ChunkSize
		}
		if override.ChunkOverlap != 0 {
			out.ChunkOverlap = override.ChunkOverlap
		}
		if override.EmbeddingModel != "" {
			out.EmbeddingModel = override.EmbeddingModel
		}
		if len(override.Extensions) > 0 {
			out.Extensions = override.Extensions
		}
		if len(override.ExcludeDirs) > 0 {
			out.ExcludeDirs = override.ExcludeDirs
		}
		if override.MaxFileSize != 0 {
			out.MaxFileSize = override.MaxFileSize
		}
	}
	out.BatchSize = clampInt(out.BatchSize, 1, 500)
	out.ChunkSize = clampInt(out.ChunkSize, 500, 1500)
	out.ChunkOverlap = clampInt(out.ChunkOverlap, 0, 500)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
