package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, true},
		{JobStatusFailed, JobStatusProcessing, true},
		{JobStatusFailed, JobStatusPending, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusCompleted, JobStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestProgress_PercentComplete(t *testing.T) {
	tests := []struct {
		name     string
		progress Progress
		want     int
	}{
		{"no batches", Progress{}, 0},
		{"halfway", Progress{CurrentBatch: 1, TotalBatches: 2}, 50},
		{"rounding", Progress{CurrentBatch: 1, TotalBatches: 3}, 33},
		{"rounds up", Progress{CurrentBatch: 2, TotalBatches: 3}, 67},
		{"done", Progress{CurrentBatch: 4, TotalBatches: 4}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.progress.PercentComplete())
		})
	}
}

func TestJobConfig_Merge(t *testing.T) {
	defaults := DefaultJobConfig()

	t.Run("nil override keeps defaults", func(t *testing.T) {
		merged := defaults.Merge(nil)
		assert.Equal(t, defaults, merged)
	})

	t.Run("partial override", func(t *testing.T) {
		merged := defaults.Merge(&JobConfig{ChunkSize: 750, ExcludeDirs: []string{"vendor"}})
		assert.Equal(t, 750, merged.ChunkSize)
		assert.Equal(t, []string{"vendor"}, merged.ExcludeDirs)
		assert.Equal(t, defaults.BatchSize, merged.BatchSize)
		assert.Equal(t, defaults.Extensions, merged.Extensions)
	})

	t.Run("clamps out-of-range values", func(t *testing.T) {
		merged := defaults.Merge(&JobConfig{BatchSize: 9999, ChunkSize: 50, ChunkOverlap: 800})
		assert.Equal(t, 500, merged.BatchSize)
		assert.Equal(t, 500, merged.ChunkSize)
		assert.Equal(t, 500, merged.ChunkOverlap)
	})
}
