package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codereader/codereader/internal/models"
)

// Scanner walks a repository tree applying the job's file filters
type Scanner struct {
	extensions  map[string]bool
	excludeDirs map[string]bool
	maxFileSize int64
}

// ScannedFile is one file accepted by the scan
type ScannedFile struct {
	AbsolutePath string
	RelativePath string
	SizeBytes    int64
}

// SkippedFile records a rejected path and the reason
type SkippedFile struct {
	Path   string
	Reason string
}

// Skip reasons
const (
	SkipReasonTooLarge = "exceeds max file size"
	SkipReasonEmpty    = "empty file"
	SkipReasonStatErr  = "stat error"
	SkipReasonCircular = "circular symlink"
)

// ScanResult contains the outcome of a directory scan
type ScanResult struct {
	Files        []ScannedFile
	SkippedFiles []SkippedFile
	TotalScanned int
}

// NewScanner creates a scanner from a job configuration
func NewScanner(cfg models.JobConfig) *Scanner {
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}
	dirs := make(map[string]bool, len(cfg.ExcludeDirs))
	for _, d := range cfg.ExcludeDirs {
		dirs[d] = true
	}
	return &Scanner{
		extensions:  exts,
		excludeDirs: dirs,
		maxFileSize: cfg.MaxFileSize,
	}
}

// Scan walks rootPath and collects files matching the configured extensions.
// Symlinks are followed; a visited-realpath set classifies already-seen
// targets as circular. Entries within one directory are visited in
// lexicographic order so the scan is deterministic for a given filesystem
// view and batching by index stays stable across resumptions.
func (s *Scanner) Scan(rootPath string) (*ScanResult, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", rootPath)
	}

	result := &ScanResult{}
	visited := make(map[string]bool)

	realRoot, err := filepath.EvalSymlinks(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	visited[realRoot] = true

	if err := s.walkDir(rootPath, rootPath, visited, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Scanner) walkDir(root, dir string, visited map[string]bool, result *ScanResult) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		result.SkippedFiles = append(result.SkippedFiles, SkippedFile{Path: dir, Reason: SkipReasonStatErr})
		return nil
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		// os.Stat follows symlinks, so link targets are classified by what
		// they point at.
		info, err := os.Stat(path)
		if err != nil {
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{Path: path, Reason: SkipReasonStatErr})
			continue
		}

		if info.IsDir() {
			if s.excludeDirs[entry.Name()] {
				continue
			}
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				result.SkippedFiles = append(result.SkippedFiles, SkippedFile{Path: path, Reason: SkipReasonStatErr})
				continue
			}
			if visited[real] {
				result.SkippedFiles = append(result.SkippedFiles, SkippedFile{Path: path, Reason: SkipReasonCircular})
				continue
			}
			visited[real] = true
			if err := s.walkDir(root, path, visited, result); err != nil {
				return err
			}
			continue
		}

		if !s.matchesExtension(entry.Name()) {
			continue
		}

		result.TotalScanned++

		switch {
		case info.Size() > s.maxFileSize:
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{Path: path, Reason: SkipReasonTooLarge})
		case info.Size() == 0:
			result.SkippedFiles = append(result.SkippedFiles, SkippedFile{Path: path, Reason: SkipReasonEmpty})
		default:
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			result.Files = append(result.Files, ScannedFile{
				AbsolutePath: path,
				RelativePath: filepath.ToSlash(rel),
				SizeBytes:    info.Size(),
			})
		}
	}
	return nil
}

func (s *Scanner) matchesExtension(name string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(name))]
}

// PartitionIntoBatches splits files into contiguous slices of at most
// batchSize, preserving scan order.
func PartitionIntoBatches(files []ScannedFile, batchSize int) [][]ScannedFile {
	if batchSize <= 0 || len(files) == 0 {
		return nil
	}
	var batches [][]ScannedFile
	for i := 0; i < len(files); i += batchSize {
		end := i + batchSize
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[i:end])
	}
	return batches
}
