package indexer

import (
	"path/filepath"
	"strings"
)

// LanguageUnknown is assigned to files whose extension is not in the table
const LanguageUnknown = "unknown"

// extensionLanguages maps lowercased file extensions to language names
var extensionLanguages = map[string]string{
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".go":   "go",
	".rs":   "rust",
	".java": "java",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".c":    "c",
	".h":    "c",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
}

// DetectLanguage derives the language from a file path's extension
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return LanguageUnknown
}
