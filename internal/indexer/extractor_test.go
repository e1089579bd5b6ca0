package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFile_Text(t *testing.T) {
	dir := t.TempDir()
	content := "package main\n\nfunc main() {}\n"
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	extracted, err := ExtractFile(path)
	require.NoError(t, err)
	require.NotNil(t, extracted)

	assert.Equal(t, content, extracted.Content)
	assert.Equal(t, "go", extracted.Language)
	assert.Equal(t, 4, extracted.LineCount)
	assert.Equal(t, int64(len(content)), extracted.SizeBytes)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), extracted.ContentHash)
}

func TestExtractFile_Binary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.md")
	require.NoError(t, os.WriteFile(path, []byte{'a', 'b', 0x00, 'c'}, 0o644))

	extracted, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Nil(t, extracted)
}

func TestExtractFile_InvalidUTF8Replaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latin.md")
	require.NoError(t, os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9}, 0o644))

	extracted, err := ExtractFile(path)
	require.NoError(t, err)
	require.NotNil(t, extracted)
	assert.Equal(t, "caf�", extracted.Content)
}

func TestExtractFile_Missing(t *testing.T) {
	_, err := ExtractFile(filepath.Join(t.TempDir(), "nope.go"))
	assert.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/b/handler.go", "go"},
		{"x.TS", "typescript"},
		{"script.py", "python"},
		{"lib.rs", "rust"},
		{"header.h", "c"},
		{"README.md", "markdown"},
		{"config.yml", "yaml"},
		{"binary.exe", "unknown"},
		{"Makefile", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), tt.path)
	}
}
