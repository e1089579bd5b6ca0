package indexer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// binarySniffLen is how many leading bytes are checked for null bytes
const binarySniffLen = 8 * 1024

// ExtractedFile is the decoded content of one source file
type ExtractedFile struct {
	Content     string
	Language    string
	ContentHash string
	LineCount   int
	SizeBytes   int64
}

// ExtractFile reads a file and decodes it as UTF-8 text. Binary files
// (a null byte anywhere in the first 8 KiB) return (nil, nil) so callers can
// skip them without treating the file as an error.
func ExtractFile(path string) (*ExtractedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sniff := raw
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return nil, nil
	}

	content := decodeUTF8(raw)
	hash := sha256.Sum256([]byte(content))

	return &ExtractedFile{
		Content:     content,
		Language:    DetectLanguage(path),
		ContentHash: hex.EncodeToString(hash[:]),
		LineCount:   countLines(content),
		SizeBytes:   int64(len(raw)),
	}, nil
}

// decodeUTF8 interprets raw bytes as UTF-8, replacing invalid sequences
// with U+FFFD.
func decodeUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size == 1 {
			b.WriteRune('�')
		} else {
			b.WriteRune(r)
		}
		raw = raw[size:]
	}
	return b.String()
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}
