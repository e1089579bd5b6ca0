package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBoundaryLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		language string
		want     bool
	}{
		{"go func", "func Handler(w http.ResponseWriter) {", "go", true},
		{"go method", "func (s *Server) Start() error {", "go", true},
		{"go struct", "type Config struct {", "go", true},
		{"go body line", "\treturn nil", "go", false},
		{"python def", "def compute(x):", "python", true},
		{"python decorator", "@property", "python", true},
		{"python assignment", "value = 3", "python", false},
		{"ts interface", "export interface Props {", "typescript", true},
		{"ts arrow", "const run = async () => {", "typescript", true},
		{"rust fn", "pub fn parse(input: &str) -> Result<Ast> {", "rust", true},
		{"java method", "public static void main(String[] args) {", "java", true},
		{"markdown heading", "## Usage", "markdown", true},
		{"unknown fallback def", "def anything():", "unknown", true},
		{"unknown plain", "some text here", "unknown", false},
		{"empty", "   ", "go", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBoundaryLine(tt.line, tt.language))
		})
	}
}

func TestBoundaryScanner_GoDeclarations(t *testing.T) {
	bs := NewBoundaryScanner()

	content := `package demo

import "fmt"

func First() {
	fmt.Println("one")
}

type Widget struct {
	Name string
}

func (w Widget) Second() string {
	return w.Name
}
`
	lines, ok := bs.DeclarationLines("go", content)
	require.True(t, ok)

	// 0-based rows of func First, type Widget, and the method.
	assert.True(t, lines[4], "func First")
	assert.True(t, lines[8], "type Widget")
	assert.True(t, lines[12], "method Second")
	assert.False(t, lines[5], "body line is not a declaration")
}

func TestBoundaryScanner_UnsupportedLanguage(t *testing.T) {
	bs := NewBoundaryScanner()
	_, ok := bs.DeclarationLines("rust", "pub fn x() {}\n")
	assert.False(t, ok)
}

func TestBoundaryScanner_PythonDeclarations(t *testing.T) {
	bs := NewBoundaryScanner()

	content := "class Shape:\n    def area(self):\n        return 0\n\ndef main():\n    pass\n"
	lines, ok := bs.DeclarationLines("python", content)
	require.True(t, ok)
	assert.True(t, lines[0], "class Shape")
	assert.True(t, lines[4], "def main")
}
