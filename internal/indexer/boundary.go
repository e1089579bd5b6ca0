package indexer

import (
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// boundaryPatterns matches the first non-space of a line that begins a
// top-level declaration. The table is heuristic: over-matching costs chunk
// quality, not correctness.
var boundaryPatterns = map[string][]*regexp.Regexp{
	"go": compilePatterns(
		`^func\s+\w+`,
		`^func\s+\([^)]+\)\s+\w+`,
		`^type\s+\w+\s+(struct|interface)`,
		`^(const|var)\s+\w+`,
	),
	"java": compilePatterns(
		`^(public|private|protected)?\s*(static\s+)?class\s+\w+`,
		`^(public|private|protected)?\s*(static\s+)?interface\s+\w+`,
		`^(public|private|protected)?\s*(static\s+)?enum\s+\w+`,
		`^(public|private|protected)?\s*(static\s+)?[\w<>\[\]]+\s+\w+\s*\([^)]*\)\s*\{?`,
		`^@\w+`,
	),
	"javascript": compilePatterns(
		`^export\s+(default\s+)?function\s+\w+`,
		`^export\s+(default\s+)?class\s+\w+`,
		`^export\s+(const|let|var)\s+\w+`,
		`^(async\s+)?function\s+\w+`,
		`^class\s+\w+`,
		`^(const|let|var)\s+\w+\s*=\s*(async\s+)?\([^)]*\)\s*=>`,
	),
	"typescript": compilePatterns(
		`^export\s+(default\s+)?function\s+\w+`,
		`^export\s+(default\s+)?class\s+\w+`,
		`^export\s+(interface|type)\s+\w+`,
		`^export\s+(const|let|var)\s+\w+`,
		`^(async\s+)?function\s+\w+`,
		`^class\s+\w+`,
		`^interface\s+\w+`,
		`^type\s+\w+\s*=`,
		`^(const|let|var)\s+\w+\s*=\s*(async\s+)?\([^)]*\)\s*=>`,
	),
	"python": compilePatterns(
		`^def\s+\w+`,
		`^class\s+\w+`,
		`^async\s+def\s+\w+`,
		`^@\w+`,
	),
	"rust": compilePatterns(
		`^(pub\s+)?fn\s+\w+`,
		`^(pub\s+)?struct\s+\w+`,
		`^(pub\s+)?enum\s+\w+`,
		`^(pub\s+)?trait\s+\w+`,
		`^(pub\s+)?impl\s+`,
	),
	"c": compilePatterns(
		`^\w+\s+\w+\s*\([^)]*\)\s*\{?`,
		`^struct\s+\w+`,
		`^typedef\s+`,
	),
	"cpp": compilePatterns(
		`^\w+\s+\w+::\w+\s*\([^)]*\)`,
		`^class\s+\w+`,
		`^struct\s+\w+`,
		`^namespace\s+\w+`,
		`^template\s*<`,
	),
	"markdown": compilePatterns(
		`^#{1,6}\s+`,
	),
}

// defaultBoundaryPatterns applies to languages without their own table
var defaultBoundaryPatterns = compilePatterns(
	`^function\s+\w+`,
	`^class\s+\w+`,
	`^def\s+\w+`,
)

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// IsBoundaryLine reports whether the line, after trimming surrounding
// whitespace, begins a declaration for the language.
func IsBoundaryLine(line, language string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	patterns, ok := boundaryPatterns[language]
	if !ok {
		patterns = defaultBoundaryPatterns
	}
	for _, p := range patterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// declarationNodeTypes lists the AST node types treated as boundary
// declarations per language. The strings are defined by the tree-sitter
// grammars.
var declarationNodeTypes = map[string]map[string]bool{
	"go": {
		"function_declaration": true,
		"method_declaration":   true,
		"type_declaration":     true,
		"const_declaration":    true,
		"var_declaration":      true,
	},
	"java": {
		"class_declaration":       true,
		"interface_declaration":   true,
		"enum_declaration":        true,
		"method_declaration":      true,
		"constructor_declaration": true,
	},
	"javascript": {
		"function_declaration": true,
		"class_declaration":    true,
		"method_definition":    true,
		"lexical_declaration":  true,
	},
	"typescript": {
		"function_declaration":   true,
		"class_declaration":      true,
		"interface_declaration":  true,
		"type_alias_declaration": true,
		"method_definition":      true,
		"lexical_declaration":    true,
	},
	"python": {
		"function_definition":  true,
		"class_definition":     true,
		"decorated_definition": true,
	},
}

// astScanMaxDepth bounds the declaration walk; declarations below member
// level are not useful split points.
const astScanMaxDepth = 3

// BoundaryScanner finds declaration start lines with tree-sitter for the
// grammared languages, leaving the regex table as the fallback everywhere
// else. Parsers are not thread-safe, so access is serialized.
type BoundaryScanner struct {
	parsers map[string]*sitter.Parser
	mux     sync.Mutex
}

// NewBoundaryScanner initializes parsers for the bundled grammars
func NewBoundaryScanner() *BoundaryScanner {
	bs := &BoundaryScanner{parsers: make(map[string]*sitter.Parser)}

	for lang, grammar := range map[string]*sitter.Language{
		"go":         golang.GetLanguage(),
		"java":       java.GetLanguage(),
		"javascript": javascript.GetLanguage(),
		"typescript": typescript.GetLanguage(),
		"python":     python.GetLanguage(),
	} {
		p := sitter.NewParser()
		p.SetLanguage(grammar)
		bs.parsers[lang] = p
	}
	return bs
}

// DeclarationLines parses content and returns the set of 0-based line
// numbers that start a declaration. ok is false when the language has no
// grammar or parsing fails, in which case callers fall back to the regex
// table.
func (bs *BoundaryScanner) DeclarationLines(language, content string) (map[int]bool, bool) {
	bs.mux.Lock()
	parser, exists := bs.parsers[language]
	if !exists {
		bs.mux.Unlock()
		return nil, false
	}
	tree := parser.Parse(nil, []byte(content))
	bs.mux.Unlock()

	if tree == nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, false
	}

	nodeTypes := declarationNodeTypes[language]
	lines := make(map[int]bool)
	collectDeclarationLines(root, nodeTypes, lines, 0)
	if len(lines) == 0 {
		return nil, false
	}
	return lines, true
}

func collectDeclarationLines(node *sitter.Node, nodeTypes map[string]bool, lines map[int]bool, depth int) {
	if depth > astScanMaxDepth {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if nodeTypes[child.Type()] {
			lines[int(child.StartPoint().Row)] = true
		}
		collectDeclarationLines(child, nodeTypes, lines, depth+1)
	}
}
