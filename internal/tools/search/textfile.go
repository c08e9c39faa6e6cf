// Package search implements the workspace search tools: Grep, Glob,
// and LS.
package search

import (
	"os"
	"path/filepath"
	"strings"
)

// textExtensions is the fast-path allowlist; files with other
// extensions fall back to the printable-byte heuristic.
var textExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rs": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".java": true, ".kt": true, ".rb": true, ".php": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true,
	".md": true, ".txt": true, ".rst": true, ".org": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true, ".env": true,
	".html": true, ".css": true, ".scss": true, ".xml": true,
	".sql": true, ".proto": true, ".graphql": true, ".lock": true,
	".mod": true, ".sum": true, ".mk": true, ".cmake": true,
}

const (
	heuristicSample   = 512
	printableFraction = 0.70
)

// isTextFile reports whether a file looks like text: known extension,
// or at least 70% printable bytes in the first 512 bytes.
func isTextFile(path string) bool {
	if textExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, heuristicSample)
	n, err := f.Read(buf)
	if n == 0 || (err != nil && n <= 0) {
		return false
	}
	buf = buf[:n]

	printable := 0
	for _, b := range buf {
		if b == '\n' || b == '\r' || b == '\t' || (b >= 0x20 && b < 0x7f) || b >= 0x80 {
			printable++
		}
	}
	return float64(printable)/float64(len(buf)) >= printableFraction
}
