package loader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-directory file listing extra ignore patterns.
const IgnoreFileName = ".fhirsyncignore"

// ignorePattern is a glob together with what it is matched against.
type ignorePattern struct {
	glob      string
	matchPath bool // match the slash-separated relative path instead of the basename
}

// IgnoreMatcher decides which files an import skips. Patterns without '/'
// match a file's basename; patterns with '/' match its path relative to the
// import root. The ignore file itself is always skipped.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw patterns. Blank lines and '#' comments are dropped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{
		patterns: []ignorePattern{{glob: IgnoreFileName}},
	}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		m.patterns = append(m.patterns, ignorePattern{
			glob:      strings.TrimPrefix(raw, "/"),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return m
}

// Match reports whether relativePath should be skipped.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" || relativePath == "." {
		return false
	}
	slashed := filepath.ToSlash(relativePath)
	base := filepath.Base(relativePath)

	for _, p := range m.patterns {
		subject := base
		if p.matchPath {
			subject = slashed
		}
		// Malformed globs never match.
		if ok, err := filepath.Match(p.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// ReadIgnoreFile returns the raw lines of an ignore file, or nil when the
// file does not exist.
func ReadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
