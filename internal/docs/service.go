// Package docs renders the node's AsciiDoc pages to HTML for the API.
package docs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytesparadise/libasciidoc"
	"github.com/bytesparadise/libasciidoc/pkg/configuration"
)

type cachedDoc struct {
	html    string
	modTime time.Time
}

// Service renders files under docsDir, caching each page until its file
// changes.
type Service struct {
	docsDir string
	cache   map[string]cachedDoc
	mu      sync.RWMutex
}

func NewService(docsDir string) *Service {
	return &Service{
		docsDir: docsDir,
		cache:   make(map[string]cachedDoc),
	}
}

// Dir returns the directory pages are read from.
func (s *Service) Dir() string {
	return s.docsDir
}

func (s *Service) GetDoc(ctx context.Context, filename string) (string, error) {
	if filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid doc name %q", filename)
	}
	path := filepath.Join(s.docsDir, filename)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat doc file: %w", err)
	}

	s.mu.RLock()
	cached, ok := s.cache[filename]
	s.mu.RUnlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.html, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read doc file: %w", err)
	}

	output := bytes.NewBuffer(nil)
	// Body only, embedded in the caller's layout. Body rendering has no
	// sidebar, so a page must not ask for a left or right table of contents.
	config := configuration.NewConfiguration(
		configuration.WithHeaderFooter(false),
	)
	if _, err := libasciidoc.Convert(bytes.NewReader(data), output, config); err != nil {
		return "", fmt.Errorf("failed to convert asciidoc: %w", err)
	}

	html := output.String()

	s.mu.Lock()
	s.cache[filename] = cachedDoc{html: html, modTime: info.ModTime()}
	s.mu.Unlock()

	return html, nil
}

// ListDocs returns the .adoc files in the docs directory, sorted by name.
func (s *Service) ListDocs() ([]string, error) {
	entries, err := os.ReadDir(s.docsDir)
	if err != nil {
		return nil, err
	}

	var docs []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".adoc") {
			docs = append(docs, entry.Name())
		}
	}
	sort.Strings(docs)
	return docs, nil
}
