// Package ingest discovers PDF files and turns them into page-attributed documents.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"docqa/internal/model"
	"docqa/internal/pkg/pdfextract"
)

const DefaultPattern = "**/*.pdf"

var ErrIngestion = errors.New("ingestion failed")

// IngestionError reports a file that could not be read or parsed.
type IngestionError struct {
	Path string
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s failed: %v", e.Path, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

func (e *IngestionError) Is(target error) bool { return target == ErrIngestion }

// PageExtractor returns the text of each page of a file, in order.
type PageExtractor func(path string) ([]string, error)

// Loader reads documents below Root. Source names are paths relative to Root
// using forward slashes, so a top-level file is cited by its file name.
type Loader struct {
	Root    string
	Pattern string
	Extract PageExtractor
}

func NewLoader(root, pattern string) *Loader {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Loader{Root: root, Pattern: pattern, Extract: pdfextract.ExtractFile}
}

// Discover lists the files under Root matching Pattern, sorted. A missing
// root is an empty corpus.
func (l *Loader) Discover() ([]string, error) {
	info, err := os.Stat(l.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat documents dir failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents path %s is not a directory", l.Root)
	}

	matches, err := doublestar.Glob(os.DirFS(l.Root), l.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("match documents failed: %w", err)
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(l.Root, filepath.FromSlash(m)))
	}
	sort.Strings(paths)
	return paths, nil
}

// Match reports whether path would be picked up by Discover.
func (l *Loader) Match(path string) bool {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	ok, err := doublestar.Match(l.Pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// SourceName is the citation name for path.
func (l *Loader) SourceName(path string) string {
	if rel, err := filepath.Rel(l.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(path)
}

// LoadFile extracts one document. A file with no pages is returned as an
// empty document, not an error.
func (l *Loader) LoadFile(path string) (model.Document, error) {
	texts, err := l.Extract(path)
	if err != nil {
		return model.Document{}, &IngestionError{Path: path, Err: err}
	}
	doc := model.Document{
		Source: l.SourceName(path),
		Path:   path,
		Pages:  make([]model.Page, len(texts)),
	}
	for i, t := range texts {
		doc.Pages[i] = model.Page{Number: i + 1, Text: t}
	}
	return doc, nil
}

// Result holds the documents that loaded and the files that did not.
type Result struct {
	Documents []model.Document
	Failures  []*IngestionError
}

// LoadAll loads paths in order, skipping files that fail.
func (l *Loader) LoadAll(paths []string) Result {
	var res Result
	for _, p := range paths {
		doc, err := l.LoadFile(p)
		if err != nil {
			var ierr *IngestionError
			if !errors.As(err, &ierr) {
				ierr = &IngestionError{Path: p, Err: err}
			}
			log.Printf("ingest: skipping %s: %v", p, ierr.Err)
			res.Failures = append(res.Failures, ierr)
			continue
		}
		if doc.IsEmpty() {
			log.Printf("ingest: %s has no extractable text", p)
		}
		res.Documents = append(res.Documents, doc)
	}
	return res
}

// Fingerprint hashes the file content of path.
func (l *Loader) Fingerprint(path string) (model.SourceFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("open %s failed: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("hash %s failed: %w", path, err)
	}
	return model.SourceFile{
		Name:   l.SourceName(path),
		Size:   n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
