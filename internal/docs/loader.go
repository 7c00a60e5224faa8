package docs

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"docrag/internal/models"
)

// Options bounds a directory scan.
type Options struct {
	MaxFiles    int
	MaxFileSize int64 // bytes
}

var defaultSkips = map[string]struct{}{
	".git": {}, "node_modules": {}, ".cache": {}, "storage": {},
}

// Load walks dir and returns the text of every supported document
// (.txt, .md, .pdf), ordered by relative path so chunk ordinals are
// deterministic across reindex runs. Unreadable or binary files are skipped.
func Load(dir string, opt Options) ([]models.Document, error) {
	if opt.MaxFiles <= 0 {
		opt.MaxFiles = 500
	}
	if opt.MaxFileSize <= 0 {
		opt.MaxFileSize = 4 * 1024 * 1024 // 4MB
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if _, skip := defaultSkips[d.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if supported(path) {
			paths = append(paths, path)
		}
		if len(paths) >= opt.MaxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	docs := make([]models.Document, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.Size() > opt.MaxFileSize {
			continue
		}
		text, err := extract(path)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		rel, _ := filepath.Rel(dir, path)
		docs = append(docs, models.Document{Name: filepath.ToSlash(rel), Text: text})
	}
	return docs, nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

func extract(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if looksBinary(b) {
		return "", nil
	}
	return string(b), nil
}

func extractPDF(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r, err := rdr.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// looksBinary rejects content with a NUL byte in the first 8000 bytes.
func looksBinary(b []byte) bool {
	n := len(b)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(b[:n], 0) >= 0
}
