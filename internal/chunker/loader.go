package chunker

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// LoadFiles reads the given paths as UTF-8 text documents. A file that
// cannot be read or does not decode as UTF-8 is logged and skipped, never
// fatal: ingestion proceeds with whatever loaded successfully.
func LoadFiles(paths []string, logger *zap.Logger) []Document {
	if logger == nil {
		logger = zap.NewNop()
	}

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable document",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		if !utf8.Valid(data) {
			logger.Warn("skipping non-text document",
				zap.String("path", path),
			)
			continue
		}
		docs = append(docs, Document{SourceID: path, Text: string(data)})
	}
	return docs
}

// LoadDir loads every .txt file in dir, sorted by name. SourceID is the
// bare file name so retrieval citations stay stable across deployments.
// A missing directory yields no documents.
func LoadDir(dir string, logger *zap.Logger) []Document {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if logger != nil {
			logger.Warn("document directory unavailable",
				zap.String("dir", dir),
				zap.Error(err),
			)
		}
		return nil
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	docs := LoadFiles(paths, logger)
	for i := range docs {
		docs[i].SourceID = filepath.Base(docs[i].SourceID)
	}
	return docs
}
