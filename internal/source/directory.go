package source

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/coskb/internal/config"
	"github.com/hyperjump/coskb/internal/extract"
	"github.com/hyperjump/coskb/internal/models"
)

// DirectorySource treats every matching file under a directory as a published document.
type DirectorySource struct {
	root       string
	extensions []string
	recursive  bool
	extractor  *extract.Extractor
	logger     *zap.Logger
}

// NewDirectorySource checks that cfg.Path is a directory and returns a source over it.
func NewDirectorySource(cfg *config.DirectoryConfig, extractor *extract.Extractor, logger *zap.Logger) (*DirectorySource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}
	return &DirectorySource{
		root:       root,
		extensions: cfg.Extensions,
		recursive:  cfg.RecursiveOrDefault(),
		extractor:  extractor,
		logger:     logger,
	}, nil
}

// Root returns the absolute directory path.
func (d *DirectorySource) Root() string {
	return d.root
}

// Recursive reports whether subdirectories are included.
func (d *DirectorySource) Recursive() bool {
	return d.recursive
}

// Documents extracts every matching file. Files that cannot be extracted are
// logged and skipped.
func (d *DirectorySource) Documents(ctx context.Context) ([]models.SourceDocument, error) {
	var docs []models.SourceDocument
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if path == d.root {
				return nil
			}
			if !d.recursive || strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Matches(path) {
			return nil
		}
		// resolve symlinks so only regular files are indexed
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		doc, err := d.document(path)
		if err != nil {
			d.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	return docs, nil
}

// Matches reports whether path has an allowed extension and is not hidden.
func (d *DirectorySource) Matches(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return extensionAllowed(filepath.Ext(path), d.extensions)
}

func (d *DirectorySource) document(path string) (models.SourceDocument, error) {
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return models.SourceDocument{}, err
	}
	rel = filepath.ToSlash(rel)
	text, err := d.extractor.Extract(path)
	if err != nil {
		return models.SourceDocument{}, err
	}
	title := ""
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".md" || ext == ".markdown" {
		raw, err := os.ReadFile(path)
		if err == nil {
			title = extract.MarkdownTitle(string(raw))
		}
	}
	if title == "" {
		title = titleFromFilename(path)
	}
	return models.SourceDocument{
		ID:    DocumentID(rel),
		Title: title,
		Path:  rel,
		Text:  text,
	}, nil
}

// DocumentID returns a stable positive id for a path relative to the source root.
func DocumentID(relPath string) int64 {
	sum := sha256.Sum256([]byte(filepath.ToSlash(filepath.Clean(relPath))))
	id := int64(binary.BigEndian.Uint64(sum[:8]) & math.MaxInt64)
	if id == 0 {
		id = 1
	}
	return id
}

// titleFromFilename turns "vpn_setup-guide.md" into "vpn setup guide" so the
// analyzer can split it into words.
func titleFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	norm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == norm {
			return true
		}
	}
	return false
}

// Close is a no-op.
func (d *DirectorySource) Close() error {
	return nil
}
