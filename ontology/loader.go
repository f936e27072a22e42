package ontology

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ParseModel parses one YAML schema document into a validated Model.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse schema document: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema document: %w", err)
	}
	return &m, nil
}

// Store fetches the current ontology model from a backing schema store.
// Implementations must return the full merged model on every call.
type Store interface {
	Fetch(ctx context.Context) (*Model, error)
}

// DirLoader loads schema documents from a local directory. Files matching
// the glob pattern are merged in lexical path order, so later files can
// override earlier declarations.
type DirLoader struct {
	dir     string
	pattern string
	logger  *slog.Logger
}

// NewDirLoader creates a directory-backed schema store. An empty pattern
// defaults to "**/*.yaml".
func NewDirLoader(dir, pattern string, logger *slog.Logger) *DirLoader {
	if pattern == "" {
		pattern = "**/*.yaml"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirLoader{dir: dir, pattern: pattern, logger: logger}
}

// Fetch loads, merges and validates all matching schema documents.
func (l *DirLoader) Fetch(_ context.Context) (*Model, error) {
	matches, err := doublestar.Glob(os.DirFS(l.dir), l.pattern)
	if err != nil {
		return nil, fmt.Errorf("glob schema files: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no schema files matching %q in %s", l.pattern, l.dir)
	}
	sort.Strings(matches)

	merged := &Model{}
	for _, rel := range matches {
		data, err := os.ReadFile(filepath.Join(l.dir, rel))
		if err != nil {
			return nil, fmt.Errorf("read schema file %s: %w", rel, err)
		}
		var doc Model
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse schema file %s: %w", rel, err)
		}
		merged.Merge(&doc)
	}

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("merged schema invalid: %w", err)
	}

	l.logger.Debug("Loaded ontology schema from directory",
		"dir", l.dir,
		"files", len(matches),
		"classes", len(merged.Classes),
		"properties", len(merged.Properties),
		"restrictions", len(merged.Restrictions))

	return merged, nil
}

// Invalidator is notified when schema files change on disk. Cache
// implements it.
type Invalidator interface {
	Invalidate()
}

// Watch invalidates the given target whenever a schema file under the
// directory changes. It blocks until ctx is done.
func (l *DirLoader) Watch(ctx context.Context, target Invalidator) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create schema watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch schema dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSchemaFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.logger.Info("Schema file changed, invalidating cache",
				"file", event.Name,
				"op", event.Op.String())
			target.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("Schema watcher error", "error", err)
		}
	}
}

func isSchemaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
