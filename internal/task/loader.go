package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Loader loads task documents from a tasks directory.
type Loader interface {
	LoadFile(path string) (*Document, error)
	LoadSlug(slug string) (*Document, error)
	LoadDir() ([]*Document, error)
	Files() ([]string, error)
}

type loader struct {
	dir string
	log logrus.FieldLogger
}

// NewLoader creates a task document loader rooted at dir.
func NewLoader(log logrus.FieldLogger, dir string) Loader {
	return &loader{
		dir: dir,
		log: log.WithField("component", "task_loader"),
	}
}

// LoadFile reads, parses, and structurally validates a single task document.
// Metric semantics are validated later by BuildSchema; duplicate metric keys
// are surfaced here as a warning and rejected there.
func (l *loader) LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading task documents from trusted paths
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	if err := l.validateDocument(doc); err != nil {
		return nil, fmt.Errorf("validating document %s: %w", filepath.Base(path), err)
	}

	return doc, nil
}

// LoadSlug loads the document at <dir>/<slug>.yaml.
func (l *loader) LoadSlug(slug string) (*Document, error) {
	path := l.buildPath(slug)

	l.log.WithFields(logrus.Fields{
		"slug": slug,
		"path": path,
	}).Debug("loading task document")

	doc, err := l.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", slug, err)
	}

	return doc, nil
}

// LoadDir loads every task document in the directory. Unparseable files are
// skipped with a warning; duplicate slugs across files are an error.
func (l *loader) LoadDir() ([]*Document, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(files))
	seen := make(map[string]string, len(files))

	for _, path := range files {
		doc, err := l.LoadFile(path)
		if err != nil {
			l.log.WithError(err).WithField("file", filepath.Base(path)).Warn("failed to load task document, skipping")
			continue
		}

		if prev, ok := seen[doc.Slug]; ok {
			return nil, fmt.Errorf("%w: %s declared by %s and %s", errDuplicateSlug, doc.Slug, prev, filepath.Base(path))
		}

		seen[doc.Slug] = filepath.Base(path)
		docs = append(docs, doc)
	}

	return docs, nil
}

// Files lists the YAML files in the tasks directory, sorted by name.
func (l *loader) Files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", l.dir, err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		files = append(files, filepath.Join(l.dir, name))
	}

	sort.Strings(files)

	return files, nil
}

// validateDocument checks the document frame. Metric declarations are left
// to BuildSchema so that validate runs can report them per metric.
func (l *loader) validateDocument(doc *Document) error {
	if doc.Slug == "" {
		return errSlugRequired
	}

	if doc.Runs == "" {
		return fmt.Errorf("%w: %s", errRunsRequired, doc.Slug)
	}

	if doc.Creates != "metrics" {
		return fmt.Errorf("%w: %s declares creates %q", errCreatesInvalid, doc.Slug, doc.Creates)
	}

	if len(doc.Metrics.Entries) == 0 {
		return fmt.Errorf("%w: %s", errNoMetrics, doc.Slug)
	}

	for _, dup := range doc.Metrics.Duplicates {
		l.log.WithFields(logrus.Fields{
			"slug":   doc.Slug,
			"metric": dup,
		}).Warn("duplicate metric key in task document")
	}

	return nil
}

// buildPath constructs the file path for a task document by slug.
func (l *loader) buildPath(slug string) string {
	return filepath.Join(l.dir, slug+".yaml")
}
