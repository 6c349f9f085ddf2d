package ingest

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pressmetrics/metrictask/internal/task"
)

var (
	errFixtureItemID     = errors.New("content item id must be positive")
	errFixtureItemType   = errors.New("content item type is required")
	errFixtureMetricName = errors.New("metric name is required")
	errFixtureScope      = errors.New("unknown scope")
)

// fixtureFile is the YAML layout of a seed data file. All days are dates,
// parsed in UTC.
type fixtureFile struct {
	ContentItems []fixtureItem  `yaml:"content_items"`
	Counts       []fixtureCount `yaml:"counts"`
	Facets       []fixtureFacet `yaml:"facets"`
}

type fixtureItem struct {
	ID        int64  `yaml:"id"`
	Type      string `yaml:"type"`
	CreatedAt string `yaml:"created_at"`
}

type fixtureCount struct {
	Metric  string  `yaml:"metric"`
	Scope   string  `yaml:"scope"`
	ScopeID int64   `yaml:"scope_id"`
	Day     string  `yaml:"day"`
	Value   float64 `yaml:"value"`
}

type fixtureFacet struct {
	Metric    string  `yaml:"metric"`
	Dimension string  `yaml:"dimension"`
	Scope     string  `yaml:"scope"`
	ScopeID   int64   `yaml:"scope_id"`
	Key       string  `yaml:"key"`
	Day       string  `yaml:"day"`
	Value     float64 `yaml:"value"`
}

// LoadFixture reads a YAML seed file into a fresh in-memory store. It backs
// runs against hand-written data instead of the warehouse.
func LoadFixture(log logrus.FieldLogger, path string) (*Memory, error) {
	log = log.WithField("component", "fixture_loader")

	data, err := os.ReadFile(path) //nolint:gosec // G304: fixture path comes from the CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}

	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}

	mem := NewMemory()

	for i, item := range file.ContentItems {
		if item.ID <= 0 {
			return nil, fmt.Errorf("content_items[%d]: %w", i, errFixtureItemID)
		}
		if item.Type == "" {
			return nil, fmt.Errorf("content_items[%d]: %w", i, errFixtureItemType)
		}

		createdAt, err := parseFixtureTime(item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("content_items[%d]: %w", i, err)
		}

		mem.AddContentItem(ContentItem{ID: item.ID, Type: item.Type, CreatedAt: createdAt})
	}

	for i, count := range file.Counts {
		if count.Metric == "" {
			return nil, fmt.Errorf("counts[%d]: %w", i, errFixtureMetricName)
		}

		scope, err := parseFixtureScope(count.Scope)
		if err != nil {
			return nil, fmt.Errorf("counts[%d]: %w", i, err)
		}

		day, err := parseFixtureTime(count.Day)
		if err != nil {
			return nil, fmt.Errorf("counts[%d]: %w", i, err)
		}

		mem.AddCount(count.Metric, scope, count.ScopeID, day, count.Value)
	}

	for i, facet := range file.Facets {
		if facet.Metric == "" {
			return nil, fmt.Errorf("facets[%d]: %w", i, errFixtureMetricName)
		}

		scope, err := parseFixtureScope(facet.Scope)
		if err != nil {
			return nil, fmt.Errorf("facets[%d]: %w", i, err)
		}

		day, err := parseFixtureTime(facet.Day)
		if err != nil {
			return nil, fmt.Errorf("facets[%d]: %w", i, err)
		}

		mem.AddFacet(facet.Metric, facet.Dimension, scope, facet.ScopeID, facet.Key, day, facet.Value)
	}

	log.WithFields(logrus.Fields{
		"file":   path,
		"items":  len(file.ContentItems),
		"counts": len(file.Counts),
		"facets": len(file.Facets),
	}).Info("Loaded fixture data")

	return mem, nil
}

// parseFixtureScope maps the YAML scope string, defaulting to content.
func parseFixtureScope(s string) (task.Scope, error) {
	switch s {
	case "", string(task.ScopeContent):
		return task.ScopeContent, nil
	case string(task.ScopeOrg):
		return task.ScopeOrg, nil
	default:
		return "", fmt.Errorf("%w: %q", errFixtureScope, s)
	}
}

// parseFixtureTime accepts a plain date or a full RFC 3339 timestamp.
func parseFixtureTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a date or RFC 3339 timestamp: %q", s)
	}

	return t.UTC(), nil
}
