package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver registration
	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/rollup"
	"github.com/pressmetrics/metrictask/internal/task"
)

// Store is the warehouse-backed Ingestor. Raw samples live in day-granular
// ClickHouse tables (raw_metrics, raw_facets, content_items); every fetch
// uses half-open day predicates so window boundaries match the engine's.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewStore creates a warehouse store over an open connection. The connection
// is injected so tests can substitute one.
func NewStore(log logrus.FieldLogger, db *sql.DB) *Store {
	return &Store{
		db:  db,
		log: log.WithField("component", "warehouse_store"),
	}
}

// Open connects to the warehouse over the ClickHouse SQL driver.
func Open(log logrus.FieldLogger, url string) (*sql.DB, error) {
	db, err := sql.Open("clickhouse", url)
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	log.WithField("component", "warehouse_store").Debug("opened warehouse connection")

	return db, nil
}

// FetchCounts reads per-day sums of one count metric inside the window.
func (s *Store) FetchCounts(ctx context.Context, metric string, scope task.Scope, w rollup.Window, types task.TypeFilter) ([]Sample, error) {
	query := `SELECT day, scope_id, sum(value) AS value
FROM raw_metrics
WHERE metric = ? AND scope = ? AND day >= ? AND day < ?`

	args := []interface{}{metric, string(scope), w.Start, w.End}

	if scope == task.ScopeContent && !types.All() {
		clause, typeArgs := typeFilterClause(types)
		query += clause
		args = append(args, typeArgs...)
	}

	query += `
GROUP BY day, scope_id
ORDER BY day ASC, scope_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching counts for %s: %w", metric, err)
	}
	defer func() { _ = rows.Close() }()

	samples := make([]Sample, 0)

	for rows.Next() {
		var (
			day     time.Time
			scopeID int64
			value   float64
		)

		if err := rows.Scan(&day, &scopeID, &value); err != nil {
			return nil, fmt.Errorf("scanning count row for %s: %w", metric, err)
		}

		samples = append(samples, Sample{Day: toDay(day), ScopeID: scopeID, Value: value})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading count rows for %s: %w", metric, err)
	}

	s.log.WithFields(logrus.Fields{
		"metric": metric,
		"scope":  scope,
		"window": w.String(),
		"rows":   len(samples),
	}).Debug("fetched raw counts")

	return samples, nil
}

// FetchFacets reads window-aggregated facet values of one faceted metric.
// hint > 0 becomes a per-scope LIMIT BY so the warehouse does not ship
// unbounded facet lists; the limiter still enforces the cap afterwards.
func (s *Store) FetchFacets(ctx context.Context, metric, dimension string, scope task.Scope, w rollup.Window, hint int) ([]FacetSample, error) {
	query := `SELECT facet_key, scope_id, sum(value) AS value
FROM raw_facets
WHERE metric = ? AND dimension = ? AND scope = ? AND day >= ? AND day < ?
GROUP BY facet_key, scope_id
ORDER BY scope_id ASC, value DESC, facet_key ASC`

	args := []interface{}{metric, dimension, string(scope), w.Start, w.End}

	if hint > 0 {
		query += `
LIMIT ? BY scope_id`
		args = append(args, hint)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching facets for %s by %s: %w", metric, dimension, err)
	}
	defer func() { _ = rows.Close() }()

	samples := make([]FacetSample, 0)

	for rows.Next() {
		var sample FacetSample

		if err := rows.Scan(&sample.Key, &sample.ScopeID, &sample.Value); err != nil {
			return nil, fmt.Errorf("scanning facet row for %s: %w", metric, err)
		}

		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading facet rows for %s: %w", metric, err)
	}

	return samples, nil
}

// ContentItems lists the warehouse's content item inventory.
func (s *Store) ContentItems(ctx context.Context) ([]ContentItem, error) {
	query := `SELECT id, content_type, created_at
FROM content_items
ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching content items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]ContentItem, 0)

	for rows.Next() {
		var item ContentItem

		if err := rows.Scan(&item.ID, &item.Type, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning content item: %w", err)
		}

		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading content items: %w", err)
	}

	return items, nil
}

// typeFilterClause builds the content type subquery for non-wildcard filters.
func typeFilterClause(types task.TypeFilter) (string, []interface{}) {
	names := types.Types()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	clause := fmt.Sprintf(`
AND scope_id IN (SELECT id FROM content_items WHERE content_type IN (%s))`, placeholders)

	args := make([]interface{}, 0, len(names))
	for _, name := range names {
		args = append(args, name)
	}

	return clause, args
}

// toDay pins a scanned date to its UTC day start, which is what the
// engine's bucket keys are.
func toDay(t time.Time) time.Time {
	u := t.UTC()

	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
