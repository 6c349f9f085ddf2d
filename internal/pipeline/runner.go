package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/formula"
	"github.com/pressmetrics/metrictask/internal/task"
)

// RunnerConfig wires the runner's collaborators.
type RunnerConfig struct {
	Logger   logrus.FieldLogger
	Loader   task.Loader
	Registry *Registry
	Metrics  Collector
	Sink     io.Writer
}

// Runner loads, compiles and executes task documents and writes result sets
// to the sink. Persistence beyond the sink is someone else's job.
type Runner struct {
	loader   task.Loader
	registry *Registry
	metrics  Collector
	sink     io.Writer
	log      logrus.FieldLogger
}

// NewRunner creates a runner. A nil Sink defaults to stdout.
func NewRunner(cfg *RunnerConfig) *Runner {
	sink := cfg.Sink
	if sink == nil {
		sink = os.Stdout
	}

	return &Runner{
		loader:   cfg.Loader,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		sink:     sink,
		log:      cfg.Logger.WithField("component", "task_runner"),
	}
}

// Compile turns a parsed document into an executable Task. Schema
// violations and circular formulas fail here, before any fetch.
func (r *Runner) Compile(doc *task.Document) (*Task, error) {
	schema, err := task.BuildSchema(doc)
	if err != nil {
		return nil, err
	}

	opts, err := task.BuildOptions(doc)
	if err != nil {
		return nil, err
	}

	engine, err := formula.Compile(r.log, schema)
	if err != nil {
		return nil, err
	}

	return &Task{Document: doc, Schema: schema, Options: opts, Engine: engine}, nil
}

// LoadTask loads one document by slug and compiles it.
func (r *Runner) LoadTask(slug string) (*Task, error) {
	doc, err := r.loader.LoadSlug(slug)
	if err != nil {
		return nil, err
	}

	return r.Compile(doc)
}

// Run executes one task end to end and writes the result set to the sink.
// Partial results accompanying level errors are still written before the
// error is returned.
func (r *Runner) Run(ctx context.Context, slug string, req Request) (*ResultSet, error) {
	start := time.Now()

	t, err := r.LoadTask(slug)
	if err != nil {
		r.record(slug, "", nil, start, err)
		return nil, err
	}

	handler, err := r.registry.Resolve(t.Document.Runs)
	if err != nil {
		err = fmt.Errorf("task %s: %w", slug, err)
		r.record(slug, t.Document.Runs, nil, start, err)

		return nil, err
	}

	rs, execErr := handler.Execute(ctx, t, req)

	if rs != nil {
		if writeErr := r.writeResultSet(rs); writeErr != nil {
			r.record(slug, t.Document.Runs, rs, start, writeErr)
			return rs, writeErr
		}
	}

	r.record(slug, t.Document.Runs, rs, start, execErr)

	return rs, execErr
}

// LogSummary logs the aggregated run summary.
func (r *Runner) LogSummary() {
	if r.metrics == nil {
		return
	}

	summary := r.metrics.GetSummary()

	r.log.WithFields(logrus.Fields{
		"runs":     summary.TotalRuns,
		"passed":   summary.Passed,
		"failed":   summary.Failed,
		"results":  summary.TotalResults,
		"duration": summary.TotalDuration,
	}).Info("run summary")
}

func (r *Runner) record(slug, handler string, rs *ResultSet, start time.Time, err error) {
	if r.metrics == nil {
		return
	}

	metric := &TaskRunMetric{
		Slug:      slug,
		Handler:   handler,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}

	if rs != nil {
		metric.Results = len(rs.Results)
	}

	if err != nil {
		metric.ErrorMessage = err.Error()
	}

	r.metrics.RecordTaskRun(metric)
}

func (r *Runner) writeResultSet(rs *ResultSet) error {
	enc := json.NewEncoder(r.sink)
	enc.SetIndent("", "  ")

	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("writing result set: %w", err)
	}

	return nil
}
