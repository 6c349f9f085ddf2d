package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskRunMetric captures one task execution.
type TaskRunMetric struct {
	Slug         string
	Handler      string
	Results      int
	Duration     time.Duration
	ErrorMessage string // empty if the run succeeded
	Timestamp    time.Time
}

// RunSummary aggregates every recorded run.
type RunSummary struct {
	TotalRuns     int
	Passed        int
	Failed        int
	TotalResults  int
	TotalDuration time.Duration
}

// Collector accumulates run metrics in process.
type Collector interface {
	Start(ctx context.Context) error
	Stop() error
	RecordTaskRun(metric *TaskRunMetric)
	GetTaskRuns() []TaskRunMetric
	GetSummary() RunSummary
}

type collector struct {
	log       logrus.FieldLogger
	mu        sync.RWMutex
	runs      []TaskRunMetric
	startTime time.Time
}

// NewCollector creates a run metrics collector.
func NewCollector(log logrus.FieldLogger) Collector {
	return &collector{
		log:  log.WithField("component", "run_metrics"),
		runs: make([]TaskRunMetric, 0, 16),
	}
}

func (c *collector) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()

	c.log.Debug("run metrics collector started")

	return nil
}

func (c *collector) Stop() error {
	c.log.Debug("run metrics collector stopped")

	return nil
}

func (c *collector) RecordTaskRun(metric *TaskRunMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, *metric)
}

func (c *collector) GetTaskRuns() []TaskRunMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]TaskRunMetric, len(c.runs))
	copy(result, c.runs)

	return result
}

func (c *collector) GetSummary() RunSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := RunSummary{
		TotalRuns:     len(c.runs),
		TotalDuration: time.Since(c.startTime),
	}

	for _, run := range c.runs {
		if run.ErrorMessage == "" {
			summary.Passed++
		} else {
			summary.Failed++
		}

		summary.TotalResults += run.Results
	}

	return summary
}

// Compile-time interface compliance check
var _ Collector = (*collector)(nil)
