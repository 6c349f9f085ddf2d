package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/ingest"
)

var (
	errUnknownHandler   = errors.New("unknown handler")
	errNilHandler       = errors.New("handler cannot be nil")
	errEmptyHandlerName = errors.New("handler name cannot be empty")
)

// Registry maps a document's runs: value to the handler executing it.
// It is populated once at startup; runs: strings resolve against it, never
// through any reflective lookup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string // maintains registration order
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		order:    make([]string, 0),
	}
}

// Register adds a handler under a runs: name. Registering the same name
// twice replaces the handler and keeps its original position.
func (r *Registry) Register(name string, h Handler) error {
	if h == nil {
		return errNilHandler
	}

	if name == "" {
		return errEmptyHandlerName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.handlers[name] = h

	return nil
}

// Resolve returns the handler for a runs: value.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownHandler, name)
	}

	return h, nil
}

// Names returns registered handler names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}

// RegisterDefaults wires the shipped analytics handlers: plain metric
// handlers for the timeseries and summary documents, and faceted ones bound
// to their grouping dimension.
func RegisterDefaults(r *Registry, log logrus.FieldLogger, ingestor ingest.Ingestor) error {
	defaults := []struct {
		name      string
		dimension string
	}{
		{name: "ga.ContentTimeseries"},
		{name: "ga.ContentSummary"},
		{name: "ga.ContentDeviceSummary"},
		{name: "ga.ContentDomainFacets", dimension: "domain"},
		{name: "ga.ContentDeviceFacets", dimension: "device"},
	}

	for _, d := range defaults {
		if err := r.Register(d.name, NewMetricsHandler(log, ingestor, d.dimension)); err != nil {
			return fmt.Errorf("registering %s: %w", d.name, err)
		}
	}

	return nil
}
