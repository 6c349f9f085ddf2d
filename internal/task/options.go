package task

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Option names every task document shares.
const (
	OptionMaxAge           = "max_age"
	OptionContentItemTypes = "content_item_types"
	OptionMaxFacets        = "max_facets"
)

// Defaults applied when a document does not declare the option at all.
const (
	DefaultMaxAge    = 30
	DefaultMaxFacets = 10
)

// TypeWildcard matches every content item type.
const TypeWildcard = "all"

var validInputTypes = map[string]bool{
	"number":   true,
	"text":     true,
	"select":   true,
	"checkbox": true,
}

var validValueTypes = map[string]bool{
	"numeric":  true,
	"string":   true,
	"boolean":  true,
	"datetime": true,
}

// Options are the resolved run options of a task: the recency window length,
// the content item type filter, and the facet cap. They are fixed before a
// run starts and never change during one.
type Options struct {
	MaxAge           int
	ContentItemTypes []string
	MaxFacets        int
}

// BuildOptions validates a document's option declarations and resolves their
// defaults into runnable options.
func BuildOptions(doc *Document) (*Options, error) {
	for name, opt := range doc.Options {
		if err := validateOption(opt); err != nil {
			return nil, NewSchemaError(doc.Slug, "", fmt.Errorf("option %s: %w", name, err))
		}
	}

	opts := &Options{
		MaxAge:    DefaultMaxAge,
		MaxFacets: DefaultMaxFacets,
	}

	if opt, ok := doc.Options[OptionMaxAge]; ok {
		maxAge, err := toInt(opt.Default)
		if err != nil {
			return nil, NewSchemaError(doc.Slug, "", fmt.Errorf("option %s: %w", OptionMaxAge, err))
		}

		opts.MaxAge = maxAge
	}

	if opt, ok := doc.Options[OptionMaxFacets]; ok {
		maxFacets, err := toInt(opt.Default)
		if err != nil {
			return nil, NewSchemaError(doc.Slug, "", fmt.Errorf("option %s: %w", OptionMaxFacets, err))
		}

		opts.MaxFacets = maxFacets
	}

	if opt, ok := doc.Options[OptionContentItemTypes]; ok {
		opts.ContentItemTypes = toStrings(opt.Default)
	}

	if opts.MaxAge < 0 {
		return nil, NewSchemaError(doc.Slug, "", errMaxAgeNegative)
	}

	if opts.MaxFacets < 0 {
		return nil, NewSchemaError(doc.Slug, "", errMaxFacetsNegative)
	}

	return opts, nil
}

// TypeFilter compiles the content item type option into a matcher.
func (o *Options) TypeFilter() TypeFilter {
	filter := TypeFilter{types: make(map[string]bool, len(o.ContentItemTypes))}

	if len(o.ContentItemTypes) == 0 {
		filter.all = true
		return filter
	}

	for _, t := range o.ContentItemTypes {
		if strings.EqualFold(t, TypeWildcard) {
			filter.all = true
			return filter
		}

		filter.types[t] = true
	}

	return filter
}

// TypeFilter decides which content item types a run includes. The wildcard
// "all" (or an empty type list) matches everything.
type TypeFilter struct {
	all   bool
	types map[string]bool
}

// Matches reports whether a content item type passes the filter.
func (f TypeFilter) Matches(itemType string) bool {
	if f.all {
		return true
	}

	return f.types[itemType]
}

// All reports whether the filter is the wildcard.
func (f TypeFilter) All() bool {
	return f.all
}

// Types returns the allowed types sorted, or nil for the wildcard.
func (f TypeFilter) Types() []string {
	if f.all {
		return nil
	}

	types := make([]string, 0, len(f.types))
	for t := range f.types {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}

func validateOption(opt *Option) error {
	if !validInputTypes[opt.InputType] {
		return fmt.Errorf("%w: %q", errUnknownInputType, opt.InputType)
	}

	for _, vt := range opt.ValueTypes {
		if !validValueTypes[vt] {
			return fmt.Errorf("%w: %q", errUnknownValueType, vt)
		}
	}

	if (opt.InputType == "select" || opt.InputType == "checkbox") && len(opt.InputOptions) == 0 {
		return errInputOptionsRequired
	}

	return nil
}

// toInt coerces the YAML default of a numeric option. Documents are hand
// written, so integers arrive as ints, floats, or quoted strings.
func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}

		return parsed, nil
	case nil:
		return 0, fmt.Errorf("no default value")
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}

// toStrings coerces a default that may be a single scalar or a list.
func toStrings(v interface{}) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprintf("%v", item))
		}

		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}
