// Package tools defines the typed tool surface over the analytics dataset:
// schemas, argument coercion, and deterministic executors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/recall/internal/dataset"
)

// DatasetQuery is the read-only surface the tool executors run against.
// *dataset.Dataset satisfies it; tests may substitute fakes.
type DatasetQuery interface {
	ListProducts(category string, limit int) []dataset.Product
	TopProducts(metric dataset.Metric, startDate, endDate string, limit int) []dataset.TopRow
	Timeseries(metric dataset.Metric, productIDs []string, startDate, endDate string) []dataset.Series
	Benchmark(metric dataset.Metric, category, startDate, endDate string) float64
}

// Definition is one typed tool: schema, description, and executor.
type Definition struct {
	Name        string
	Description string
	SchemaJSON  string
	schema      *jsonschema.Schema
	execute     func(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps tool names to definitions. The tool set is fixed at
// construction; lookups are read-only afterwards.
type Registry struct {
	defs map[string]*Definition
}

// DefaultTopLimit applies when top_products is called without a limit.
const DefaultTopLimit = 10

// NewRegistry builds the five-tool registry over the given dataset surface.
func NewRegistry(ds DatasetQuery) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition)}

	defs := []*Definition{
		{
			Name:        "list_products",
			Description: "List catalog products, optionally filtered by category.",
			SchemaJSON:  listProductsSchema,
			execute: func(_ context.Context, args map[string]any) (any, error) {
				category, _ := args["category"].(string)
				limit := intArg(args, "limit", 0)
				return toGeneric(map[string]any{"products": ds.ListProducts(category, limit)})
			},
		},
		{
			Name:        "top_products",
			Description: "Rank products by a metric over a date range, highest first.",
			SchemaJSON:  topProductsSchema,
			execute: func(_ context.Context, args map[string]any) (any, error) {
				metric := dataset.Metric(stringArg(args, "metric"))
				limit := intArg(args, "limit", DefaultTopLimit)
				rows := ds.TopProducts(metric, stringArg(args, "startDate"), stringArg(args, "endDate"), limit)
				return toGeneric(map[string]any{"rows": rows})
			},
		},
		{
			Name:        "timeseries",
			Description: "Daily per-product values of a metric over a date range.",
			SchemaJSON:  timeseriesSchema,
			execute: func(_ context.Context, args map[string]any) (any, error) {
				metric := dataset.Metric(stringArg(args, "metric"))
				ids := stringSliceArg(args, "productIds")
				series := ds.Timeseries(metric, ids, stringArg(args, "startDate"), stringArg(args, "endDate"))
				return toGeneric(map[string]any{"series": series})
			},
		},
		{
			Name:        "benchmark",
			Description: "Category-wide average of a metric over a date range.",
			SchemaJSON:  benchmarkSchema,
			execute: func(_ context.Context, args map[string]any) (any, error) {
				metric := dataset.Metric(stringArg(args, "metric"))
				category := stringArg(args, "category")
				avg := ds.Benchmark(metric, category, stringArg(args, "startDate"), stringArg(args, "endDate"))
				return toGeneric(map[string]any{"metric": metric, "category": category, "average": avg})
			},
		},
		{
			Name:        "compute_changes",
			Description: "Start/end delta and percent change over a point series.",
			SchemaJSON:  computeChangesSchema,
			execute: func(_ context.Context, args map[string]any) (any, error) {
				points, err := pointsArg(args, "points")
				if err != nil {
					return nil, err
				}
				changes, err := dataset.ComputeChanges(points)
				if err != nil {
					return nil, err
				}
				return toGeneric(changes)
			},
		},
	}

	for _, d := range defs {
		schema, err := jsonschema.CompileString(d.Name+".schema.json", d.SchemaJSON)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", d.Name, err)
		}
		d.schema = schema
		r.defs[d.Name] = d
	}
	return r, nil
}

// Get returns the named definition.
func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the registry for inclusion in a planner prompt: one block
// per tool with its description and argument schema.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.Names() {
		d := r.defs[name]
		fmt.Fprintf(&b, "- %s: %s\n  args schema: %s\n", d.Name, d.Description, compactJSON(d.SchemaJSON))
	}
	return b.String()
}

// ValidateArgs coerces and validates args for the named tool, returning the
// canonical argument map.
func (r *Registry) ValidateArgs(name string, args map[string]any) (map[string]any, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	coerced := NormalizeArgs(args)
	decoded, err := toGeneric(coerced)
	if err != nil {
		return nil, fmt.Errorf("encode args for %s: %w", name, err)
	}
	if err := d.schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("args invalid for %s: %w", name, err)
	}
	generic, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("args for %s are not an object", name)
	}
	return generic, nil
}

// Execute runs the named tool with already-validated args. Results are
// JSON-generic values so cached and live results are indistinguishable.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	result, err := d.execute(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	return result, nil
}

// toGeneric round-trips v through encoding/json so every result is built
// from map[string]any / []any / float64 / string.
func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func compactJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return s
	}
	return string(raw)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func stringSliceArg(args map[string]any, key string) []string {
	list, _ := args[key].([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func pointsArg(args map[string]any, key string) ([]dataset.Point, error) {
	list, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array", key)
	}
	out := make([]dataset.Point, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", key, i)
		}
		value, ok := m["value"].(float64)
		if !ok {
			return nil, fmt.Errorf("%s[%d].value must be a number", key, i)
		}
		date, _ := m["date"].(string)
		out = append(out, dataset.Point{Date: date, Value: value})
	}
	return out, nil
}
