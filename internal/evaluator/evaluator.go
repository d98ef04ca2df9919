// Package evaluator scores finished runs against ground truth inferred from
// the query text, and proposes memory writes based on the outcome.
//
// The evaluator derives its own time context from "today"; it never trusts
// the planner's ranges.
package evaluator

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/recall/internal/clock"
	"github.com/haasonsaas/recall/internal/dataset"
	"github.com/haasonsaas/recall/internal/tools"
	"github.com/haasonsaas/recall/pkg/models"
)

// Quality thresholds for write proposals. Contract constants.
const (
	GoodQuality = 0.8
	BadQuality  = 0.5
)

// metricValueTolerance is the relative tolerance for metric comparisons.
const metricValueTolerance = 0.01

// SpecKind names the ground-truth shape inferred from a query.
type SpecKind string

const (
	SpecTopProducts SpecKind = "top_products"
	SpecTimeseries  SpecKind = "timeseries"
	SpecWhyDropWow  SpecKind = "why_drop_wow"
)

// EvalSpec is the inferred ground-truth specification.
type EvalSpec struct {
	Kind   SpecKind
	Metric dataset.Metric
	Limit  int
	Range  models.DateRange
}

var topNPattern = regexp.MustCompile(`\btop\s+(\d+)\b`)

// Evaluator scores runs by re-executing canonical queries on the dataset.
type Evaluator struct {
	ds     tools.DatasetQuery
	logger *slog.Logger
}

// New builds an evaluator over the dataset surface.
func New(ds tools.DatasetQuery) *Evaluator {
	return &Evaluator{
		ds:     ds,
		logger: slog.Default().With("component", "evaluator"),
	}
}

// InferSpec derives the ground-truth spec from the query and today. Returns
// nil when the query matches no known shape.
func (e *Evaluator) InferSpec(query, today string) *EvalSpec {
	q := strings.ToLower(query)
	tc, err := clock.Context(today)
	if err != nil {
		e.logger.Warn("cannot derive time context", "today", today, "error", err)
		return nil
	}

	if strings.Contains(q, "why") && strings.Contains(q, "drop") && strings.Contains(q, "wow") {
		return &EvalSpec{Kind: SpecWhyDropWow, Range: tc.ThisWeek()}
	}

	if (strings.Contains(q, "traffic") || strings.Contains(q, "sessions")) && strings.Contains(q, "those products") {
		r := tc.LastMonth()
		switch {
		case strings.Contains(q, "last week"):
			r = tc.LastWeek()
		case strings.Contains(q, "this month"):
			r = tc.ThisMonth()
		}
		return &EvalSpec{Kind: SpecTimeseries, Metric: dataset.MetricSessions, Range: r}
	}

	if strings.Contains(q, "top") && strings.Contains(q, "product") {
		var r models.DateRange
		switch {
		case strings.Contains(q, "last month"):
			r = tc.LastMonth()
		case strings.Contains(q, "this month"):
			r = tc.ThisMonth()
		case strings.Contains(q, "last week"):
			r = tc.LastWeek()
		default:
			return nil
		}
		limit := 10
		if m := topNPattern.FindStringSubmatch(q); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
				limit = n
			}
		}
		if limit > 100 {
			limit = 100
		}
		return &EvalSpec{Kind: SpecTopProducts, Metric: detectMetric(q), Limit: limit, Range: r}
	}

	return nil
}

// Score evaluates the run. Returns nil when no ground-truth spec applies.
func (e *Evaluator) Score(query, today string, plan *models.Plan, calls []models.ToolCallRecord) *models.Scores {
	spec := e.InferSpec(query, today)
	if spec == nil {
		return nil
	}
	switch spec.Kind {
	case SpecTopProducts:
		return e.scoreTopProducts(spec, calls)
	case SpecTimeseries:
		return e.scoreTimeseries(spec, calls)
	case SpecWhyDropWow:
		return e.scoreWhyDropWow(today, plan, calls)
	}
	return nil
}

// scoreTopProducts compares the actual first top_products call rank-by-rank
// against a fresh canonical query.
func (e *Evaluator) scoreTopProducts(spec *EvalSpec, calls []models.ToolCallRecord) *models.Scores {
	call := firstCall(calls, "top_products")
	if call == nil {
		return &models.Scores{Notes: []string{"expected a top_products call but none ran"}}
	}

	actual := resultRows(call.Result)
	if len(actual) == 0 {
		return &models.Scores{
			Correctness:  0,
			Completeness: 0,
			Relevance:    0.2,
			Quality:      0.07,
			Notes:        []string{"top_products returned no rows"},
		}
	}

	expected := e.ds.TopProducts(spec.Metric, spec.Range.StartDate, spec.Range.EndDate, spec.Limit)

	s := &models.Scores{}
	n := spec.Limit
	if len(expected) < n {
		n = len(expected)
	}
	if len(actual) < n {
		n = len(actual)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if actual[i].id == expected[i].ProductID && nearlyEqual(actual[i].value, expected[i].MetricValue) {
			matches++
		}
	}
	if n > 0 {
		s.Correctness = float64(matches) / float64(n)
	}
	if s.Correctness < 1 {
		s.Notes = append(s.Notes, fmt.Sprintf("rank match %d/%d against ground truth", matches, n))
	}

	s.Completeness = math.Min(1, float64(len(actual))/float64(spec.Limit))
	if s.Completeness < 1 {
		s.Notes = append(s.Notes, fmt.Sprintf("returned %d rows, wanted %d", len(actual), spec.Limit))
	}

	if argsMatchSpec(call.Args, spec) {
		s.Relevance = 1
	} else {
		s.Relevance = 0.4
		s.Notes = append(s.Notes, fmt.Sprintf(
			"args diverge from ground truth: wanted metric=%s range=%s..%s",
			spec.Metric, spec.Range.StartDate, spec.Range.EndDate))
	}

	s.Quality = mean3(s.Correctness, s.Completeness, s.Relevance)
	return s
}

// scoreTimeseries checks range coverage and product coverage of the first
// timeseries call. Completeness is products-with-any-point over requested
// products, so a correctly-requested product with no data does not count
// against the plan.
func (e *Evaluator) scoreTimeseries(spec *EvalSpec, calls []models.ToolCallRecord) *models.Scores {
	call := firstCall(calls, "timeseries")
	if call == nil {
		return &models.Scores{Notes: []string{"expected a timeseries call but none ran"}}
	}

	s := &models.Scores{}
	if argsMatchSpec(call.Args, spec) {
		s.Relevance = 1
	} else {
		s.Relevance = 0.4
		s.Notes = append(s.Notes, fmt.Sprintf(
			"args diverge from ground truth: wanted metric=%s range=%s..%s",
			spec.Metric, spec.Range.StartDate, spec.Range.EndDate))
	}

	requested := argStringList(call.Args, "productIds")
	series := resultSeries(call.Result)

	if len(requested) == 0 {
		s.Completeness = 0.5
		s.Notes = append(s.Notes, "requested product set unknown")
	} else {
		withPoints := 0
		for _, sr := range series {
			if len(sr.points) > 0 {
				withPoints++
			}
		}
		s.Completeness = math.Min(1, float64(withPoints)/float64(len(requested)))
		if s.Completeness < 1 {
			s.Notes = append(s.Notes, fmt.Sprintf("%d of %d products returned data", withPoints, len(requested)))
		}
	}

	total, inRange := 0, 0
	for _, sr := range series {
		for _, date := range sr.points {
			total++
			if date >= spec.Range.StartDate && date <= spec.Range.EndDate {
				inRange++
			}
		}
	}
	if total > 0 {
		s.Correctness = float64(inRange) / float64(total)
		if s.Correctness < 1 {
			s.Notes = append(s.Notes, fmt.Sprintf("%d of %d points outside the expected range", total-inRange, total))
		}
	} else {
		s.Completeness = 0
		s.Notes = append(s.Notes, "timeseries returned no points")
	}

	s.Quality = mean3(s.Correctness, s.Completeness, s.Relevance)
	return s
}

// scoreWhyDropWow rewards either the strong week-over-week top_products
// comparison or the timeseries+compute_changes drilldown.
func (e *Evaluator) scoreWhyDropWow(today string, plan *models.Plan, calls []models.ToolCallRecord) *models.Scores {
	tc, err := clock.Context(today)
	if err != nil {
		return nil
	}
	thisWeek, lastWeek := tc.ThisWeek(), tc.LastWeek()

	var thisWeekCalls, lastWeekCalls []*models.ToolCallRecord
	for i := range calls {
		c := &calls[i]
		if c.Tool != "top_products" {
			continue
		}
		switch {
		case callRange(c.Args) == thisWeek:
			thisWeekCalls = append(thisWeekCalls, c)
		case callRange(c.Args) == lastWeek:
			lastWeekCalls = append(lastWeekCalls, c)
		}
	}
	weeklyComparison := len(thisWeekCalls) > 0 && len(lastWeekCalls) > 0

	hasTimeseries := firstCall(calls, "timeseries") != nil
	hasChanges := firstCall(calls, "compute_changes") != nil
	drilldown := hasTimeseries && hasChanges

	s := &models.Scores{}
	if weeklyComparison || drilldown {
		s.Relevance = 1
	} else {
		s.Relevance = 0.5
		s.Notes = append(s.Notes, "plan neither compares weeks nor drills down into a change")
	}

	switch {
	case drilldown:
		s.Completeness = 0.9
	case weeklyComparison:
		s.Completeness = 0.8
	case hasTimeseries:
		s.Completeness = 0.5
		s.Notes = append(s.Notes, "timeseries without compute_changes")
	case hasChanges:
		s.Completeness = 0.3
		s.Notes = append(s.Notes, "compute_changes without timeseries")
	default:
		s.Completeness = 0.2
		s.Notes = append(s.Notes, "no diagnostic tools ran")
	}

	s.Correctness = 0.2
	if weeklyComparison {
		matches, comparable := 0, 0
		for _, pair := range [][]*models.ToolCallRecord{thisWeekCalls, lastWeekCalls} {
			for _, c := range pair {
				rows := resultRows(c.Result)
				if len(rows) == 0 {
					continue
				}
				metric := dataset.Metric(argString(c.Args, "metric"))
				r := callRange(c.Args)
				truth := e.ds.TopProducts(metric, r.StartDate, r.EndDate, 1)
				if len(truth) == 0 {
					continue
				}
				comparable++
				if rows[0].id == truth[0].ProductID {
					matches++
				}
			}
		}
		if comparable > 0 {
			s.Correctness = float64(matches) / float64(comparable)
			if matches < comparable {
				s.Notes = append(s.Notes, fmt.Sprintf("weekly leaders matched %d/%d calls", matches, comparable))
			}
		}
	} else if drilldown {
		s.Correctness = 0.6
	}

	s.Quality = mean3(s.Correctness, s.Completeness, s.Relevance)
	return s
}

// ---- helpers over generic tool results ----

type row struct {
	id    string
	value float64
}

type seriesView struct {
	productID string
	points    []string // dates
}

func firstCall(calls []models.ToolCallRecord, tool string) *models.ToolCallRecord {
	for i := range calls {
		if calls[i].Tool == tool {
			return &calls[i]
		}
	}
	return nil
}

func resultRows(result any) []row {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := obj["rows"].([]any)
	if !ok {
		return nil
	}
	rows := make([]row, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["productId"].(string)
		value, _ := m["metricValue"].(float64)
		rows = append(rows, row{id: id, value: value})
	}
	return rows
}

func resultSeries(result any) []seriesView {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := obj["series"].([]any)
	if !ok {
		return nil
	}
	out := make([]seriesView, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sv := seriesView{}
		sv.productID, _ = m["productId"].(string)
		points, _ := m["points"].([]any)
		for _, p := range points {
			if pm, ok := p.(map[string]any); ok {
				if date, ok := pm["date"].(string); ok {
					sv.points = append(sv.points, date)
				}
			}
		}
		out = append(out, sv)
	}
	return out
}

func argsMatchSpec(args map[string]any, spec *EvalSpec) bool {
	return argString(args, "metric") == string(spec.Metric) && callRange(args) == spec.Range
}

func callRange(args map[string]any) models.DateRange {
	return models.DateRange{
		StartDate: argString(args, "startDate"),
		EndDate:   argString(args, "endDate"),
	}
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argStringList(args map[string]any, key string) []string {
	raw, _ := args[key].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// nearlyEqual compares with relative tolerance against max(1, |a|, |b|).
func nearlyEqual(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= metricValueTolerance*scale
}

func mean3(a, b, c float64) float64 {
	return (a + b + c) / 3
}

func detectMetric(q string) dataset.Metric {
	switch {
	case strings.Contains(q, "traffic") || strings.Contains(q, "session"):
		return dataset.MetricSessions
	case strings.Contains(q, "units"):
		return dataset.MetricUnits
	case strings.Contains(q, "conversion"):
		return dataset.MetricConversionRate
	default:
		return dataset.MetricSales
	}
}
