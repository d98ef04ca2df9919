// Package agents wraps plan→execute→render for the two worker routes: the
// deterministic data presenter and the LLM-backed insight generator.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/recall/internal/executor"
	"github.com/haasonsaas/recall/internal/planner"
	"github.com/haasonsaas/recall/pkg/models"
)

// maxSelectedProducts bounds how many product ids the presenter carries
// into session state.
const maxSelectedProducts = 20

// Outcome is what a worker agent hands back to the orchestrator.
type Outcome struct {
	Plan         *models.Plan
	PlannerRaw   string
	UsedFallback bool
	ToolCalls    []models.ToolCallRecord
	Response     string
	Session      models.SessionState
}

// Presenter renders tool results deterministically and maintains the
// selected-products session state.
type Presenter struct {
	planner  *planner.Planner
	executor *executor.Executor
	logger   *slog.Logger
}

// NewPresenter builds the data-presenter agent.
func NewPresenter(p *planner.Planner, e *executor.Executor) *Presenter {
	return &Presenter{
		planner:  p,
		executor: e,
		logger:   slog.Default().With("component", "presenter"),
	}
}

// Run plans, executes, and renders. The returned session reflects any
// product selection made by a top_products result.
func (a *Presenter) Run(ctx context.Context, in planner.Input, useCache bool) (*Outcome, error) {
	res, err := a.planner.Plan(ctx, in)
	if err != nil {
		return nil, err
	}
	records, byTool, err := a.executor.Execute(ctx, res.Plan, useCache)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Plan:         res.Plan,
		PlannerRaw:   res.RawText,
		UsedFallback: res.UsedFallback,
		ToolCalls:    records,
		Session:      in.Session.Clone(),
	}
	out.Response = renderResults(res.Plan, byTool)

	if ids := selectedIDs(byTool["top_products"]); len(ids) > 0 {
		out.Session.SelectedProductIDs = ids
	}
	return out, nil
}

// renderResults picks the richest available result: ranked list, then
// series summary, then catalog listing.
func renderResults(plan *models.Plan, byTool map[string]any) string {
	if result, ok := byTool["top_products"]; ok {
		return renderTopProducts(plan, result)
	}
	if result, ok := byTool["timeseries"]; ok {
		return renderTimeseries(result)
	}
	if result, ok := byTool["list_products"]; ok {
		return renderProducts(result)
	}
	return "No results."
}

func renderTopProducts(plan *models.Plan, result any) string {
	rows := genericList(result, "rows")
	if len(rows) == 0 {
		return "No results."
	}

	var b strings.Builder
	header := "Top products"
	if r := planRange(plan); r != "" {
		header += " (" + r + ")"
	}
	b.WriteString(header + ":\n")
	for i, item := range rows {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["productName"].(string)
		metric, _ := m["metric"].(string)
		value, _ := m["metricValue"].(float64)
		fmt.Fprintf(&b, "%d. %s: %s %s\n", i+1, name, formatValue(metric, value), metric)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTimeseries(result any) string {
	series := genericList(result, "series")
	if len(series) == 0 {
		return "No results."
	}

	var b strings.Builder
	b.WriteString("Daily series:\n")
	for _, item := range series {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["productId"].(string)
		points, _ := m["points"].([]any)
		if len(points) == 0 {
			fmt.Fprintf(&b, "- %s: no data returned\n", id)
			continue
		}
		last, _ := points[len(points)-1].(map[string]any)
		date, _ := last["date"].(string)
		value, _ := last["value"].(float64)
		fmt.Fprintf(&b, "- %s: %d points, latest %.2f on %s\n", id, len(points), value, date)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderProducts(result any) string {
	products := genericList(result, "products")
	if len(products) == 0 {
		return "No results."
	}

	var b strings.Builder
	b.WriteString("Products:\n")
	for _, item := range products {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		name, _ := m["name"].(string)
		category, _ := m["category"].(string)
		fmt.Fprintf(&b, "- %s %s (%s)\n", id, name, category)
	}
	return strings.TrimRight(b.String(), "\n")
}

// selectedIDs pulls up to maxSelectedProducts product ids from a
// top_products result, in rank order.
func selectedIDs(result any) []string {
	rows := genericList(result, "rows")
	ids := make([]string, 0, maxSelectedProducts)
	for _, item := range rows {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := m["productId"].(string); ok && id != "" {
			ids = append(ids, id)
			if len(ids) == maxSelectedProducts {
				break
			}
		}
	}
	return ids
}

func genericList(result any, key string) []any {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	list, _ := obj[key].([]any)
	return list
}

func planRange(plan *models.Plan) string {
	if plan == nil {
		return ""
	}
	if plan.TimeRange != nil {
		return plan.TimeRange.StartDate + " to " + plan.TimeRange.EndDate
	}
	for _, step := range plan.Steps {
		if step.Tool != "top_products" {
			continue
		}
		start, _ := step.Args["startDate"].(string)
		end, _ := step.Args["endDate"].(string)
		if start != "" && end != "" {
			return start + " to " + end
		}
	}
	return ""
}

func formatValue(metric string, value float64) string {
	switch metric {
	case "sales":
		return fmt.Sprintf("$%.2f", value)
	case "conversion_rate":
		return fmt.Sprintf("%.2f%%", value*100)
	default:
		return fmt.Sprintf("%.0f", value)
	}
}
