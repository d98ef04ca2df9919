package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/recall/internal/clock"
	"github.com/haasonsaas/recall/internal/dataset"
	"github.com/haasonsaas/recall/internal/llm"
	"github.com/haasonsaas/recall/internal/tools"
	"github.com/haasonsaas/recall/pkg/models"
)

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	ds, err := dataset.Generate(42, "2025-10-01", 120)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	r, err := tools.NewRegistry(ds)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func testInput(t *testing.T, query string) Input {
	t.Helper()
	tc, err := clock.Context("2026-02-04")
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	return Input{
		Route:          models.RouteDataPresenter,
		Query:          query,
		AugmentedQuery: query,
		TimeContext:    tc,
	}
}

type failingClient struct{}

func (failingClient) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return nil, errors.New("connection refused")
}

func TestPlanWithLLM(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	t.Run("valid plan with prose and snake_case args", func(t *testing.T) {
		client := llm.NewScriptedClient("Sure! Here is the plan:\n" +
			`{"route":"data_presenter","timeRange":{"startDate":"2026-01-01","endDate":"2026-01-31"},` +
			`"steps":[{"tool":"top_products","args":{"metric":"revenue","start_date":"2026-01-01","end_date":"2026-01-31","n":10,}},]}`)
		p := New(reg, client)
		res, err := p.Plan(ctx, testInput(t, "top 10 products last month by sales"))
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if res.UsedFallback {
			t.Fatalf("fallback used; raw = %q", res.RawText)
		}
		if len(res.Plan.Steps) != 1 {
			t.Fatalf("steps = %d", len(res.Plan.Steps))
		}
		args := res.Plan.Steps[0].Args
		if args["metric"] != "sales" {
			t.Errorf("metric = %v, want coerced sales", args["metric"])
		}
		if args["startDate"] != "2026-01-01" {
			t.Errorf("startDate = %v", args["startDate"])
		}
	})

	t.Run("first invalid candidate skipped for a later valid one", func(t *testing.T) {
		client := llm.NewScriptedClient(
			`{"route":"data_presenter","steps":[{"tool":"nuke_everything","args":{}}]}` +
				` or rather ` +
				`{"route":"data_presenter","steps":[{"tool":"list_products","args":{"limit":20}}]}`)
		p := New(reg, client)
		res, err := p.Plan(ctx, testInput(t, "list products"))
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if res.UsedFallback {
			t.Fatal("fallback used despite valid second candidate")
		}
		if res.Plan.Steps[0].Tool != "list_products" {
			t.Errorf("tool = %s", res.Plan.Steps[0].Tool)
		}
	})

	t.Run("garbage output falls back to heuristic with raw preserved", func(t *testing.T) {
		client := llm.NewScriptedClient("I cannot produce JSON today.")
		p := New(reg, client)
		res, err := p.Plan(ctx, testInput(t, "top 5 products last month"))
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if !res.UsedFallback {
			t.Error("expected fallback")
		}
		if res.RawText != "I cannot produce JSON today." {
			t.Errorf("rawText = %q", res.RawText)
		}
		if res.Plan.Steps[0].Tool != "top_products" {
			t.Errorf("heuristic tool = %s", res.Plan.Steps[0].Tool)
		}
	})

	t.Run("oversized plan rejected", func(t *testing.T) {
		step := `{"tool":"list_products","args":{"limit":1}}`
		plan := `{"route":"data_presenter","steps":[` + step
		for i := 0; i < 6; i++ {
			plan += "," + step
		}
		plan += `]}`
		client := llm.NewScriptedClient(plan)
		p := New(reg, client)
		res, err := p.Plan(ctx, testInput(t, "list products"))
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if !res.UsedFallback {
			t.Error("7-step plan must be rejected")
		}
	})

	t.Run("bad timeRange dates rejected", func(t *testing.T) {
		client := llm.NewScriptedClient(
			`{"route":"data_presenter","timeRange":{"startDate":"Jan 1","endDate":"Jan 31"},` +
				`"steps":[{"tool":"list_products","args":{}}]}`)
		p := New(reg, client)
		res, err := p.Plan(ctx, testInput(t, "list products"))
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if !res.UsedFallback {
			t.Error("non-ISO timeRange must be rejected")
		}
	})

	t.Run("transport error propagates", func(t *testing.T) {
		p := New(reg, failingClient{})
		if _, err := p.Plan(ctx, testInput(t, "top products")); err == nil {
			t.Error("expected transport error")
		}
	})

	t.Run("nil client goes straight to heuristic", func(t *testing.T) {
		p := New(reg, nil)
		res, err := p.Plan(ctx, testInput(t, "top 3 products last week"))
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		if !res.UsedFallback || res.RawText != "" {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("prompt carries marker, tools, session, and cards", func(t *testing.T) {
		client := llm.NewScriptedClient(`{"route":"data_presenter","steps":[{"tool":"list_products","args":{}}]}`)
		p := New(reg, client)
		in := testInput(t, "show traffic for those products")
		in.Session.SelectedProductIDs = []string{"P001", "P002"}
		in.Cards = []models.MemoryCard{{Text: "MEMORY CARD [domain_rule] (global)\nWeeks are Mon–Sun.\nSignals: q=0.00 imp=0.50 used=0 last=never"}}
		if _, err := p.Plan(ctx, in); err != nil {
			t.Fatalf("Plan: %v", err)
		}
		calls := client.Calls()
		if len(calls) != 1 {
			t.Fatalf("calls = %d", len(calls))
		}
		prompt := calls[0].Instructions
		for _, want := range []string{"OUTPUT_JSON_PLAN", "top_products", "selectedProductIds=P001,P002", "MEMORY CARD [domain_rule]"} {
			if !strings.Contains(prompt, want) {
				t.Errorf("prompt missing %q", want)
			}
		}
		if calls[0].Temperature != 0 {
			t.Errorf("temperature = %f, want 0", calls[0].Temperature)
		}
	})
}

func TestHeuristicPlan(t *testing.T) {
	t.Run("top products with limit and range", func(t *testing.T) {
		plan := HeuristicPlan(testInput(t, "What were the sales for my top 10 products last month?"))
		if len(plan.Steps) != 1 || plan.Steps[0].Tool != "top_products" {
			t.Fatalf("plan = %+v", plan)
		}
		args := plan.Steps[0].Args
		if args["metric"] != "sales" || args["limit"] != 10 {
			t.Errorf("args = %v", args)
		}
		if args["startDate"] != "2026-01-01" || args["endDate"] != "2026-01-31" {
			t.Errorf("range = %v..%v", args["startDate"], args["endDate"])
		}
	})

	t.Run("those products uses session ids", func(t *testing.T) {
		in := testInput(t, "show traffic for those products last month")
		in.Session.SelectedProductIDs = []string{"P003", "P001"}
		plan := HeuristicPlan(in)
		if len(plan.Steps) != 1 || plan.Steps[0].Tool != "timeseries" {
			t.Fatalf("plan = %+v", plan)
		}
		args := plan.Steps[0].Args
		if args["metric"] != "sessions" {
			t.Errorf("metric = %v, want sessions", args["metric"])
		}
		ids := args["productIds"].([]any)
		if len(ids) != 2 || ids[0] != "P003" || ids[1] != "P001" {
			t.Errorf("productIds = %v, want session order preserved", ids)
		}
	})

	t.Run("those products without session falls through", func(t *testing.T) {
		plan := HeuristicPlan(testInput(t, "show traffic for those products"))
		if plan.Steps[0].Tool == "timeseries" {
			t.Error("timeseries planned without selected products")
		}
	})

	t.Run("why drop wow expands to six weekly comparisons", func(t *testing.T) {
		plan := HeuristicPlan(testInput(t, "why did sales drop wow?"))
		if len(plan.Steps) != 6 {
			t.Fatalf("steps = %d, want 6", len(plan.Steps))
		}
		for _, step := range plan.Steps {
			if step.Tool != "top_products" {
				t.Errorf("tool = %s", step.Tool)
			}
			if step.Args["limit"] != 50 {
				t.Errorf("limit = %v, want 50", step.Args["limit"])
			}
		}
		if plan.TimeRange == nil || plan.TimeRange.StartDate != "2026-02-02" {
			t.Errorf("timeRange = %+v, want this week", plan.TimeRange)
		}
	})

	t.Run("unrecognized query lists products", func(t *testing.T) {
		plan := HeuristicPlan(testInput(t, "hello there"))
		if plan.Steps[0].Tool != "list_products" || plan.Steps[0].Args["limit"] != 20 {
			t.Errorf("plan = %+v", plan)
		}
	})

	t.Run("limit caps at 100", func(t *testing.T) {
		plan := HeuristicPlan(testInput(t, "top 5000 products this week"))
		if plan.Steps[0].Args["limit"] != 100 {
			t.Errorf("limit = %v", plan.Steps[0].Args["limit"])
		}
	})

	t.Run("heuristic plans validate against the registry", func(t *testing.T) {
		reg := testRegistry(t)
		queries := []string{
			"top 10 products last month",
			"why did sales drop wow",
			"anything else",
			"top 7 products by conversion this month",
		}
		for _, q := range queries {
			plan := HeuristicPlan(testInput(t, q))
			for i, step := range plan.Steps {
				if _, err := reg.ValidateArgs(step.Tool, step.Args); err != nil {
					t.Errorf("query %q step %d invalid: %v", q, i, err)
				}
			}
		}
	})
}
