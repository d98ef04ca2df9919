// Package planner turns a routed query into a validated tool-call plan,
// via the LLM when one is configured and a deterministic heuristic
// otherwise (or whenever the LLM output does not survive validation).
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/haasonsaas/recall/internal/llm"
	"github.com/haasonsaas/recall/internal/tools"
	"github.com/haasonsaas/recall/pkg/models"
)

// planMarker anchors the instruction prompt; the model is told to answer
// with a single JSON object following it.
const planMarker = "OUTPUT_JSON_PLAN"

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Input carries everything the planner may condition on.
type Input struct {
	Route          models.Route
	Query          string
	AugmentedQuery string
	TimeContext    models.TimeContext
	Session        models.SessionState
	Cards          []models.MemoryCard
}

// Result is the planner's output. RawText preserves the LLM response when
// one was received, whether or not it validated.
type Result struct {
	Plan         *models.Plan
	RawText      string
	UsedFallback bool
}

// Planner produces validated plans.
type Planner struct {
	registry *tools.Registry
	client   llm.Client
	logger   *slog.Logger
}

// New builds a planner. client may be nil; planning then always uses the
// heuristic.
func New(registry *tools.Registry, client llm.Client) *Planner {
	return &Planner{
		registry: registry,
		client:   client,
		logger:   slog.Default().With("component", "planner"),
	}
}

// Plan produces a plan for the input. LLM transport errors propagate;
// unparseable or invalid LLM output falls back to the heuristic.
func (p *Planner) Plan(ctx context.Context, in Input) (*Result, error) {
	if p.client == nil {
		return &Result{Plan: HeuristicPlan(in), UsedFallback: true}, nil
	}

	resp, err := p.client.Complete(ctx, llm.Request{
		Instructions: p.buildInstructions(in),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: in.AugmentedQuery}},
		Temperature:  0,
	})
	if err != nil {
		return nil, fmt.Errorf("planner completion: %w", err)
	}

	for _, candidate := range ExtractObjects(resp.Text) {
		plan, err := p.validateCandidate(candidate, in.Route)
		if err != nil {
			p.logger.Debug("plan candidate rejected", "error", err)
			continue
		}
		return &Result{Plan: plan, RawText: resp.Text}, nil
	}

	p.logger.Warn("no plan candidate validated, using heuristic", "route", string(in.Route))
	return &Result{Plan: HeuristicPlan(in), RawText: resp.Text, UsedFallback: true}, nil
}

// buildInstructions composes the planning prompt: marker, tool registry
// dump, session hints, memory cards verbatim, and the target route.
func (p *Planner) buildInstructions(in Input) string {
	var b strings.Builder
	b.WriteString(planMarker)
	b.WriteString("\nPlan a sequence of typed tool calls that answers the seller's question.\n")
	b.WriteString("Respond with exactly one JSON object: ")
	b.WriteString(`{"route", "timeRange"?: {"startDate", "endDate"}, "steps": [{"tool", "args"}], "notes"?}.`)
	fmt.Fprintf(&b, "\nAt most %d steps. Dates are ISO (YYYY-MM-DD).\n", models.MaxPlanSteps)

	fmt.Fprintf(&b, "\nTarget route: %s\n", in.Route)
	tc := in.TimeContext
	fmt.Fprintf(&b, "Today: %s. This week: %s..%s. Last week: %s..%s. This month: %s..%s. Last month: %s..%s.\n",
		tc.Today, tc.ThisWeekStart, tc.ThisWeekEnd, tc.LastWeekStart, tc.LastWeekEnd,
		tc.ThisMonthStart, tc.ThisMonthEnd, tc.LastMonthStart, tc.LastMonthEnd)

	b.WriteString("\nAvailable tools:\n")
	b.WriteString(p.registry.Describe())

	if len(in.Session.SelectedProductIDs) > 0 {
		fmt.Fprintf(&b, "\nSession: selectedProductIds=%s\n", strings.Join(in.Session.SelectedProductIDs, ","))
	}

	if len(in.Cards) > 0 {
		b.WriteString("\nRelevant memory:\n")
		for _, card := range in.Cards {
			b.WriteString(card.Text)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// validateCandidate runs the full validation sequence on one extracted
// object: JSON parse, plan shape, tool existence, per-step arg validation
// with coercions.
func (p *Planner) validateCandidate(candidate string, route models.Route) (*models.Plan, error) {
	cleaned := StripTrailingCommas(candidate)

	var raw struct {
		Route     string            `json:"route"`
		TimeRange *models.DateRange `json:"timeRange"`
		Steps     []struct {
			Tool string         `json:"tool"`
			Args map[string]any `json:"args"`
		} `json:"steps"`
		Notes string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse candidate: %w", err)
	}

	if raw.Route == "" {
		raw.Route = string(route)
	}
	if raw.Route != string(models.RouteDataPresenter) && raw.Route != string(models.RouteInsightGenerator) {
		return nil, fmt.Errorf("unknown route %q", raw.Route)
	}
	if len(raw.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	if len(raw.Steps) > models.MaxPlanSteps {
		return nil, fmt.Errorf("plan has %d steps, max is %d", len(raw.Steps), models.MaxPlanSteps)
	}
	if raw.TimeRange != nil {
		if !isoDatePattern.MatchString(raw.TimeRange.StartDate) || !isoDatePattern.MatchString(raw.TimeRange.EndDate) {
			return nil, fmt.Errorf("timeRange dates are not ISO: %+v", raw.TimeRange)
		}
	}

	plan := &models.Plan{
		Route:     models.Route(raw.Route),
		TimeRange: raw.TimeRange,
		Notes:     raw.Notes,
	}
	for i, step := range raw.Steps {
		if _, ok := p.registry.Get(step.Tool); !ok {
			return nil, fmt.Errorf("step %d: unknown tool %q", i, step.Tool)
		}
		args := step.Args
		if args == nil {
			args = map[string]any{}
		}
		validated, err := p.registry.ValidateArgs(step.Tool, args)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		plan.Steps = append(plan.Steps, models.PlanStep{Tool: step.Tool, Args: validated})
	}
	return plan, nil
}
