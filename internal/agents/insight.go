package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/recall/internal/executor"
	"github.com/haasonsaas/recall/internal/llm"
	"github.com/haasonsaas/recall/internal/planner"
	"github.com/haasonsaas/recall/pkg/models"
)

// InsightPlaceholder is emitted when no LLM is configured.
const InsightPlaceholder = "[insight unavailable: no LLM configured]"

// InsightGenerator plans, executes, and asks the LLM for a narrative
// grounded strictly in the tool results. It never mutates session state.
type InsightGenerator struct {
	planner  *planner.Planner
	executor *executor.Executor
	client   llm.Client
	logger   *slog.Logger
}

// NewInsightGenerator builds the insight agent. client may be nil.
func NewInsightGenerator(p *planner.Planner, e *executor.Executor, client llm.Client) *InsightGenerator {
	return &InsightGenerator{
		planner:  p,
		executor: e,
		client:   client,
		logger:   slog.Default().With("component", "insight"),
	}
}

// Run plans, executes, and narrates.
func (a *InsightGenerator) Run(ctx context.Context, in planner.Input, useCache bool) (*Outcome, error) {
	res, err := a.planner.Plan(ctx, in)
	if err != nil {
		return nil, err
	}
	records, _, err := a.executor.Execute(ctx, res.Plan, useCache)
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

	if a.client == nil {
		out.Response = InsightPlaceholder
		return out, nil
	}

	grounding, err := json.Marshal(map[string]any{
		"plan":      res.Plan,
		"toolCalls": records,
	})
	if err != nil {
		return nil, fmt.Errorf("encode insight grounding: %w", err)
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Instructions: a.buildInstructions(in.Cards),
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Question: %s\n\nRun data:\n%s", in.Query, grounding),
		}},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("insight completion: %w", err)
	}
	out.Response = resp.Text
	return out, nil
}

func (a *InsightGenerator) buildInstructions(cards []models.MemoryCard) string {
	var b strings.Builder
	b.WriteString("Write a short analytical narrative answering the seller's question, ")
	b.WriteString("grounded strictly in the supplied plan and tool-call JSON.\n")
	b.WriteString("Never invent numbers, products, or dates that are not in the data. ")
	b.WriteString("Describe empty row sets as \"no data returned\".\n")
	b.WriteString("For week-over-week drops, decompose the move: ")
	b.WriteString("conversion_rate = units/sessions and price = sales/units, ")
	b.WriteString("and say which factor moved.\n")
	if len(cards) > 0 {
		b.WriteString("\nRelevant memory:\n")
		for _, card := range cards {
			b.WriteString(card.Text)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
