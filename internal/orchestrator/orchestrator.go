// Package orchestrator is the end-to-end state machine: augment the query,
// gate and route it, dispatch to a worker agent, evaluate, write memory,
// and record the run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/haasonsaas/recall/internal/agents"
	"github.com/haasonsaas/recall/internal/clock"
	"github.com/haasonsaas/recall/internal/evaluator"
	"github.com/haasonsaas/recall/internal/executor"
	"github.com/haasonsaas/recall/internal/leverage"
	"github.com/haasonsaas/recall/internal/llm"
	"github.com/haasonsaas/recall/internal/manager"
	"github.com/haasonsaas/recall/internal/observability"
	"github.com/haasonsaas/recall/internal/planner"
	"github.com/haasonsaas/recall/internal/redact"
	"github.com/haasonsaas/recall/internal/store"
	"github.com/haasonsaas/recall/internal/tools"
	"github.com/haasonsaas/recall/pkg/models"
)

// OODResponse is the fixed reply for out-of-domain queries.
const OODResponse = "Out of scope: I can help with seller analytics (sales, traffic, benchmarks)."

// calendarRule is the global domain rule seeded at construction.
const calendarRule = "Weeks are Mon–Sun; last week/month refers to the previous calendar week/month."

// Orchestrator wires the pipeline together for one user-facing surface.
type Orchestrator struct {
	store     *store.Store
	leverager *leverage.Leverager
	manager   *manager.Manager
	presenter *agents.Presenter
	insight   *agents.InsightGenerator
	evaluator *evaluator.Evaluator
	clock     clock.Clock
	logger    *slog.Logger
}

// New wires an orchestrator over the given boundaries and seeds the global
// calendar-convention rule.
func New(st *store.Store, registry *tools.Registry, ds tools.DatasetQuery, client llm.Client, base clock.Clock) (*Orchestrator, error) {
	p := planner.New(registry, client)
	exec := executor.New(registry, st)

	o := &Orchestrator{
		store:     st,
		leverager: leverage.New(st),
		manager:   manager.New(client),
		presenter: agents.NewPresenter(p, exec),
		insight:   agents.NewInsightGenerator(p, exec, client),
		evaluator: evaluator.New(ds),
		clock:     base,
		logger:    slog.Default().With("component", "orchestrator"),
	}

	_, err := st.UpsertMemoryItem(models.MemoryUpsert{
		Scope:      models.ScopeGlobal,
		Kind:       models.KindDomainRule,
		Text:       calendarRule,
		Importance: 0.5,
	}, store.NowISO())
	if err != nil {
		return nil, fmt.Errorf("seed calendar rule: %w", err)
	}
	return o, nil
}

// HandleQuery runs one query end to end and records the run. The returned
// run's Session carries the post-run conversational state.
func (o *Orchestrator) HandleQuery(ctx context.Context, query, userID string, cfg models.RunConfig, session models.SessionState) (*models.RunResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "orchestrator.run")
	defer span.End()

	ck := clock.For(o.clock, cfg)
	tc := ck.TimeContext()
	nowIso := clock.NowISO(ck.NowMs())
	scopes := []string{models.ScopeGlobal, models.UserScope(userID)}

	run := &models.RunResult{
		ID:             store.NewID(),
		CreatedAt:      nowIso,
		UserID:         userID,
		Config:         cfg,
		Query:          query,
		AugmentedQuery: augmentQuery(query, tc),
		Latencies:      map[string]int64{},
		Session:        session.Clone(),
	}

	// Manager stage: retrieval (when enabled) plus routing.
	managerStart := time.Now()
	var managerCards []models.MemoryCard
	if cfg.MemoryMode.ReadsMemory() {
		cards, err := o.retrieve(leverage.StageManagerRoute, run.AugmentedQuery, scopes, nowIso)
		if err != nil {
			return nil, err
		}
		managerCards = cards
		run.MemoryInjected = appendStage(run.MemoryInjected, leverage.StageManagerRoute, cards)
	}
	decision, err := o.manager.Route(ctx, query, managerCards)
	if err != nil {
		observability.RunsTotal.WithLabelValues(string(cfg.MemoryMode), "error").Inc()
		return nil, fmt.Errorf("manager route: %w", err)
	}
	run.Latencies["manager_route_ms"] = time.Since(managerStart).Milliseconds()

	if decision.OOD {
		run.OOD = true
		run.Response = redact.Text(OODResponse)
		if err := o.record(run); err != nil {
			return nil, err
		}
		observability.RunsTotal.WithLabelValues(string(cfg.MemoryMode), "ood").Inc()
		o.logger.Info("query out of domain", "run", run.ID, "reason", decision.Reason)
		return run, nil
	}
	run.Route = decision.Route

	// Worker stage.
	workerStart := time.Now()
	in := planner.Input{
		Route:          decision.Route,
		Query:          query,
		AugmentedQuery: run.AugmentedQuery,
		TimeContext:    tc,
		Session:        session,
	}
	if cfg.MemoryMode.ReadsMemory() {
		cards, err := o.retrieve(leverage.StageWorkflowPlan, run.AugmentedQuery, scopes, nowIso)
		if err != nil {
			return nil, err
		}
		in.Cards = cards
		run.MemoryInjected = appendStage(run.MemoryInjected, leverage.StageWorkflowPlan, cards)
	}

	var outcome *agents.Outcome
	switch decision.Route {
	case models.RouteInsightGenerator:
		if cfg.MemoryMode.ReadsMemory() {
			cards, err := o.retrieve(leverage.StageInsightGenerate, run.AugmentedQuery, scopes, nowIso)
			if err != nil {
				return nil, err
			}
			in.Cards = append(in.Cards, cards...)
			run.MemoryInjected = appendStage(run.MemoryInjected, leverage.StageInsightGenerate, cards)
		}
		outcome, err = o.insight.Run(ctx, in, cfg.MemoryMode.CachesTools())
	default:
		outcome, err = o.presenter.Run(ctx, in, cfg.MemoryMode.CachesTools())
	}
	if err != nil {
		observability.RunsTotal.WithLabelValues(string(cfg.MemoryMode), "error").Inc()
		return nil, fmt.Errorf("worker %s: %w", decision.Route, err)
	}
	run.Latencies["worker_total_ms"] = time.Since(workerStart).Milliseconds()

	run.Plan = outcome.Plan
	run.ToolCalls = outcome.ToolCalls
	run.Response = redact.Text(outcome.Response)
	run.Session = outcome.Session
	for _, call := range outcome.ToolCalls {
		observability.ToolCallsTotal.WithLabelValues(call.Tool, strconv.FormatBool(call.Cached)).Inc()
	}

	// Evaluation stage.
	evalStart := time.Now()
	run.Eval = o.evaluator.Score(query, ck.Today(), run.Plan, run.ToolCalls)
	run.Latencies["eval_ms"] = time.Since(evalStart).Milliseconds()

	if cfg.MemoryMode.WritesMemory() && run.Eval != nil {
		o.writeMemory(run, userID, query, nowIso)
	}

	if err := o.record(run); err != nil {
		return nil, err
	}
	observability.RunsTotal.WithLabelValues(string(cfg.MemoryMode), "answered").Inc()
	o.logger.Info("run complete", "run", run.ID, "route", string(run.Route),
		"toolCalls", len(run.ToolCalls), "fallback", outcome.UsedFallback)
	return run, nil
}

// writeMemory persists evaluator proposals and sweeps expired items. Both
// are best-effort: failures never invalidate the answer.
func (o *Orchestrator) writeMemory(run *models.RunResult, userID, query, nowIso string) {
	proposals := o.evaluator.ProposeWrites(run.Eval, userID, query, run.Plan, run.ToolCalls)
	for _, p := range proposals {
		if _, err := o.store.UpsertMemoryItem(p, nowIso); err != nil {
			o.logger.Warn("memory write failed", "kind", string(p.Kind), "error", err)
			continue
		}
		observability.MemoryWritesTotal.Inc()
	}
	expired, err := o.store.Maintenance(nowIso)
	if err != nil {
		o.logger.Warn("maintenance failed", "error", err)
		return
	}
	observability.MemoryExpiredTotal.Add(float64(expired))
}

func (o *Orchestrator) retrieve(stage leverage.Stage, input string, scopes []string, nowIso string) ([]models.MemoryCard, error) {
	cards, err := o.leverager.Retrieve(stage, input, scopes, nowIso)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", stage, err)
	}
	return cards, nil
}

func (o *Orchestrator) record(run *models.RunResult) error {
	if err := o.store.InsertRun(run); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// augmentQuery folds the time context into the query text so every
// downstream stage shares the same calendar grounding.
func augmentQuery(query string, tc models.TimeContext) string {
	return fmt.Sprintf("%s (today: %s; this week: %s..%s; last week: %s..%s; this month: %s..%s; last month: %s..%s)",
		query, tc.Today,
		tc.ThisWeekStart, tc.ThisWeekEnd,
		tc.LastWeekStart, tc.LastWeekEnd,
		tc.ThisMonthStart, tc.ThisMonthEnd,
		tc.LastMonthStart, tc.LastMonthEnd)
}

func appendStage(stages []models.StageCards, stage leverage.Stage, cards []models.MemoryCard) []models.StageCards {
	if len(cards) == 0 {
		return stages
	}
	return append(stages, models.StageCards{Stage: string(stage), Cards: cards})
}
