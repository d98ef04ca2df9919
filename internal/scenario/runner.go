package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/haasonsaas/recall/internal/clock"
	"github.com/haasonsaas/recall/internal/dataset"
	"github.com/haasonsaas/recall/internal/llm"
	"github.com/haasonsaas/recall/internal/orchestrator"
	"github.com/haasonsaas/recall/internal/store"
	"github.com/haasonsaas/recall/internal/tools"
	"github.com/haasonsaas/recall/pkg/models"
)

// StepResult is one executed step under one configuration.
type StepResult struct {
	StepID           string         `json:"stepId,omitempty"`
	Query            string         `json:"query"`
	RunID            string         `json:"runId,omitempty"`
	ToolCalls        int            `json:"toolCalls"`
	CachedToolCalls  int            `json:"cachedToolCalls"`
	LatencyMs        int64          `json:"latencyMs"`
	Scores           *models.Scores `json:"scores,omitempty"`
	QuestionLevelAcc bool           `json:"questionLevelAcc"`
	Error            string         `json:"error,omitempty"`
}

// Aggregate summarizes one configuration's pass over the scenario.
type Aggregate struct {
	AvgQuality           float64 `json:"avgQuality"`
	QuestionLevelAccRate float64 `json:"questionLevelAccRate"`
	ToolCallsTotal       int     `json:"toolCallsTotal"`
	CachedToolCallsTotal int     `json:"cachedToolCallsTotal"`
	P90LatencyMs         *int64  `json:"p90LatencyMs"`
}

// Summary is the per-config section of a report.
type Summary struct {
	Config    string       `json:"config"`
	Runs      []StepResult `json:"runs"`
	Aggregate Aggregate    `json:"aggregate"`
}

// Report compares configurations over one scenario.
type Report struct {
	Scenario  string    `json:"scenario"`
	Summaries []Summary `json:"summaries"`
}

// Options parameterize a scenario run.
type Options struct {
	Scenario *Scenario
	UserID   string
	Configs  []models.MemoryMode
	Repeat   int
	// StatePath is the base state-db path; each config appends its name so
	// memories never cross configurations. Empty means in-memory stores.
	StatePath string
	Client    llm.Client
	// RunLog receives every run when set.
	RunLog *RunLogWriter
}

// Runner executes scenarios.
type Runner struct {
	logger *slog.Logger
}

// NewRunner builds a runner.
func NewRunner() *Runner {
	return &Runner{logger: slog.Default().With("component", "scenario")}
}

// Run executes the scenario once per config, repeating the step sequence
// Repeat times per config. Session state threads across steps within a pass
// but never across passes.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Scenario == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	if err := opts.Scenario.Validate(); err != nil {
		return nil, err
	}
	repeat := opts.Repeat
	if repeat <= 0 {
		repeat = 1
	}

	dataStart, dataDays, err := opts.Scenario.DataWindow()
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Generate(opts.Scenario.Seed, dataStart, dataDays)
	if err != nil {
		return nil, fmt.Errorf("generate dataset: %w", err)
	}

	report := &Report{Scenario: opts.Scenario.ID}
	for _, mode := range opts.Configs {
		summary, err := r.runConfig(ctx, opts, ds, mode, repeat)
		if err != nil {
			return nil, err
		}
		report.Summaries = append(report.Summaries, *summary)
	}
	return report, nil
}

// runConfig gives the configuration a fresh store and orchestrator so its
// memory cannot leak into other configs.
func (r *Runner) runConfig(ctx context.Context, opts Options, ds *dataset.Dataset, mode models.MemoryMode, repeat int) (*Summary, error) {
	statePath := ""
	if opts.StatePath != "" {
		statePath = fmt.Sprintf("%s-%s.db", opts.StatePath, mode)
	}
	st, err := store.Open(statePath)
	if err != nil {
		return nil, fmt.Errorf("open state store for %s: %w", mode, err)
	}
	defer st.Close()

	registry, err := tools.NewRegistry(ds)
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(st, registry, ds, opts.Client, clock.Fixed{Date: opts.Scenario.Today})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator for %s: %w", mode, err)
	}

	cfg := models.RunConfig{MemoryMode: mode, Today: opts.Scenario.Today}
	summary := &Summary{Config: string(mode)}

	for pass := 0; pass < repeat; pass++ {
		session := models.SessionState{}
		for _, step := range opts.Scenario.Steps {
			result := StepResult{StepID: step.ID, Query: step.Query}
			started := time.Now()

			run, err := orch.HandleQuery(ctx, step.Query, opts.UserID, cfg, session)
			result.LatencyMs = time.Since(started).Milliseconds()
			if err != nil {
				// A failed step aborts that run only; the pass continues.
				result.Error = err.Error()
				r.logger.Warn("step failed", "config", string(mode), "step", step.ID, "error", err)
				summary.Runs = append(summary.Runs, result)
				continue
			}

			session = run.Session
			result.RunID = run.ID
			result.ToolCalls = len(run.ToolCalls)
			for _, c := range run.ToolCalls {
				if c.Cached {
					result.CachedToolCalls++
				}
			}
			if run.Eval != nil {
				result.Scores = run.Eval
				result.QuestionLevelAcc = run.Eval.QuestionLevelAcc()
			}
			summary.Runs = append(summary.Runs, result)

			if opts.RunLog != nil {
				if err := opts.RunLog.Append(run); err != nil {
					r.logger.Warn("run log append failed", "error", err)
				}
			}
		}
	}

	summary.Aggregate = aggregate(summary.Runs)
	return summary, nil
}

// aggregate folds step results into the report aggregate.
func aggregate(runs []StepResult) Aggregate {
	agg := Aggregate{}
	var qualitySum float64
	var scored, accurate int
	latencies := make([]int64, 0, len(runs))

	for _, r := range runs {
		agg.ToolCallsTotal += r.ToolCalls
		agg.CachedToolCallsTotal += r.CachedToolCalls
		latencies = append(latencies, r.LatencyMs)
		if r.Scores != nil {
			qualitySum += r.Scores.Quality
			scored++
		}
		if r.QuestionLevelAcc {
			accurate++
		}
	}

	if scored > 0 {
		agg.AvgQuality = qualitySum / float64(scored)
	}
	if len(runs) > 0 {
		agg.QuestionLevelAccRate = float64(accurate) / float64(len(runs))
	}
	agg.P90LatencyMs = P90(latencies)
	return agg
}

// P90 returns the 90th-percentile latency: sorted ascending, index
// floor((n-1)*0.9). Nil for empty input.
func P90(latencies []int64) *int64 {
	if len(latencies) == 0 {
		return nil
	}
	sorted := append([]int64(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Floor(float64(len(sorted)-1) * 0.9))
	return &sorted[idx]
}
