// Package executor runs validated plans step by step, consulting the
// signature-keyed tool cache when caching is enabled.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/recall/internal/signature"
	"github.com/haasonsaas/recall/internal/store"
	"github.com/haasonsaas/recall/internal/tools"
	"github.com/haasonsaas/recall/pkg/models"
)

// Executor executes plan steps in order, never parallelizing.
type Executor struct {
	registry *tools.Registry
	store    *store.Store
	logger   *slog.Logger
}

// New builds an executor over the registry and state store.
func New(registry *tools.Registry, st *store.Store) *Executor {
	return &Executor{
		registry: registry,
		store:    st,
		logger:   slog.Default().With("component", "executor"),
	}
}

// Execute runs at most models.MaxPlanSteps steps of the plan. The returned
// map collapses results by tool name, last call wins; renderers key off it.
// A step error aborts the run.
func (e *Executor) Execute(ctx context.Context, plan *models.Plan, useCache bool) ([]models.ToolCallRecord, map[string]any, error) {
	steps := plan.Steps
	if len(steps) > models.MaxPlanSteps {
		steps = steps[:models.MaxPlanSteps]
	}

	records := make([]models.ToolCallRecord, 0, len(steps))
	byTool := make(map[string]any, len(steps))

	for i, step := range steps {
		sig, err := signature.Compute(signature.ToolCacheNamespace, step.Tool, step.Args)
		if err != nil {
			return nil, nil, fmt.Errorf("step %d: %w", i, err)
		}

		started := time.Now()
		record := models.ToolCallRecord{
			Tool:      step.Tool,
			Args:      step.Args,
			Signature: sig,
			StartedAt: started.UTC().Format(time.RFC3339),
		}

		var result any
		if useCache {
			if _, cached, err := e.store.GetToolCache(sig); err == nil {
				result = cached
				record.Cached = true
				e.logger.Debug("tool cache hit", "tool", step.Tool, "signature", sig)
			} else if err != store.ErrNotFound {
				return nil, nil, fmt.Errorf("step %d cache lookup: %w", i, err)
			}
		}

		if !record.Cached {
			result, err = e.registry.Execute(ctx, step.Tool, step.Args)
			if err != nil {
				return nil, nil, fmt.Errorf("step %d: %w", i, err)
			}
			if useCache {
				if err := e.store.SetToolCache(step.Tool, sig, step.Args, result, store.NowISO()); err != nil {
					return nil, nil, fmt.Errorf("step %d cache write: %w", i, err)
				}
			}
		}

		record.DurationMs = time.Since(started).Milliseconds()
		record.Result = result
		records = append(records, record)
		byTool[step.Tool] = result
	}

	return records, byTool, nil
}
