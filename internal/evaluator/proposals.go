package evaluator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/recall/pkg/models"
)

// Importance assigned to each proposal kind.
const (
	importanceQueryPattern  = 0.35
	importanceToolTemplate  = 0.45
	importanceFailureCase   = 0.4
	importanceLowConfidence = 0.2
)

var (
	isoDateToken   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	numberToken    = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// CanonicalQuery normalizes a query for pattern memory: lowercased, ISO
// dates replaced with <date>, remaining numbers with <n>, whitespace
// collapsed.
func CanonicalQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = isoDateToken.ReplaceAllString(q, "<date>")
	q = numberToken.ReplaceAllString(q, "<n>")
	return whitespaceRuns.ReplaceAllString(q, " ")
}

// ProposeWrites turns a scored run into memory-write proposals for the
// user's scope. All proposals flow through the store's upsert, so repeats
// dedupe automatically.
func (e *Evaluator) ProposeWrites(scores *models.Scores, userID, query string, plan *models.Plan, calls []models.ToolCallRecord) []models.MemoryUpsert {
	if scores == nil {
		return nil
	}
	scope := models.UserScope(userID)
	canon := CanonicalQuery(query)

	var route models.Route
	toolNames := make([]string, 0, len(calls))
	for _, c := range calls {
		toolNames = append(toolNames, c.Tool)
	}
	if plan != nil {
		route = plan.Route
	}

	switch {
	case scores.Quality >= GoodQuality:
		proposals := []models.MemoryUpsert{{
			Scope: scope,
			Kind:  models.KindQueryPattern,
			Text: fmt.Sprintf("Query pattern %q routes to %s and plans [%s].",
				canon, route, strings.Join(toolNames, ", ")),
			Meta:       map[string]any{"route": string(route), "quality": scores.Quality},
			Importance: importanceQueryPattern,
			Quality:    scores.Quality,
		}}
		if call := firstCall(calls, "top_products"); call != nil {
			argsJSON, err := json.Marshal(call.Args)
			if err == nil {
				proposals = append(proposals, models.MemoryUpsert{
					Scope: scope,
					Kind:  models.KindToolTemplate,
					Text: fmt.Sprintf("For %q call top_products with args %s.",
						canon, string(argsJSON)),
					Meta:       map[string]any{"tool": "top_products", "args": call.Args},
					Importance: importanceToolTemplate,
					Quality:    scores.Quality,
				})
			}
		}
		return proposals

	case scores.Quality <= BadQuality:
		text := fmt.Sprintf("Low-quality run for %q", canon)
		if len(scores.Notes) > 0 {
			text += ": " + strings.Join(scores.Notes, "; ")
		}
		return []models.MemoryUpsert{{
			Scope: scope,
			Kind:  models.KindFailureCase,
			Text:  text,
			Meta: map[string]any{
				"plan":      plan,
				"toolCalls": toolNames,
				"quality":   scores.Quality,
			},
			Importance: importanceFailureCase,
			Quality:    scores.Quality,
		}}

	default:
		return []models.MemoryUpsert{{
			Scope: scope,
			Kind:  models.KindQueryPattern,
			Text: fmt.Sprintf("Query pattern %q routed to %s with mixed results (quality %.2f).",
				canon, route, scores.Quality),
			Meta:       map[string]any{"route": string(route), "quality": scores.Quality},
			Importance: importanceLowConfidence,
			Quality:    scores.Quality,
		}}
	}
}
