package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/recall/pkg/models"
)

const (
	defaultHeuristicLimit = 10
	wowCompareLimit       = 50
	listFallbackLimit     = 20
)

var (
	topNPattern        = regexp.MustCompile(`\btop\s+(\d+)\b`)
	topProductsPattern = regexp.MustCompile(`\btop\b.*\bproducts?\b`)
	whyDropWowPattern  = regexp.MustCompile(`\bwhy\b.*\bdrop\w*\b.*\bwow\b`)
)

// HeuristicPlan builds a deterministic rule-based plan when no LLM is
// available or its output does not validate.
func HeuristicPlan(in Input) *models.Plan {
	q := strings.ToLower(in.Query)
	metric := detectMetric(q)
	limit := detectLimit(q)
	timeRange := detectRange(q, in.TimeContext)

	switch {
	case strings.Contains(q, "those products") && len(in.Session.SelectedProductIDs) > 0:
		ids := make([]any, 0, len(in.Session.SelectedProductIDs))
		for _, id := range in.Session.SelectedProductIDs {
			ids = append(ids, id)
		}
		return &models.Plan{
			Route:     in.Route,
			TimeRange: &timeRange,
			Steps: []models.PlanStep{{
				Tool: "timeseries",
				Args: map[string]any{
					"metric":     metric,
					"productIds": ids,
					"startDate":  timeRange.StartDate,
					"endDate":    timeRange.EndDate,
					"grain":      "day",
				},
			}},
			Notes: "heuristic: timeseries over selected products",
		}

	case whyDropWowPattern.MatchString(q):
		thisWeek := in.TimeContext.ThisWeek()
		lastWeek := in.TimeContext.LastWeek()
		var steps []models.PlanStep
		for _, m := range []string{"sales", "sessions", "units"} {
			for _, r := range []models.DateRange{thisWeek, lastWeek} {
				steps = append(steps, models.PlanStep{
					Tool: "top_products",
					Args: map[string]any{
						"metric":    m,
						"startDate": r.StartDate,
						"endDate":   r.EndDate,
						"limit":     wowCompareLimit,
					},
				})
			}
		}
		return &models.Plan{
			Route:     in.Route,
			TimeRange: &thisWeek,
			Steps:     steps,
			Notes:     "heuristic: week-over-week comparison across sales, sessions, units",
		}

	case topProductsPattern.MatchString(q):
		return &models.Plan{
			Route:     in.Route,
			TimeRange: &timeRange,
			Steps: []models.PlanStep{{
				Tool: "top_products",
				Args: map[string]any{
					"metric":    metric,
					"startDate": timeRange.StartDate,
					"endDate":   timeRange.EndDate,
					"limit":     limit,
				},
			}},
			Notes: "heuristic: top products",
		}

	default:
		return &models.Plan{
			Route: in.Route,
			Steps: []models.PlanStep{{
				Tool: "list_products",
				Args: map[string]any{"limit": listFallbackLimit},
			}},
			Notes: "heuristic: catalog listing",
		}
	}
}

func detectMetric(q string) string {
	switch {
	case strings.Contains(q, "traffic") || strings.Contains(q, "session"):
		return "sessions"
	case strings.Contains(q, "units"):
		return "units"
	case strings.Contains(q, "conversion"):
		return "conversion_rate"
	default:
		return "sales"
	}
}

func detectLimit(q string) int {
	m := topNPattern.FindStringSubmatch(q)
	if m == nil {
		return defaultHeuristicLimit
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return defaultHeuristicLimit
	}
	if n > 100 {
		return 100
	}
	return n
}

func detectRange(q string, tc models.TimeContext) models.DateRange {
	switch {
	case strings.Contains(q, "this week"):
		return tc.ThisWeek()
	case strings.Contains(q, "last week"):
		return tc.LastWeek()
	case strings.Contains(q, "this month"):
		return tc.ThisMonth()
	default:
		return tc.LastMonth()
	}
}
