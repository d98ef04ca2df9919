// Package manager gates queries into the analytics domain and picks the
// worker route. The keyword heuristic decides on its own today; the LLM
// branch exists for future routers that may declare the heuristic
// non-confident.
package manager

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/haasonsaas/recall/internal/llm"
	"github.com/haasonsaas/recall/pkg/models"
)

// Decision is the manager's verdict on a query.
type Decision struct {
	OOD    bool         `json:"ood"`
	Route  models.Route `json:"route,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Vocabulary that marks a query as in-domain.
var analyticsTerms = []string{
	"sales", "revenue", "units", "sessions", "traffic", "conversion",
	"benchmark", "top ", "month", "week", "yoy", "mom", "wow",
}

// Topics the assistant refuses outright.
var blacklistTerms = []string{
	"weather", "recipe", "love", "movie", "music", "politics", "medical",
}

// Terms that suggest the user wants analysis rather than a readout.
var insightTerms = []string{
	"why", "perform", "benchmark", "recommend", "improve", "diagnostic",
	"compare", "insight",
}

// Manager classifies queries.
type Manager struct {
	client llm.Client
	logger *slog.Logger
}

// New builds a manager. client is only consulted when the heuristic is not
// confident, which the current heuristic never declares.
func New(client llm.Client) *Manager {
	return &Manager{
		client: client,
		logger: slog.Default().With("component", "manager"),
	}
}

// Route classifies the query, optionally conditioned on memory cards.
func (m *Manager) Route(ctx context.Context, query string, cards []models.MemoryCard) (Decision, error) {
	decision, confident := heuristicRoute(query)
	if confident {
		return decision, nil
	}
	return m.llmRoute(ctx, query, cards, decision)
}

// heuristicRoute is the keyword classifier. The second return reports
// confidence; it is always true in this design.
func heuristicRoute(query string) (Decision, bool) {
	q := strings.ToLower(query)

	for _, term := range blacklistTerms {
		if strings.Contains(q, term) {
			return Decision{OOD: true, Reason: "off-topic subject: " + term}, true
		}
	}

	inDomain := false
	for _, term := range analyticsTerms {
		if strings.Contains(q, term) {
			inDomain = true
			break
		}
	}
	if !inDomain {
		return Decision{OOD: true, Reason: "no analytics vocabulary"}, true
	}

	for _, term := range insightTerms {
		if strings.Contains(q, term) {
			return Decision{Route: models.RouteInsightGenerator, Reason: "diagnostic vocabulary: " + term}, true
		}
	}
	return Decision{Route: models.RouteDataPresenter, Reason: "presentational query"}, true
}

// llmRoute asks the LLM for {ood, route, reason}; any parse failure falls
// back to the heuristic decision.
func (m *Manager) llmRoute(ctx context.Context, query string, cards []models.MemoryCard, fallback Decision) (Decision, error) {
	if m.client == nil {
		return fallback, nil
	}

	var b strings.Builder
	b.WriteString("Classify the seller-analytics query. Respond with JSON only: ")
	b.WriteString(`{"ood": bool, "route": "data_presenter"|"insight_generator", "reason": string}.`)
	if len(cards) > 0 {
		b.WriteString("\n\nRelevant memory:\n")
		for _, card := range cards {
			b.WriteString(card.Text)
			b.WriteString("\n\n")
		}
	}

	resp, err := m.client.Complete(ctx, llm.Request{
		Instructions: b.String(),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: query}},
		Temperature:  0,
	})
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(resp.Text)), &decision); jsonErr != nil {
		m.logger.Warn("router response unparseable, using heuristic", "error", jsonErr)
		return fallback, nil
	}
	if !decision.OOD && decision.Route != models.RouteDataPresenter && decision.Route != models.RouteInsightGenerator {
		return fallback, nil
	}
	return decision, nil
}
