package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ScriptedClient replays a fixed sequence of responses. When the script is
// exhausted it keeps returning the last entry.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     []Request
}

// NewScriptedClient builds a client that answers with the given texts in
// order.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Complete pops the next scripted response.
func (c *ScriptedClient) Complete(_ context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return nil, ErrNotConfigured
	}
	idx := len(c.calls) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return &Response{Text: c.responses[idx], LatencyMs: 1}, nil
}

// Calls returns the requests seen so far.
func (c *ScriptedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.calls...)
}

// ConfusedClient is the "baseline-confused" planner used to demonstrate the
// memory effect: it plans top_products with the wrong metric (units) unless
// a memory card is present in the prompt, in which case it plans correctly
// with sales. It is a testing affordance and lives strictly behind the
// Client boundary.
type ConfusedClient struct {
	StartDate string
	EndDate   string
	Limit     int
}

// Complete emits a single-step top_products plan.
func (c *ConfusedClient) Complete(_ context.Context, req Request) (*Response, error) {
	metric := "units"
	if sawMemoryCard(req) {
		metric = "sales"
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 10
	}
	plan := fmt.Sprintf(`{
  "route": "data_presenter",
  "timeRange": {"startDate": %q, "endDate": %q},
  "steps": [
    {"tool": "top_products", "args": {"metric": %q, "startDate": %q, "endDate": %q, "limit": %d}}
  ]
}`, c.StartDate, c.EndDate, metric, c.StartDate, c.EndDate, limit)
	return &Response{Text: plan, LatencyMs: 1}, nil
}

func sawMemoryCard(req Request) bool {
	if strings.Contains(req.Instructions, "MEMORY CARD") {
		return true
	}
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "MEMORY CARD") {
			return true
		}
	}
	return false
}
