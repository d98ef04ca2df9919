package store

import (
	"testing"

	"github.com/haasonsaas/recall/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const testNow = "2026-02-04T12:00:00Z"

func TestUpsertMemoryItem(t *testing.T) {
	s := newTestStore(t)

	t.Run("dedupe collapses equal items and preserves id", func(t *testing.T) {
		first, err := s.UpsertMemoryItem(models.MemoryUpsert{
			Scope: "global", Kind: models.KindDomainRule,
			Text: "Weeks are Mon–Sun.", Importance: 0.5,
		}, testNow)
		if err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		// Same kind and normalized text: extra whitespace and case changes
		// must land on the same row.
		second, err := s.UpsertMemoryItem(models.MemoryUpsert{
			Scope: "global", Kind: models.KindDomainRule,
			Text: "  weeks  are mon–sun. ", Importance: 0.7,
		}, "2026-02-05T12:00:00Z")
		if err != nil {
			t.Fatalf("second upsert: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("id changed on dedupe: %s vs %s", second.ID, first.ID)
		}
		if second.UseCount != first.UseCount+1 {
			t.Errorf("useCount = %d, want %d", second.UseCount, first.UseCount+1)
		}
		if second.CreatedAt != first.CreatedAt {
			t.Errorf("createdAt changed on dedupe")
		}

		stats, err := s.MemoryStats()
		if err != nil {
			t.Fatalf("MemoryStats: %v", err)
		}
		if len(stats) != 1 || stats[0].Count != 1 {
			t.Errorf("stats = %+v, want one row with count 1", stats)
		}
	})

	t.Run("different scopes do not collide", func(t *testing.T) {
		_, err := s.UpsertMemoryItem(models.MemoryUpsert{
			Scope: models.UserScope("demo"), Kind: models.KindDomainRule,
			Text: "Weeks are Mon–Sun.",
		}, testNow)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		stats, _ := s.MemoryStats()
		if len(stats) != 2 {
			t.Errorf("stats = %+v, want 2 rows", stats)
		}
	})

	t.Run("text is redacted before storage", func(t *testing.T) {
		item, err := s.UpsertMemoryItem(models.MemoryUpsert{
			Scope: "global", Kind: models.KindUserPreference,
			Text: "user buyer@example.com prefers weekly digests",
		}, testNow)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if item.Text != "user [REDACTED_EMAIL] prefers weekly digests" {
			t.Errorf("text = %q, redaction missing", item.Text)
		}
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		if _, err := s.UpsertMemoryItem(models.MemoryUpsert{Scope: "global"}, testNow); err == nil {
			t.Error("expected error for empty kind/text")
		}
	})
}

func TestSearchMemory(t *testing.T) {
	s := newTestStore(t)
	seed := []models.MemoryUpsert{
		{Scope: "global", Kind: models.KindDomainRule, Text: "Last month refers to the previous calendar month.", Importance: 0.6},
		{Scope: "global", Kind: models.KindQueryPattern, Text: "top products by sales maps to the top_products tool", Importance: 0.4},
		{Scope: models.UserScope("demo"), Kind: models.KindUserPreference, Text: "prefers sales reported in dollars"},
	}
	for _, in := range seed {
		if _, err := s.UpsertMemoryItem(in, testNow); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}

	t.Run("phrase match with scope filter", func(t *testing.T) {
		hits, err := s.SearchMemory(SearchQuery{
			Query:  `"last month"`,
			Scopes: []string{"global"},
			Limit:  10,
			NowISO: testNow,
		})
		if err != nil {
			t.Fatalf("SearchMemory: %v", err)
		}
		if len(hits) != 1 {
			t.Fatalf("hits = %d, want 1", len(hits))
		}
		if hits[0].Item.Kind != models.KindDomainRule {
			t.Errorf("kind = %s", hits[0].Item.Kind)
		}
		if hits[0].FTSRank <= 0 || hits[0].FTSRank > 1 {
			t.Errorf("ftsRank = %f, want (0,1]", hits[0].FTSRank)
		}
	})

	t.Run("OR query spans items", func(t *testing.T) {
		hits, err := s.SearchMemory(SearchQuery{
			Query:  "sales OR month",
			Scopes: []string{"global", models.UserScope("demo")},
			Limit:  10,
			NowISO: testNow,
		})
		if err != nil {
			t.Fatalf("SearchMemory: %v", err)
		}
		if len(hits) != 3 {
			t.Errorf("hits = %d, want 3", len(hits))
		}
	})

	t.Run("kind filter", func(t *testing.T) {
		hits, err := s.SearchMemory(SearchQuery{
			Query:  "sales OR month",
			Scopes: []string{"global"},
			Kinds:  []models.MemoryKind{models.KindQueryPattern},
			Limit:  10,
			NowISO: testNow,
		})
		if err != nil {
			t.Fatalf("SearchMemory: %v", err)
		}
		if len(hits) != 1 || hits[0].Item.Kind != models.KindQueryPattern {
			t.Errorf("hits = %+v", hits)
		}
	})

	t.Run("scope excludes other users", func(t *testing.T) {
		hits, err := s.SearchMemory(SearchQuery{
			Query:  "sales",
			Scopes: []string{models.UserScope("other")},
			Limit:  10,
			NowISO: testNow,
		})
		if err != nil {
			t.Fatalf("SearchMemory: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("hits = %d, want 0", len(hits))
		}
	})

	t.Run("empty query returns nothing", func(t *testing.T) {
		hits, err := s.SearchMemory(SearchQuery{Query: " ", Scopes: []string{"global"}, NowISO: testNow})
		if err != nil || hits != nil {
			t.Errorf("hits = %v, err = %v", hits, err)
		}
	})
}

func TestExpiry(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertMemoryItem(models.MemoryUpsert{
		Scope: "global", Kind: models.KindFailureCase,
		Text:      "stale failure about conversion dips",
		ExpiresAt: "2026-02-01T00:00:00Z",
	}, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	t.Run("expired items never surface in search", func(t *testing.T) {
		hits, err := s.SearchMemory(SearchQuery{
			Query: "conversion", Scopes: []string{"global"}, Limit: 10, NowISO: testNow,
		})
		if err != nil {
			t.Fatalf("SearchMemory: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("expired item surfaced: %+v", hits)
		}
	})

	t.Run("unexpired items still surface", func(t *testing.T) {
		hits, err := s.SearchMemory(SearchQuery{
			Query: "conversion", Scopes: []string{"global"}, Limit: 10,
			NowISO: "2026-01-15T00:00:00Z",
		})
		if err != nil {
			t.Fatalf("SearchMemory: %v", err)
		}
		if len(hits) != 1 {
			t.Errorf("hits = %d, want 1", len(hits))
		}
	})

	t.Run("maintenance removes expired rows", func(t *testing.T) {
		expired, err := s.Maintenance(testNow)
		if err != nil {
			t.Fatalf("Maintenance: %v", err)
		}
		if expired != 1 {
			t.Errorf("expired = %d, want 1", expired)
		}
		stats, _ := s.MemoryStats()
		if len(stats) != 0 {
			t.Errorf("stats = %+v, want empty", stats)
		}
		// Second sweep finds nothing.
		expired, err = s.Maintenance(testNow)
		if err != nil || expired != 0 {
			t.Errorf("second sweep expired = %d err = %v", expired, err)
		}
	})
}

func TestMarkMemoryUsed(t *testing.T) {
	s := newTestStore(t)
	item, err := s.UpsertMemoryItem(models.MemoryUpsert{
		Scope: "global", Kind: models.KindDomainRule, Text: "benchmark averages are per category",
	}, testNow)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Duplicate ids in the batch count once.
	if err := s.MarkMemoryUsed([]string{item.ID, item.ID}, "2026-02-05T00:00:00Z"); err != nil {
		t.Fatalf("MarkMemoryUsed: %v", err)
	}

	hits, err := s.SearchMemory(SearchQuery{
		Query: "benchmark", Scopes: []string{"global"}, Limit: 10, NowISO: testNow,
	})
	if err != nil || len(hits) != 1 {
		t.Fatalf("hits = %v, err = %v", hits, err)
	}
	if hits[0].Item.UseCount != 1 {
		t.Errorf("useCount = %d, want 1", hits[0].Item.UseCount)
	}
	if hits[0].Item.LastUsedAt != "2026-02-05T00:00:00Z" {
		t.Errorf("lastUsedAt = %q", hits[0].Item.LastUsedAt)
	}
}

func TestToolCache(t *testing.T) {
	s := newTestStore(t)
	result := map[string]any{"rows": []any{map[string]any{"productId": "P001", "metricValue": 1234.5}}}
	args := map[string]any{"metric": "sales", "limit": float64(10)}

	t.Run("round trip", func(t *testing.T) {
		if err := s.SetToolCache("top_products", "top_products:abc", args, result, testNow); err != nil {
			t.Fatalf("SetToolCache: %v", err)
		}
		createdAt, got, err := s.GetToolCache("top_products:abc")
		if err != nil {
			t.Fatalf("GetToolCache: %v", err)
		}
		if createdAt != testNow {
			t.Errorf("createdAt = %q", createdAt)
		}
		obj, ok := got.(map[string]any)
		if !ok {
			t.Fatalf("result type %T", got)
		}
		rows := obj["rows"].([]any)
		first := rows[0].(map[string]any)
		if first["productId"] != "P001" || first["metricValue"] != 1234.5 {
			t.Errorf("round trip mismatch: %+v", first)
		}
	})

	t.Run("upsert on conflict", func(t *testing.T) {
		updated := map[string]any{"rows": []any{}}
		if err := s.SetToolCache("top_products", "top_products:abc", args, updated, "2026-02-05T00:00:00Z"); err != nil {
			t.Fatalf("SetToolCache: %v", err)
		}
		createdAt, got, err := s.GetToolCache("top_products:abc")
		if err != nil {
			t.Fatalf("GetToolCache: %v", err)
		}
		if createdAt != "2026-02-05T00:00:00Z" {
			t.Errorf("createdAt = %q, want updated", createdAt)
		}
		if rows := got.(map[string]any)["rows"].([]any); len(rows) != 0 {
			t.Errorf("rows = %v, want empty", rows)
		}
	})

	t.Run("miss", func(t *testing.T) {
		if _, _, err := s.GetToolCache("nope:123"); err != ErrNotFound {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestInsertRun(t *testing.T) {
	s := newTestStore(t)
	run := &models.RunResult{
		ID:             NewID(),
		CreatedAt:      testNow,
		UserID:         "demo",
		Config:         models.RunConfig{MemoryMode: models.ModeReadWrite, Today: "2026-02-04"},
		Query:          "top 10 products last month",
		AugmentedQuery: "top 10 products last month (today: 2026-02-04)",
		Route:          models.RouteDataPresenter,
		Plan: &models.Plan{
			Route: models.RouteDataPresenter,
			Steps: []models.PlanStep{{Tool: "top_products", Args: map[string]any{"metric": "sales"}}},
		},
		Response:  "1. Orbit Wireless Earbuds",
		Latencies: map[string]int64{"manager_route_ms": 2},
	}
	if err := s.InsertRun(run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	t.Run("duplicate id rejected", func(t *testing.T) {
		if err := s.InsertRun(run); err == nil {
			t.Error("expected primary-key violation on duplicate run id")
		}
	})

	t.Run("ood run with no plan", func(t *testing.T) {
		ood := &models.RunResult{
			ID:        NewID(),
			CreatedAt: testNow,
			UserID:    "demo",
			Config:    models.RunConfig{MemoryMode: models.ModeBaseline},
			Query:     "what's the weather",
			OOD:       true,
			Response:  "Out of scope",
		}
		if err := s.InsertRun(ood); err != nil {
			t.Fatalf("InsertRun ood: %v", err)
		}
	})
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("ids must be unique")
	}
	// UUIDv7 ids are time-ordered; two ids minted in sequence sort.
	if !(a < b) {
		t.Errorf("ids not time-sortable: %s !< %s", a, b)
	}
}
