// Package models defines the core data types for recall.
package models

// MemoryKind classifies the intent of a stored memory item.
type MemoryKind string

const (
	// KindToolTemplate captures a literal tool invocation that worked well.
	KindToolTemplate MemoryKind = "tool_template"
	// KindQueryPattern captures a canonicalized query shape and its route.
	KindQueryPattern MemoryKind = "query_pattern"
	// KindDomainRule captures a standing rule about the analytics domain.
	KindDomainRule MemoryKind = "domain_rule"
	// KindInsightPattern captures a narrative structure that scored well.
	KindInsightPattern MemoryKind = "insight_pattern"
	// KindFailureCase captures a low-scoring run and why it failed.
	KindFailureCase MemoryKind = "failure_case"
	// KindUserPreference captures a durable per-user preference.
	KindUserPreference MemoryKind = "user_preference"
)

// ScopeGlobal is the memory scope shared by all users.
const ScopeGlobal = "global"

// UserScope returns the per-user memory scope string.
func UserScope(userID string) string {
	return "user:" + userID
}

// MemoryItem is a single stored memory.
//
// Timestamps are ISO-8601 strings; ExpiresAt is empty when the item never
// expires. Scope is a plain string ("global" or "user:<id>"); callers only
// ever compare for equality.
type MemoryItem struct {
	ID         string         `json:"id"`
	Scope      string         `json:"scope"`
	Kind       MemoryKind     `json:"kind"`
	Text       string         `json:"text"`
	Meta       map[string]any `json:"meta,omitempty"`
	DedupeKey  string         `json:"dedupeKey"`
	CreatedAt  string         `json:"createdAt"`
	LastUsedAt string         `json:"lastUsedAt,omitempty"`
	UseCount   int            `json:"useCount"`
	Importance float64        `json:"importance"`
	Quality    float64        `json:"quality"`
	ExpiresAt  string         `json:"expiresAt,omitempty"`
}

// MemoryUpsert is the input to store.Store.UpsertMemoryItem. DedupeKey is
// computed from (kind, text) when empty.
type MemoryUpsert struct {
	Scope      string         `json:"scope"`
	Kind       MemoryKind     `json:"kind"`
	Text       string         `json:"text"`
	Meta       map[string]any `json:"meta,omitempty"`
	DedupeKey  string         `json:"dedupeKey,omitempty"`
	Importance float64        `json:"importance"`
	Quality    float64        `json:"quality"`
	ExpiresAt  string         `json:"expiresAt,omitempty"`
}

// MemoryHit is one full-text search result.
type MemoryHit struct {
	Item MemoryItem `json:"item"`
	// BM25 is the raw value reported by the FTS engine (lower is better).
	BM25 float64 `json:"bm25"`
	// FTSRank is BM25 normalized into (0,1].
	FTSRank float64 `json:"ftsRank"`
}

// MemoryCard is a bounded rendering of a memory item plus its ranking
// signals, ready for prompt injection.
type MemoryCard struct {
	ID    string     `json:"id"`
	Kind  MemoryKind `json:"kind"`
	Scope string     `json:"scope"`
	Text  string     `json:"text"`
	Score float64    `json:"score"`
}

// MemoryStat is a per-(scope, kind) item count.
type MemoryStat struct {
	Scope string     `json:"scope"`
	Kind  MemoryKind `json:"kind"`
	Count int        `json:"count"`
}
