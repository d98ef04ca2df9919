// Package leverage is the memory read path: it turns a stage's input into a
// full-text retrieval query, ranks the hits with a hybrid score, and renders
// the winners as bounded memory cards for prompt injection.
package leverage

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/recall/internal/store"
	"github.com/haasonsaas/recall/pkg/models"
)

// Stage identifies where retrieved cards will be injected.
type Stage string

const (
	StageManagerRoute    Stage = "manager_route"
	StageWorkflowPlan    Stage = "workflow_plan"
	StageInsightGenerate Stage = "insight_generate"
)

// Hybrid score weights and retrieval bounds. These are part of the contract;
// tune deliberately.
const (
	WeightFTS        = 0.55
	WeightRecency    = 0.25
	WeightImportance = 0.15
	WeightUseCount   = 0.05

	// RecencyHalfLifeDays is the e-folding age of the recency signal.
	RecencyHalfLifeDays = 14.0

	// CandidateLimit is how many FTS hits enter hybrid ranking.
	CandidateLimit = 30
	// MaxCards bounds how many cards a stage receives.
	MaxCards = 6
	// MaxCardChars bounds a single rendered card.
	MaxCardChars = 600
	// maxQueryTokens bounds the OR-query width.
	maxQueryTokens = 12
)

// stageKinds restricts which memory kinds each stage retrieves.
var stageKinds = map[Stage][]models.MemoryKind{
	StageManagerRoute: {
		models.KindDomainRule, models.KindQueryPattern, models.KindUserPreference,
	},
	StageWorkflowPlan: {
		models.KindToolTemplate, models.KindQueryPattern, models.KindDomainRule,
		models.KindFailureCase, models.KindUserPreference,
	},
	StageInsightGenerate: {
		models.KindInsightPattern, models.KindUserPreference, models.KindDomainRule,
		models.KindFailureCase, models.KindQueryPattern,
	},
}

// phraseHints are quoted phrases prepended to the retrieval query when the
// input mentions them.
var phraseHints = []string{"last month", "last week", "top products"}

// topProductsHint also matches a count between the words ("top 10 products").
var topProductsHint = regexp.MustCompile(`top (?:\d+ )?products`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "show": true,
	"what": true, "were": true, "last": true, "this": true, "that": true,
	"those": true, "month": true, "week": true, "products": true,
	"product": true, "top": true,
}

var (
	tokenPattern   = regexp.MustCompile(`[a-z0-9_]+`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// Leverager retrieves and ranks memory for injection.
type Leverager struct {
	store  *store.Store
	logger *slog.Logger
}

// New builds a Leverager over the given state store.
func New(st *store.Store) *Leverager {
	return &Leverager{
		store:  st,
		logger: slog.Default().With("component", "leverage"),
	}
}

// BuildQuery lowercases and collapses the input, prepends quoted phrase
// hints, and joins up to maxQueryTokens informative tokens with OR. Falls
// back to the cleaned query (quoted) when nothing survives filtering.
func BuildQuery(input string) string {
	cleaned := whitespaceRuns.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), " ")
	if cleaned == "" {
		return ""
	}

	var parts []string
	for _, hint := range phraseHints {
		matched := strings.Contains(cleaned, hint)
		if hint == "top products" {
			matched = topProductsHint.MatchString(cleaned)
		}
		if matched {
			parts = append(parts, `"`+hint+`"`)
		}
	}

	seen := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(cleaned, -1) {
		if len(tok) < 3 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		parts = append(parts, tok)
		if len(seen) >= maxQueryTokens {
			break
		}
	}

	if len(parts) == 0 {
		return `"` + strings.ReplaceAll(cleaned, `"`, " ") + `"`
	}
	return strings.Join(parts, " OR ")
}

// Score combines the retrieval signals into the hybrid ranking score.
func Score(ftsRank, recency, importance float64, useCount int) float64 {
	return WeightFTS*ftsRank +
		WeightRecency*recency +
		WeightImportance*importance +
		WeightUseCount*math.Log1p(float64(useCount))
}

// Recency maps a lastUsedAt timestamp to exp(-age/14d). Missing or
// unparseable timestamps are treated as exactly 14 days old.
func Recency(lastUsedAt, nowIso string) float64 {
	ageDays := RecencyHalfLifeDays
	if lastUsedAt != "" {
		last, errLast := time.Parse(time.RFC3339, lastUsedAt)
		now, errNow := time.Parse(time.RFC3339, nowIso)
		if errLast == nil && errNow == nil {
			ageDays = now.Sub(last).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
		}
	}
	return math.Exp(-ageDays / RecencyHalfLifeDays)
}

// Retrieve returns up to MaxCards ranked memory cards for the stage. The
// returned items are marked used before the cards are handed out, so
// useCount reflects intent-to-use.
func (l *Leverager) Retrieve(stage Stage, input string, scopes []string, nowIso string) ([]models.MemoryCard, error) {
	query := BuildQuery(input)
	if query == "" {
		return nil, nil
	}

	hits, err := l.store.SearchMemory(store.SearchQuery{
		Query:  query,
		Scopes: scopes,
		Kinds:  stageKinds[stage],
		Limit:  CandidateLimit,
		NowISO: nowIso,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve stage %s: %w", stage, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	type ranked struct {
		hit   models.MemoryHit
		score float64
	}
	rankedHits := make([]ranked, 0, len(hits))
	for _, h := range hits {
		score := Score(h.FTSRank, Recency(h.Item.LastUsedAt, nowIso), h.Item.Importance, h.Item.UseCount)
		rankedHits = append(rankedHits, ranked{hit: h, score: score})
	}
	sort.SliceStable(rankedHits, func(i, j int) bool {
		return rankedHits[i].score > rankedHits[j].score
	})
	if len(rankedHits) > MaxCards {
		rankedHits = rankedHits[:MaxCards]
	}

	ids := make([]string, 0, len(rankedHits))
	for _, r := range rankedHits {
		ids = append(ids, r.hit.Item.ID)
	}
	if err := l.store.MarkMemoryUsed(ids, nowIso); err != nil {
		return nil, fmt.Errorf("mark used for stage %s: %w", stage, err)
	}

	cards := make([]models.MemoryCard, 0, len(rankedHits))
	for _, r := range rankedHits {
		cards = append(cards, models.MemoryCard{
			ID:    r.hit.Item.ID,
			Kind:  r.hit.Item.Kind,
			Scope: r.hit.Item.Scope,
			Text:  RenderCard(r.hit.Item, r.score),
			Score: r.score,
		})
	}
	l.logger.Debug("memory retrieved", "stage", string(stage), "cards", len(cards))
	return cards, nil
}

// RenderCard formats one memory item as a three-line card bounded at
// MaxCardChars characters.
func RenderCard(item models.MemoryItem, score float64) string {
	body := whitespaceRuns.ReplaceAllString(strings.TrimSpace(item.Text), " ")
	last := "never"
	if len(item.LastUsedAt) >= 10 {
		last = item.LastUsedAt[:10]
	}
	card := fmt.Sprintf("MEMORY CARD [%s] (%s)\n%s\nSignals: q=%.2f imp=%.2f used=%d last=%s",
		item.Kind, item.Scope, body, item.Quality, item.Importance, item.UseCount, last)

	runes := []rune(card)
	if len(runes) > MaxCardChars {
		card = string(runes[:MaxCardChars-1]) + "…"
	}
	return card
}
