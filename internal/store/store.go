// Package store persists runs, memory items, the full-text index, and the
// tool-result cache in a single embedded SQLite database.
//
// Single-writer: one process owns a store file. Each method is individually
// atomic via the engine's transactions.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/recall/internal/redact"
	"github.com/haasonsaas/recall/pkg/models"
)

// MaxSearchLimit caps searchMemory result sets.
const MaxSearchLimit = 50

// dedupeTextCap bounds how much of the normalized text feeds the dedupe key.
const dedupeTextCap = 256

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store is the embedded state store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// The embedded engine serializes writes; a single connection avoids
	// table-lock races between the FTS index and its base table.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			user_id TEXT NOT NULL,
			config_json TEXT NOT NULL,
			query TEXT NOT NULL,
			augmented_query TEXT NOT NULL,
			route TEXT,
			ood INTEGER NOT NULL DEFAULT 0,
			plan_json TEXT,
			tool_calls_json TEXT,
			response TEXT,
			eval_json TEXT,
			latencies_json TEXT,
			memory_injected_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			meta_json TEXT,
			dedupe_key TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_used_at TEXT,
			use_count INTEGER NOT NULL DEFAULT 0,
			importance REAL NOT NULL DEFAULT 0,
			quality REAL NOT NULL DEFAULT 0,
			expires_at TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memory_dedupe
			ON memory_items(scope, kind, dedupe_key)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts
			USING fts5(id UNINDEXED, text, kind, scope)`,
		`CREATE TABLE IF NOT EXISTS tool_cache (
			signature TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			tool TEXT NOT NULL,
			args_json TEXT NOT NULL,
			result_json TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewID returns a time-sortable unique id (UUIDv7).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NowISO is the store's timestamp format: RFC 3339 UTC.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// InsertRun appends a run record. Runs are never mutated.
func (s *Store) InsertRun(run *models.RunResult) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	planJSON, err := marshalNullable(run.Plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	toolCallsJSON, err := marshalNullable(run.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	evalJSON, err := marshalNullable(run.Eval)
	if err != nil {
		return fmt.Errorf("encode eval: %w", err)
	}
	latenciesJSON, err := marshalNullable(run.Latencies)
	if err != nil {
		return fmt.Errorf("encode latencies: %w", err)
	}
	memoryJSON, err := marshalNullable(run.MemoryInjected)
	if err != nil {
		return fmt.Errorf("encode injected memory: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO runs
		(id, created_at, user_id, config_json, query, augmented_query, route, ood,
		 plan_json, tool_calls_json, response, eval_json, latencies_json, memory_injected_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.UserID, string(configJSON),
		run.Query, run.AugmentedQuery, nullString(string(run.Route)), boolInt(run.OOD),
		planJSON, toolCallsJSON, run.Response, evalJSON, latenciesJSON, memoryJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// DedupeKey computes the canonical duplicate key for a memory item:
// sha256 over kind plus the lowercased, whitespace-collapsed, length-capped
// text.
func DedupeKey(kind models.MemoryKind, text string) string {
	norm := normalizeDedupeText(text)
	sum := sha256.Sum256([]byte(string(kind) + norm))
	return hex.EncodeToString(sum[:])
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeDedupeText(text string) string {
	norm := strings.TrimSpace(strings.ToLower(text))
	norm = whitespaceRun.ReplaceAllString(norm, " ")
	if len(norm) > dedupeTextCap {
		norm = norm[:dedupeTextCap]
	}
	return norm
}

// UpsertMemoryItem inserts a memory item or, when a row already exists at
// (scope, kind, dedupeKey), updates it in place: the existing id is kept,
// usage counters bump, and the FTS entry is replaced. Text is PII-redacted before
// storage.
func (s *Store) UpsertMemoryItem(in models.MemoryUpsert, nowIso string) (*models.MemoryItem, error) {
	if in.Scope == "" || in.Kind == "" || strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("upsert memory: scope, kind, and text are required")
	}
	text := redact.Text(in.Text)
	dedupeKey := in.DedupeKey
	if dedupeKey == "" {
		dedupeKey = DedupeKey(in.Kind, text)
	}
	metaJSON, err := marshalNullable(in.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode memory meta: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer rollback(tx)

	item := &models.MemoryItem{
		Scope:      in.Scope,
		Kind:       in.Kind,
		Text:       text,
		Meta:       in.Meta,
		DedupeKey:  dedupeKey,
		Importance: in.Importance,
		Quality:    in.Quality,
		ExpiresAt:  in.ExpiresAt,
	}

	var existingID, createdAt string
	var useCount int
	err = tx.QueryRow(
		`SELECT id, created_at, use_count FROM memory_items
		 WHERE scope = ? AND kind = ? AND dedupe_key = ?`,
		in.Scope, string(in.Kind), dedupeKey,
	).Scan(&existingID, &createdAt, &useCount)

	switch {
	case err == nil:
		item.ID = existingID
		item.CreatedAt = createdAt
		item.UseCount = useCount + 1
		item.LastUsedAt = nowIso
		_, err = tx.Exec(
			`UPDATE memory_items
			 SET text = ?, meta_json = ?, last_used_at = ?, use_count = ?,
			     importance = ?, quality = ?, expires_at = ?
			 WHERE id = ?`,
			text, metaJSON, nowIso, item.UseCount,
			in.Importance, in.Quality, nullString(in.ExpiresAt), existingID,
		)
		if err != nil {
			return nil, fmt.Errorf("update memory item %s: %w", existingID, err)
		}
		if _, err := tx.Exec(`DELETE FROM memory_fts WHERE id = ?`, existingID); err != nil {
			return nil, fmt.Errorf("replace fts entry %s: %w", existingID, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		item.ID = NewID()
		item.CreatedAt = nowIso
		item.UseCount = 0
		_, err = tx.Exec(
			`INSERT INTO memory_items
			 (id, scope, kind, text, meta_json, dedupe_key, created_at, last_used_at,
			  use_count, importance, quality, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 0, ?, ?, ?)`,
			item.ID, in.Scope, string(in.Kind), text, metaJSON, dedupeKey, nowIso,
			in.Importance, in.Quality, nullString(in.ExpiresAt),
		)
		if err != nil {
			return nil, fmt.Errorf("insert memory item: %w", err)
		}
	default:
		return nil, fmt.Errorf("lookup memory item: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO memory_fts (id, text, kind, scope) VALUES (?, ?, ?, ?)`,
		item.ID, text, string(in.Kind), in.Scope,
	)
	if err != nil {
		return nil, fmt.Errorf("index memory item %s: %w", item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return item, nil
}

// SearchQuery parameterizes SearchMemory.
type SearchQuery struct {
	Query  string
	Scopes []string
	Kinds  []models.MemoryKind
	Limit  int
	NowISO string
}

// SearchMemory runs an FTS MATCH filtered by scope, optional kinds, and
// expiry, ordered best-match first. Each hit carries the raw BM25 value and
// its (0,1] normalization.
func (s *Store) SearchMemory(q SearchQuery) ([]models.MemoryHit, error) {
	if strings.TrimSpace(q.Query) == "" || len(q.Scopes) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	var b strings.Builder
	args := []any{q.Query}
	b.WriteString(`SELECT m.id, m.scope, m.kind, m.text, m.meta_json, m.dedupe_key,
		m.created_at, m.last_used_at, m.use_count, m.importance, m.quality, m.expires_at,
		bm25(memory_fts) AS bm
		FROM memory_fts
		JOIN memory_items m ON m.id = memory_fts.id
		WHERE memory_fts MATCH ?`)

	b.WriteString(" AND m.scope IN (" + placeholders(len(q.Scopes)) + ")")
	for _, scope := range q.Scopes {
		args = append(args, scope)
	}
	if len(q.Kinds) > 0 {
		b.WriteString(" AND m.kind IN (" + placeholders(len(q.Kinds)) + ")")
		for _, kind := range q.Kinds {
			args = append(args, string(kind))
		}
	}
	b.WriteString(" AND (m.expires_at IS NULL OR m.expires_at > ?)")
	args = append(args, q.NowISO)
	b.WriteString(" ORDER BY bm ASC LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.Query(b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()

	var hits []models.MemoryHit
	for rows.Next() {
		item, bm, err := scanHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.MemoryHit{
			Item: item,
			BM25: bm,
			// FTS5 reports negative-is-better; the magnitude normalizes
			// into the contract's (0,1] range.
			FTSRank: 1.0 / (1.0 + math.Abs(bm)),
		})
	}
	return hits, rows.Err()
}

// MarkMemoryUsed bumps lastUsedAt and useCount for each distinct id.
func (s *Store) MarkMemoryUsed(ids []string, nowIso string) error {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin mark used: %w", err)
	}
	defer rollback(tx)

	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		_, err := tx.Exec(
			`UPDATE memory_items SET last_used_at = ?, use_count = use_count + 1 WHERE id = ?`,
			nowIso, id,
		)
		if err != nil {
			return fmt.Errorf("mark memory %s used: %w", id, err)
		}
	}
	return tx.Commit()
}

// GetToolCache returns a cached tool result by signature, or ErrNotFound.
func (s *Store) GetToolCache(sig string) (createdAt string, result any, err error) {
	var resultJSON string
	err = s.db.QueryRow(
		`SELECT created_at, result_json FROM tool_cache WHERE signature = ?`, sig,
	).Scan(&createdAt, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("get tool cache %s: %w", sig, err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return "", nil, fmt.Errorf("decode cached result %s: %w", sig, err)
	}
	return createdAt, result, nil
}

// SetToolCache writes through a tool result, upserting on signature conflict.
func (s *Store) SetToolCache(tool, sig string, args map[string]any, result any, nowIso string) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode cache args: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode cache result: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO tool_cache (signature, created_at, tool, args_json, result_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(signature) DO UPDATE SET
		   created_at = excluded.created_at,
		   tool = excluded.tool,
		   args_json = excluded.args_json,
		   result_json = excluded.result_json`,
		sig, nowIso, tool, string(argsJSON), string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("set tool cache %s: %w", sig, err)
	}
	return nil
}

// MemoryStats returns per-(scope, kind) item counts.
func (s *Store) MemoryStats() ([]models.MemoryStat, error) {
	rows, err := s.db.Query(
		`SELECT scope, kind, COUNT(*) FROM memory_items GROUP BY scope, kind ORDER BY scope, kind`,
	)
	if err != nil {
		return nil, fmt.Errorf("memory stats: %w", err)
	}
	defer rows.Close()

	var stats []models.MemoryStat
	for rows.Next() {
		var st models.MemoryStat
		var kind string
		if err := rows.Scan(&st.Scope, &kind, &st.Count); err != nil {
			return nil, fmt.Errorf("scan memory stat: %w", err)
		}
		st.Kind = models.MemoryKind(kind)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Maintenance deletes expired memory items and their FTS rows, returning the
// number expired.
func (s *Store) Maintenance(nowIso string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin maintenance: %w", err)
	}
	defer rollback(tx)

	rows, err := tx.Query(
		`SELECT id FROM memory_items WHERE expires_at IS NOT NULL AND expires_at <= ?`, nowIso,
	)
	if err != nil {
		return 0, fmt.Errorf("find expired items: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM memory_items WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("expire item %s: %w", id, err)
		}
		if _, err := tx.Exec(`DELETE FROM memory_fts WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("expire fts row %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit maintenance: %w", err)
	}
	return len(ids), nil
}

func scanHit(rows *sql.Rows) (models.MemoryItem, float64, error) {
	var item models.MemoryItem
	var kind string
	var metaJSON, lastUsedAt, expiresAt sql.NullString
	var bm float64

	err := rows.Scan(
		&item.ID, &item.Scope, &kind, &item.Text, &metaJSON, &item.DedupeKey,
		&item.CreatedAt, &lastUsedAt, &item.UseCount, &item.Importance,
		&item.Quality, &expiresAt, &bm,
	)
	if err != nil {
		return item, 0, fmt.Errorf("scan memory hit: %w", err)
	}
	item.Kind = models.MemoryKind(kind)
	item.LastUsedAt = lastUsedAt.String
	item.ExpiresAt = expiresAt.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &item.Meta); err != nil {
			return item, 0, fmt.Errorf("decode memory meta %s: %w", item.ID, err)
		}
	}
	return item, bm, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(raw) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		_ = err
	}
}
